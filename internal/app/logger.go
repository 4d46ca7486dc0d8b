package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger: JSON in production or when LOG_FORMAT
// asks for it, text otherwise. Every record carries env and service.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	if cfg == nil {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	if strings.EqualFold(cfg.LogLevel, "debug") {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" || (cfg.LogFormat == "" && cfg.IsProduction()) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("env", cfg.AppEnv), slog.String("service", "stockledger"))
}
