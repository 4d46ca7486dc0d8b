package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ActorHeader names the caller on every mutating request. Authentication
// happens upstream; the ledger only records who acted.
const ActorHeader = "X-Actor"

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRatePerMinute  = 120
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack returns the chain in the order it must run: request
// identity first, then protection, then the actor-aware limiter and metrics.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	timeout, perMinute := defaultRequestTimeout, defaultRatePerMinute
	production := false
	if c := cfg.Config; c != nil {
		if c.AppRequestTimeout > 0 {
			timeout = c.AppRequestTimeout
		}
		if c.RateLimitPerMinute > 0 {
			perMinute = c.RateLimitPerMinute
		}
		production = c.IsProduction()
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		securityHeaders(cfg.Logger, production),
		ActorMiddleware,
		httpx.RateLimit(perMinute, time.Minute, "rate limit exceeded"),
	}
	if cfg.Metrics != nil {
		chain = append(chain, cfg.Metrics.Middleware)
	}
	return chain
}

func securityHeaders(logger *slog.Logger, production bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				logger.Warn("request rejected by security policy", slog.Any("error", err), slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request rejected by security policy")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorMiddleware stores the trimmed X-Actor header in the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
