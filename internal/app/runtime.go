package app

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before opening any connection.
// Test suites set it through internal/testing/guard.
const TestModeEnv = "STOCKLEDGER_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether TestModeEnv is enabled. The variable is read
// once; call RefreshTestMode after changing it.
func InTestMode() bool {
	testModeOnce.Do(RefreshTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv. "1", "true" and "yes" enable it.
func RefreshTestMode() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(TestModeEnv))) {
	case "1", "true", "yes":
		testMode.Store(true)
	default:
		testMode.Store(false)
	}
}

// SkipStartup logs and returns true when binary must not start.
func SkipStartup(binary string) bool {
	if !InTestMode() {
		return false
	}
	slog.Default().Info("test mode detected, skipping startup", slog.String("binary", binary))
	return true
}
