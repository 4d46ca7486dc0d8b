package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ActorOrIPKey buckets callers by the X-Actor identity when present and by
// client address otherwise.
func ActorOrIPKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor != "" {
		return "actor:" + actor, nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// RateLimit allows limit requests per window for each ActorOrIPKey bucket.
// Rejected requests get a 429 problem with Retry-After set to the window.
func RateLimit(limit int, window time.Duration, detail string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Round(time.Second).Seconds()))
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(ActorOrIPKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), detail)
		}),
	)
}
