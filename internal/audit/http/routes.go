package audithttp

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
)

// Ekspor CSV dibatasi per actor karena satu permintaan bisa membaca ribuan baris.
const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountRoutes mendaftarkan GET / (timeline) dan GET /export.csv.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handleTimeline)
	r.With(httpx.RateLimit(exportLimit, exportWindow, "audit export limit reached")).
		Get("/export.csv", h.handleExport)
}
