package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/stockledger/internal/audit"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	dateLayout   = "2006-01-02"
	day          = 24 * time.Hour
	defaultRange = 7 * day
	maxRange     = 90 * day
)

// TimelineService adalah kontrak yang dipakai handler.
type TimelineService interface {
	Timeline(ctx context.Context, f audit.Filter, page shared.PageRequest) (audit.Result, error)
	Export(ctx context.Context, f audit.Filter) ([]audit.TimelineRow, error)
}

// Handler melayani /api/audit.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler membuat handler audit.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := h.parseFilter(q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := parsePage(q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filter, page)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-`+filter.From.Format(dateLayout)+`.csv"`)
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("audit export write", slog.Any("error", err), slog.Int("rows", len(rows)))
	}
}

// parseFilter membaca from/to (YYYY-MM-DD, UTC) serta filter teks. Tanpa
// tanggal, rentang jatuh ke tujuh hari terakhir. Hari "to" ikut dihitung
// penuh; rentang lebih dari 90 hari ditolak.
func (h *Handler) parseFilter(q url.Values) (audit.Filter, error) {
	to, err := dateParam(q, "to", h.now().UTC().Truncate(day))
	if err != nil {
		return audit.Filter{}, err
	}
	from, err := dateParam(q, "from", to.Add(-defaultRange))
	if err != nil {
		return audit.Filter{}, err
	}
	switch span := to.Sub(from); {
	case span < 0:
		return audit.Filter{}, shared.Invalid("range", "from is after to")
	case span > maxRange:
		return audit.Filter{}, shared.Invalid("range", "exceeds 90 days")
	}
	return audit.Filter{
		From:     from,
		To:       to.Add(day),
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}, nil
}

func dateParam(q url.Values, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, shared.Invalid(name, "must be YYYY-MM-DD")
	}
	return t, nil
}

func parsePage(q url.Values) (shared.PageRequest, error) {
	var page shared.PageRequest
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &page.Page}, {"page_size", &page.Size}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return shared.PageRequest{}, shared.Invalid(p.name, "must be a positive integer")
		}
		*p.dst = v
	}
	return page, nil
}
