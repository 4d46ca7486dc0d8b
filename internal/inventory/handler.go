package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for products and the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleRegister)
	r.Get("/value", h.handleStockValue)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/snapshot", h.handleSnapshot)
		r.Get("/ledger", h.handleLedger)
		r.Get("/reconstruct", h.handleReconstruct)
		r.Get("/consistency", h.handleConsistency)
		r.Post("/adjustments", h.handleAdjustment)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ProductFilter{
		LowStock:   q.Get("low_stock") == "true",
		OutOfStock: q.Get("out_of_stock") == "true",
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list products", err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": products})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input RegisterProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	product, err := h.service.RegisterProduct(r.Context(), input)
	if err != nil {
		h.fail(w, r, "register product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleStockValue(w http.ResponseWriter, r *http.Request) {
	values, total, err := h.service.StockValues(r.Context())
	if err != nil {
		h.fail(w, r, "stock value", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": values, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.GetStockSnapshot(r.Context(), id)
	if err != nil {
		h.fail(w, r, "stock snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := LedgerFilter{ProductID: id}
	var err error
	if filter.Since, err = timeParam(q.Get("since"), "since", false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.GetLedger(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "get ledger", err)
		return
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	asOf, err := timeParam(r.URL.Query().Get("as_of"), "as_of", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.ReconstructStock(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, r, "reconstruct stock", err)
		return
	}
	resp := map[string]any{"product_id": id, "stock": stock}
	if !asOf.IsZero() {
		resp["as_of"] = asOf
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleConsistency(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	report, err := h.service.VerifyConsistency(r.Context(), id)
	if err != nil {
		h.fail(w, r, "verify consistency", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type adjustmentRequest struct {
	Quantity int64  `json:"quantity"`
	Note     string `json:"note"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ProductID: id,
		Quantity:  req.Quantity,
		Note:      req.Note,
		Actor:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, "post adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Invalid("product_id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, shared.Invalid(field, "must be a non-negative integer")
	}
	return v, nil
}

// timeParam parses RFC3339 or a bare date. Bare dates resolve to the start of
// the day, or to its last instant when endOfDay is set.
func timeParam(raw, field string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			d = d.Add(24*time.Hour - time.Nanosecond)
		}
		return d.UTC(), nil
	}
	return time.Time{}, shared.Invalid(field, "must be RFC3339 or YYYY-MM-DD")
}
