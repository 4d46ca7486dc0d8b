package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for orders.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Patch("/", h.handleAmend)
		r.Delete("/", h.handleDelete)
		r.Get("/approvals", h.handleApprovals)
		r.Post("/{action}", h.handleTransition)
	})
}

type listResponse struct {
	Data       []Order           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:    Status(q.Get("status")),
		Direction: Direction(q.Get("direction")),
	}
	var err error
	if filter.ProductID, err = int64Param(q.Get("product_id"), "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := int64Param(q.Get("page"), "page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perPage, err := int64Param(q.Get("per_page"), "per_page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Page, filter.PerPage = int(page), int(perPage)
	list, pagination, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: list, Pagination: pagination})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Operator = shared.ActorFromContext(r.Context())
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, "approval history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input AmendInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	order, err := h.service.Amend(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, "amend order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, r, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	action := Action(chi.URLParam(r, "action"))
	if action.Target() == "" {
		httpx.RespondError(w, shared.Invalid("action", "must be one of approve reject cancel ship"))
		return
	}
	var req transitionRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	result, err := h.service.ApplyTransition(r.Context(), id, action, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, r, "transition order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Invalid("order_id", "must be a positive integer"))
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

func int64Param(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, shared.Invalid(field, "must be a non-negative integer")
	}
	return v, nil
}
