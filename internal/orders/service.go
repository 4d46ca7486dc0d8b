package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const idempotencyModule = "orders"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records the decision trail of an order.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actor, note string) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// IdempotencyPort guards order creation against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// StockPort receives committed stock movements.
type StockPort interface {
	AfterStockChange(ctx context.Context, product inventory.Product, entry inventory.LedgerEntry)
}

// Service is the only component that turns order transitions into ledger
// movements.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	approvals   ApprovalPort
	idempotency IdempotencyPort
	stock       StockPort
	metrics     *observability.LedgerMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. Every port except repo may be nil.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort, idem IdempotencyPort, stock StockPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		approvals:   approvals,
		idempotency: idem,
		stock:       stock,
		logger:      logger.With(slog.String("component", "orders")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches ledger metrics.
func (s *Service) SetMetrics(m *observability.LedgerMetrics) {
	s.metrics = m
}

// CreateOrder registers a PENDING order. Creation never moves stock.
func (s *Service) CreateOrder(ctx context.Context, input CreateInput) (Order, error) {
	input.Number = strings.TrimSpace(input.Number)
	input.Operator = strings.TrimSpace(input.Operator)
	if err := validateCreate(input); err != nil {
		return Order{}, err
	}
	now := s.now()
	order := Order{
		Number:          input.Number,
		Direction:       input.Direction,
		ProductID:       input.ProductID,
		Quantity:        input.Quantity,
		UnitPrice:       input.UnitPrice,
		Discount:        input.Discount,
		TotalAmount:     ComputeTotal(input.Direction, input.Quantity, input.UnitPrice, input.Discount),
		Status:          StatusPending,
		Operator:        input.Operator,
		Counterparty:    input.Counterparty,
		ExpectedDate:    input.ExpectedDate,
		ShippingAddress: input.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.Number == "" {
		order.Number = generateNumber(input.Direction.Prefix(), now)
	}

	var idemKey string
	if input.IdempotencyKey != "" && s.idempotency != nil {
		idemKey = "create:" + input.IdempotencyKey
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
			return Order{}, err
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		if idemKey != "" {
			if delErr := s.idempotency.Delete(ctx, idemKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idemKey), slog.Any("error", delErr))
			}
		}
		return Order{}, err
	}

	if s.approvals != nil {
		ref := shared.ApprovalRefID(order.ApprovalModule(), order.Number)
		if err := s.approvals.EnsureSubmit(ctx, order.ApprovalModule(), ref, order.Operator, ""); err != nil {
			s.logger.Warn("record submit", slog.String("number", order.Number), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, order.Operator, "order:create", order, map[string]any{
		"number":    order.Number,
		"direction": order.Direction,
		"quantity":  order.Quantity,
		"total":     order.TotalAmount.StringFixed(2),
	})
	s.logger.Info("order created", slog.String("number", order.Number), slog.String("direction", string(order.Direction)))
	return order, nil
}

// Approve moves a PENDING order to APPROVED and applies its stock movement.
func (s *Service) Approve(ctx context.Context, orderID int64, actor string) (Result, error) {
	return s.ApplyTransition(ctx, orderID, ActionApprove, actor, "")
}

// Reject closes a PENDING order without touching stock.
func (s *Service) Reject(ctx context.Context, orderID int64, actor, reason string) (Result, error) {
	return s.ApplyTransition(ctx, orderID, ActionReject, actor, reason)
}

// Cancel closes a PENDING or APPROVED order, reversing an applied movement.
func (s *Service) Cancel(ctx context.Context, orderID int64, actor, reason string) (Result, error) {
	return s.ApplyTransition(ctx, orderID, ActionCancel, actor, reason)
}

// Ship marks an APPROVED outbound order as shipped.
func (s *Service) Ship(ctx context.Context, orderID int64, actor string) (Result, error) {
	return s.ApplyTransition(ctx, orderID, ActionShip, actor, "")
}

// ApplyTransition performs action on the order inside one transaction: the
// order row is locked, then the product row when stock moves. The status
// change and the ledger movement commit together. Requesting the status the
// order already has is a no-op with Applied=false.
func (s *Service) ApplyTransition(ctx context.Context, orderID int64, action Action, actor, reason string) (Result, error) {
	actor = strings.TrimSpace(actor)
	reason = strings.TrimSpace(reason)
	if actor == "" {
		return Result{}, shared.Invalid("actor", "is required")
	}
	if action.Target() == "" {
		return Result{}, shared.Invalid("action", fmt.Sprintf("unknown action %q", action))
	}
	if len(reason) > 500 {
		return Result{}, shared.Invalid("reason", "must be at most 500 characters")
	}

	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		result = Result{Order: order, From: order.Status}
		if order.Status == action.Target() {
			return nil
		}
		to, err := NextStatus(order, action)
		if err != nil {
			return err
		}
		now := s.now()
		if effect := Plan(order.Status, to, order.Direction, order.Quantity); !effect.None() {
			var guards []inventory.Guard
			if effect.Delta < 0 {
				guards = append(guards, inventory.RequireAvailable(-effect.Delta))
			}
			draft := ledgerDraft(order, to, effect, actor, reason, now)
			product, entry, err := inventory.AppendAndAdjust(ctx, tx, order.ProductID, draft, guards...)
			if err != nil {
				return err
			}
			result.Product = &product
			result.Entry = &entry
		}
		order = applyStatus(order, to, actor, reason, now)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		result.Order = order
		result.Applied = true
		return nil
	})
	if err != nil {
		s.observeFailure(action, result.Order, err, orderID)
		return Result{}, err
	}
	s.afterTransition(ctx, action, actor, reason, result)
	return result, nil
}

// Amend changes quantity, price or discount of a PENDING order and recomputes
// its total.
func (s *Service) Amend(ctx context.Context, orderID int64, input AmendInput) (Order, error) {
	input.Actor = strings.TrimSpace(input.Actor)
	if input.Actor == "" {
		return Order{}, shared.Invalid("actor", "is required")
	}
	if input.Quantity == nil && input.UnitPrice == nil && input.Discount == nil {
		return Order{}, shared.Invalid("body", "nothing to amend")
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return &TransitionError{Number: current.Number, From: current.Status, Action: ActionAmend}
		}
		if input.Quantity != nil {
			current.Quantity = *input.Quantity
		}
		if input.UnitPrice != nil {
			current.UnitPrice = *input.UnitPrice
		}
		if input.Discount != nil {
			current.Discount = *input.Discount
		}
		if err := validateTerms(current.Direction, current.Quantity, current.UnitPrice, current.Discount); err != nil {
			return err
		}
		current.TotalAmount = ComputeTotal(current.Direction, current.Quantity, current.UnitPrice, current.Discount)
		current.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.Actor, "order:amend", order, map[string]any{
		"quantity":   order.Quantity,
		"unit_price": order.UnitPrice.String(),
		"discount":   order.Discount.String(),
		"total":      order.TotalAmount.StringFixed(2),
	})
	return order, nil
}

// Delete removes an order that never moved stock.
func (s *Service) Delete(ctx context.Context, orderID int64, actor string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return shared.Invalid("actor", "is required")
	}
	var deleted Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		refs, err := tx.CountLedgerEntries(ctx, orderID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: order %s is referenced by %d ledger entries", shared.ErrConflict, order.Number, refs)
		}
		if order.Status == StatusApproved || order.Status == StatusShipped {
			return &TransitionError{Number: order.Number, From: order.Status, Action: ActionDelete}
		}
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return err
		}
		deleted = order
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "order:delete", deleted, map[string]any{"number": deleted.Number, "status": deleted.Status})
	return nil
}

// GetOrder returns an order by ID.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, shared.Invalid("order_id", "must be greater than 0")
	}
	return s.repo.GetOrder(ctx, id)
}

// ApprovalHistory returns the decision trail of an order, oldest first.
func (s *Service) ApprovalHistory(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	module := order.ApprovalModule()
	logs, err := s.approvals.List(ctx, module, shared.ApprovalRefID(module, order.Number))
	if err != nil {
		return nil, fmt.Errorf("approval history %s: %w", order.Number, err)
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

// ListOrders returns a page of orders and its pagination metadata.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	if filter.Direction != "" && !filter.Direction.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("direction", "must be INBOUND or OUTBOUND")
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	list, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) afterTransition(ctx context.Context, action Action, actor, reason string, result Result) {
	order := result.Order
	if !result.Applied {
		s.metrics.ObserveTransition(string(order.Direction), string(action), "noop")
		s.logger.Info("transition skipped", slog.String("number", order.Number), slog.String("status", string(order.Status)))
		return
	}
	s.metrics.ObserveTransition(string(order.Direction), string(action), "applied")
	if s.stock != nil && result.Product != nil && result.Entry != nil {
		s.stock.AfterStockChange(ctx, *result.Product, *result.Entry)
	}
	if s.approvals != nil {
		err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module: order.ApprovalModule(),
			RefID:  shared.ApprovalRefID(order.ApprovalModule(), order.Number),
			Actor:  actor,
			Action: approvalAction(action),
			Note:   reason,
			At:     order.UpdatedAt,
		})
		if err != nil {
			s.logger.Warn("record approval", slog.String("number", order.Number), slog.Any("error", err))
		}
	}
	meta := map[string]any{"from": result.From, "to": order.Status}
	if reason != "" {
		meta["reason"] = reason
	}
	if result.Entry != nil {
		meta["entry_id"] = result.Entry.ID
		meta["delta"] = result.Entry.Quantity
	}
	s.recordAudit(ctx, actor, "order:"+string(action), order, meta)
	s.logger.Info("order transitioned",
		slog.String("number", order.Number),
		slog.String("from", string(result.From)),
		slog.String("to", string(order.Status)),
		slog.String("actor", actor))
}

func (s *Service) observeFailure(action Action, order Order, err error, orderID int64) {
	direction := string(order.Direction)
	attrs := []any{slog.Int64("order_id", orderID), slog.String("action", string(action)), slog.Any("error", err)}
	switch {
	case errors.Is(err, shared.ErrNegativeStock):
		s.metrics.ObserveTransition(direction, string(action), "negative_stock")
		s.metrics.NegativeStock()
		s.logger.Error("ledger invariant breach", attrs...)
	case errors.Is(err, shared.ErrInsufficientStock):
		s.metrics.ObserveTransition(direction, string(action), "insufficient_stock")
	case errors.Is(err, shared.ErrInvalidTransition):
		s.metrics.ObserveTransition(direction, string(action), "invalid_transition")
	case errors.Is(err, shared.ErrLockTimeout):
		s.metrics.ObserveTransition(direction, string(action), "lock_timeout")
		s.metrics.LockTimeout()
		s.logger.Warn("transition lock timeout", attrs...)
	case errors.Is(err, shared.ErrNotFound):
	default:
		s.metrics.ObserveTransition(direction, string(action), "error")
		s.logger.Error("transition failed", attrs...)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, order Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(order.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func approvalAction(action Action) shared.ApprovalAction {
	switch action {
	case ActionApprove:
		return shared.ApprovalApprove
	case ActionReject:
		return shared.ApprovalReject
	case ActionCancel:
		return shared.ApprovalCancel
	default:
		return shared.ApprovalShip
	}
}

func validateCreate(input CreateInput) error {
	if err := shared.ValidateStruct(input); err != nil {
		return err
	}
	return validateTerms(input.Direction, input.Quantity, input.UnitPrice, input.Discount)
}

func validateTerms(direction Direction, quantity int64, unitPrice, discount decimal.Decimal) error {
	switch {
	case quantity <= 0:
		return shared.Invalid("quantity", "must be greater than 0")
	case unitPrice.IsNegative():
		return shared.Invalid("unit_price", "must not be negative")
	case discount.IsNegative() || discount.GreaterThan(hundred):
		return shared.Invalid("discount", "must be between 0 and 100")
	case direction == DirectionInbound && !discount.IsZero():
		return shared.Invalid("discount", "only outbound orders take a discount")
	}
	return nil
}

func generateNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}
