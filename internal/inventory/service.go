package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	ListProductIDs(ctx context.Context) ([]int64, error)
	ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	SumEntries(ctx context.Context, productID int64, asOf time.Time) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger reads, manual adjustments and post-commit
// notifications.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	cache    *SnapshotCache
	observer StockObserver
	metrics  *observability.LedgerMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. audit, cache and observer may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache *SnapshotCache, observer StockObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		cache:    cache,
		observer: observer,
		logger:   logger.With(slog.String("component", "inventory")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches ledger metrics.
func (s *Service) SetMetrics(m *observability.LedgerMetrics) {
	s.metrics = m
}

// RegisterProduct creates a product. Opening stock becomes the baseline the
// ledger replays from.
func (s *Service) RegisterProduct(ctx context.Context, input RegisterProductInput) (Product, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return Product{}, err
	}
	if input.UnitPrice.IsNegative() {
		return Product{}, shared.Invalid("unit_price", "must not be negative")
	}
	unit := input.Unit
	if unit == "" {
		unit = defaultUnit
	}
	now := s.now()
	product := Product{
		Code:           input.Code,
		Name:           input.Name,
		Unit:           unit,
		UnitPrice:      input.UnitPrice.Round(2),
		BaselineStock:  input.OpeningStock,
		CurrentStock:   input.OpeningStock,
		AlertThreshold: input.AlertThreshold,
		CreatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product = created
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.Actor, "product:register", product.ID, map[string]any{
		"code":          product.Code,
		"opening_stock": product.BaselineStock,
	})
	return product, nil
}

// GetProduct returns a product by ID.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Invalid("product_id", "must be greater than 0")
	}
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists products, optionally only the low or out-of-stock ones.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	if filter.LowStock && filter.OutOfStock {
		return nil, shared.Invalid("filter", "low_stock and out_of_stock are exclusive")
	}
	return s.repo.ListProducts(ctx, filter)
}

// ProductIDs returns every registered product ID.
func (s *Service) ProductIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListProductIDs(ctx)
}

// StockValues values every product at its unit price.
func (s *Service) StockValues(ctx context.Context) ([]StockValue, decimal.Decimal, error) {
	products, err := s.repo.ListProducts(ctx, ProductFilter{Limit: maxLedgerLimit})
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := decimal.Zero
	values := make([]StockValue, 0, len(products))
	for _, p := range products {
		value := p.UnitPrice.Mul(decimal.NewFromInt(p.CurrentStock)).Round(2)
		total = total.Add(value)
		values = append(values, StockValue{ProductID: p.ID, Code: p.Code, CurrentStock: p.CurrentStock, UnitPrice: p.UnitPrice, Value: value})
	}
	return values, total, nil
}

// PostAdjustment records a manual correction through the ledger.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (LedgerEntry, error) {
	input.Note = strings.TrimSpace(input.Note)
	if err := shared.ValidateStruct(input); err != nil {
		return LedgerEntry{}, err
	}
	var (
		product Product
		entry   LedgerEntry
	)
	draft := ManualAdjustment(input.Quantity, input.Actor, input.Note, s.now())
	var guards []Guard
	if input.Quantity < 0 {
		guards = append(guards, RequireAvailable(-input.Quantity))
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, entry, err = AppendAndAdjust(ctx, tx, input.ProductID, draft, guards...)
		return err
	})
	if err != nil {
		s.observeFailure(err, slog.Int64("product_id", input.ProductID))
		return LedgerEntry{}, err
	}
	s.recordAudit(ctx, input.Actor, "ledger:adjust", product.ID, map[string]any{
		"entry_id": entry.ID,
		"quantity": entry.Quantity,
		"note":     entry.Note,
	})
	s.AfterStockChange(ctx, product, entry)
	return entry, nil
}

// AfterStockChange runs after a committed movement: it drops the cached
// snapshot and notifies the observer. Failures are logged, never returned.
func (s *Service) AfterStockChange(ctx context.Context, product Product, entry LedgerEntry) {
	s.metrics.ObserveEntry(string(entry.Kind))
	if err := s.cache.Invalidate(ctx, product.ID); err != nil {
		s.logger.Warn("invalidate snapshot", slog.Int64("product_id", product.ID), slog.Any("error", err))
	}
	evt := StockChangedEvent{Snapshot: SnapshotOf(product, s.now()), Entry: entry, At: entry.CreatedAt}
	if evt.NeedsAlert() {
		s.metrics.StockAlert(string(evt.Snapshot.Status))
		s.logger.Info("stock below threshold",
			slog.String("code", product.Code),
			slog.Int64("current_stock", product.CurrentStock),
			slog.Int64("alert_threshold", product.AlertThreshold),
			slog.String("status", string(evt.Snapshot.Status)))
	}
	if s.observer == nil {
		return
	}
	if err := s.observer.HandleStockChanged(ctx, evt); err != nil {
		s.logger.Warn("notify stock change", slog.Int64("product_id", product.ID), slog.Any("error", err))
	}
}

// GetLedger returns the entries of one product in append order.
func (s *Service) GetLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.ProductID <= 0 {
		return nil, shared.Invalid("product_id", "must be greater than 0")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLedgerLimit
	}
	if filter.Limit > maxLedgerLimit {
		filter.Limit = maxLedgerLimit
	}
	if _, err := s.repo.GetProduct(ctx, filter.ProductID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, filter)
}

// GetStockSnapshot returns the current level and alert status of a product.
func (s *Service) GetStockSnapshot(ctx context.Context, productID int64) (StockSnapshot, error) {
	if productID <= 0 {
		return StockSnapshot{}, shared.Invalid("product_id", "must be greater than 0")
	}
	return s.cache.Fetch(ctx, productID, func(ctx context.Context) (StockSnapshot, error) {
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return StockSnapshot{}, err
		}
		return SnapshotOf(product, s.now()), nil
	})
}

// ReconstructStock replays the ledger of productID up to asOf. A zero asOf
// replays every entry.
func (s *Service) ReconstructStock(ctx context.Context, productID int64, asOf time.Time) (int64, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	sum, err := s.repo.SumEntries(ctx, productID, asOf)
	if err != nil {
		return 0, fmt.Errorf("inventory: sum entries: %w", err)
	}
	return product.BaselineStock + sum, nil
}

// VerifyConsistency compares the stored counter against the ledger replay
// while holding the product lock, so no movement can interleave.
func (s *Service) VerifyConsistency(ctx context.Context, productID int64) (ConsistencyReport, error) {
	var report ConsistencyReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := tx.SumEntries(ctx, productID, time.Time{})
		if err != nil {
			return err
		}
		report = ConsistencyReport{
			ProductID:     product.ID,
			Code:          product.Code,
			Stored:        product.CurrentStock,
			Reconstructed: product.BaselineStock + sum,
			CheckedAt:     s.now(),
		}
		report.Consistent = report.Stored == report.Reconstructed
		return nil
	})
	if err != nil {
		return ConsistencyReport{}, err
	}
	if !report.Consistent {
		s.logger.Error("ledger mismatch",
			slog.Int64("product_id", report.ProductID),
			slog.String("code", report.Code),
			slog.Int64("stored", report.Stored),
			slog.Int64("reconstructed", report.Reconstructed))
	}
	return report, nil
}

func (s *Service) observeFailure(err error, attrs ...any) {
	switch {
	case errors.Is(err, shared.ErrNegativeStock):
		s.metrics.NegativeStock()
		s.logger.Error("ledger invariant breach", append(attrs, slog.Any("error", err))...)
	case errors.Is(err, shared.ErrLockTimeout):
		s.metrics.LockTimeout()
		s.logger.Warn("ledger lock timeout", append(attrs, slog.Any("error", err))...)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(productID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
