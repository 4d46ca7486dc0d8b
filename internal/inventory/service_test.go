package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	products    map[int64]Product
	entries     []LedgerEntry
	nextProduct int64
	nextEntry   int64
	failRecord  error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) seed(p Product) Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextProduct++
	p.ID = r.nextProduct
	if p.BaselineStock == 0 {
		p.BaselineStock = p.CurrentStock
	}
	r.products[p.ID] = p
	return p
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	products := make(map[int64]Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	entries := append([]LedgerEntry(nil), r.entries...)
	nextProduct, nextEntry := r.nextProduct, r.nextEntry
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products, r.entries = products, entries
		r.nextProduct, r.nextEntry = nextProduct, nextEntry
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Product
	for _, p := range r.products {
		if filter.LowStock && !(p.CurrentStock > 0 && p.CurrentStock < p.AlertThreshold) {
			continue
		}
		if filter.OutOfStock && p.CurrentStock != 0 {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) ListProductIDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.products))
	for id := range r.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LedgerEntry
	for _, e := range r.entries {
		if e.ProductID != filter.ProductID || e.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) SumEntries(ctx context.Context, productID int64, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sum(productID, asOf), nil
}

func (r *memoryRepo) sum(productID int64, asOf time.Time) int64 {
	var entries []LedgerEntry
	for _, e := range r.entries {
		if e.ProductID == productID {
			entries = append(entries, e)
		}
	}
	return Reconstruct(0, entries, asOf)
}

func (tx *memoryTx) LockProduct(ctx context.Context, productID int64) (Product, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) RecordMovement(ctx context.Context, productID, newStock int64, entry LedgerEntry) (LedgerEntry, error) {
	p := tx.repo.products[productID]
	p.CurrentStock = newStock
	p.UpdatedAt = entry.CreatedAt
	tx.repo.products[productID] = p
	if tx.repo.failRecord != nil {
		return LedgerEntry{}, tx.repo.failRecord
	}
	tx.repo.nextEntry++
	entry.ID = tx.repo.nextEntry
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry, nil
}

func (tx *memoryTx) InsertProduct(ctx context.Context, p Product) (Product, error) {
	for _, existing := range tx.repo.products {
		if existing.Code == p.Code {
			return Product{}, fmt.Errorf("%w: product code %s already registered", shared.ErrConflict, p.Code)
		}
	}
	tx.repo.nextProduct++
	p.ID = tx.repo.nextProduct
	p.UpdatedAt = p.CreatedAt
	tx.repo.products[p.ID] = p
	return p, nil
}

func (tx *memoryTx) SumEntries(ctx context.Context, productID int64, asOf time.Time) (int64, error) {
	return tx.repo.sum(productID, asOf), nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []StockChangedEvent
}

func (o *recordingObserver) HandleStockChanged(ctx context.Context, evt StockChangedEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, evt)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil)
}

func TestRegisterProductSetsBaseline(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil, nil, nil)
	ctx := context.Background()

	p, err := svc.RegisterProduct(ctx, RegisterProductInput{Code: " SKU-1 ", Name: "Bolt", UnitPrice: decimal.RequireFromString("2.505"), OpeningStock: 40, AlertThreshold: 10, Actor: "admin"})
	require.NoError(t, err)
	require.Equal(t, "SKU-1", p.Code)
	require.Equal(t, "PCS", p.Unit)
	require.Equal(t, int64(40), p.BaselineStock)
	require.Equal(t, int64(40), p.CurrentStock)
	require.True(t, decimal.RequireFromString("2.51").Equal(p.UnitPrice))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "product:register", audit.logs[0].Action)

	_, err = svc.RegisterProduct(ctx, RegisterProductInput{Code: "SKU-1", Name: "Again", Actor: "admin"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRegisterProductValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.RegisterProduct(ctx, RegisterProductInput{Name: "No code", Actor: "admin"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "code", verr.Field)

	_, err = svc.RegisterProduct(ctx, RegisterProductInput{Code: "X", Name: "Neg", OpeningStock: -1, Actor: "admin"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RegisterProduct(ctx, RegisterProductInput{Code: "X", Name: "Price", UnitPrice: decimal.NewFromInt(-1), Actor: "admin"})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "unit_price", verr.Field)
}

func TestPostAdjustmentWritesEntry(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "SKU-1", CurrentStock: 10, AlertThreshold: 3})
	svc := newTestService(repo)
	ctx := context.Background()

	entry, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: -4, Note: "damaged", Actor: "clerk"})
	require.NoError(t, err)
	require.Equal(t, EntryAdjustment, entry.Kind)
	require.Equal(t, int64(-4), entry.Quantity)
	require.Equal(t, int64(6), entry.BalanceAfter)
	require.Nil(t, entry.Ref)
	require.Equal(t, "clerk", entry.Operator)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), got.CurrentStock)
}

func TestPostAdjustmentInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "SKU-1", CurrentStock: 2})
	svc := newTestService(repo)

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: p.ID, Quantity: -3, Note: "count", Actor: "clerk"})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(2), insufficient.Available)
	require.Equal(t, int64(3), insufficient.Requested)
	require.Empty(t, repo.entries)
}

func TestPostAdjustmentValidation(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "SKU-1", CurrentStock: 2})
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: 0, Note: "zero", Actor: "clerk"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: 1, Note: "  ", Actor: "clerk"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: 1, Note: "found"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 999, Quantity: 1, Note: "found", Actor: "clerk"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostAdjustmentRollsBackOnWriteFailure(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "SKU-1", CurrentStock: 5})
	repo.failRecord = errors.New("disk full")
	svc := newTestService(repo)

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: p.ID, Quantity: 3, Note: "found", Actor: "clerk"})
	require.Error(t, err)

	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.CurrentStock)
	require.Empty(t, repo.entries)
}

func TestReconstructStockMatchesCounter(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "SKU-1", CurrentStock: 7})
	svc := newTestService(repo)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for i, qty := range []int64{5, -3, 10, -12} {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		_, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: qty, Note: "cycle count", Actor: "clerk"})
		require.NoError(t, err)
	}

	stock, err := svc.ReconstructStock(ctx, p.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(7), stock)

	got, _ := svc.GetProduct(ctx, p.ID)
	require.Equal(t, got.CurrentStock, stock)

	stock, err = svc.ReconstructStock(ctx, p.ID, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(9), stock)

	report, err := svc.VerifyConsistency(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, report.Consistent)
	require.Equal(t, int64(7), report.Reconstructed)
}

func TestVerifyConsistencyDetectsDrift(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "SKU-1", CurrentStock: 7})
	svc := newTestService(repo)

	repo.mu.Lock()
	drifted := repo.products[p.ID]
	drifted.CurrentStock = 9
	repo.products[p.ID] = drifted
	repo.mu.Unlock()

	report, err := svc.VerifyConsistency(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, report.Consistent)
	require.Equal(t, int64(9), report.Stored)
	require.Equal(t, int64(7), report.Reconstructed)
}

func TestGetStockSnapshotStatus(t *testing.T) {
	repo := newMemoryRepo()
	empty := repo.seed(Product{Code: "A", CurrentStock: 0, AlertThreshold: 5})
	low := repo.seed(Product{Code: "B", CurrentStock: 4, AlertThreshold: 5})
	normal := repo.seed(Product{Code: "C", CurrentStock: 5, AlertThreshold: 5})
	svc := newTestService(repo)
	ctx := context.Background()

	for id, want := range map[int64]StockStatus{empty.ID: StockOutOfStock, low.ID: StockLow, normal.ID: StockNormal} {
		snap, err := svc.GetStockSnapshot(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, snap.Status)
	}

	_, err := svc.GetStockSnapshot(ctx, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListProductsFilters(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(Product{Code: "A", CurrentStock: 0, AlertThreshold: 5})
	repo.seed(Product{Code: "B", CurrentStock: 4, AlertThreshold: 5})
	repo.seed(Product{Code: "C", CurrentStock: 50, AlertThreshold: 5})
	svc := newTestService(repo)
	ctx := context.Background()

	low, err := svc.ListProducts(ctx, ProductFilter{LowStock: true})
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "B", low[0].Code)

	out, err := svc.ListProducts(ctx, ProductFilter{OutOfStock: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "A", out[0].Code)

	_, err = svc.ListProducts(ctx, ProductFilter{LowStock: true, OutOfStock: true})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStockValues(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(Product{Code: "A", CurrentStock: 3, UnitPrice: decimal.RequireFromString("10.50")})
	repo.seed(Product{Code: "B", CurrentStock: 2, UnitPrice: decimal.RequireFromString("0.25")})
	svc := newTestService(repo)

	values, total, err := svc.StockValues(context.Background())
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.True(t, decimal.RequireFromString("31.50").Equal(values[0].Value))
	require.True(t, decimal.RequireFromString("32.00").Equal(total))
}

func TestGetLedgerFiltersAndClamps(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "A", CurrentStock: 100})
	svc := newTestService(repo)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		svc.now = func() time.Time { return at }
		_, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: -1, Note: "sample", Actor: "qa"})
		require.NoError(t, err)
	}

	entries, err := svc.GetLedger(ctx, LedgerFilter{ProductID: p.ID, Since: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Less(t, entries[0].ID, entries[1].ID)

	entries, err = svc.GetLedger(ctx, LedgerFilter{ProductID: p.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = svc.GetLedger(ctx, LedgerFilter{ProductID: 77})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAfterStockChangeNotifiesObserver(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "A", CurrentStock: 6, AlertThreshold: 5})
	observer := &recordingObserver{}
	svc := NewService(repo, nil, nil, observer, nil)

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: p.ID, Quantity: -2, Note: "breakage", Actor: "clerk"})
	require.NoError(t, err)
	require.Len(t, observer.events, 1)
	evt := observer.events[0]
	require.True(t, evt.NeedsAlert())
	require.Equal(t, StockLow, evt.Snapshot.Status)
	require.Equal(t, int64(4), evt.Snapshot.CurrentStock)
}

func TestConcurrentAdjustmentsNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.seed(Product{Code: "HOT", CurrentStock: 10})
	svc := newTestService(repo)
	ctx := context.Background()

	const workers = 25
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Quantity: -1, Note: "pick", Actor: "picker"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, shared.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, ok)
	require.Equal(t, workers-10, rejected)
	got, _ := repo.GetProduct(ctx, p.ID)
	require.Equal(t, int64(0), got.CurrentStock)
	stock, err := svc.ReconstructStock(ctx, p.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(0), stock)
}
