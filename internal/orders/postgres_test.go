package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/orders"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testutil"
)

type pgFixture struct {
	inventory *inventory.Service
	orders    *orders.Service
}

func newPGFixture(t *testing.T, lockTimeout time.Duration) (*pgFixture, context.Context) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	invSvc := inventory.NewService(inventory.NewRepository(pool, lockTimeout), shared.NewAuditLogger(pool), nil, nil, nil)
	orderSvc := orders.NewService(
		orders.NewRepository(pool, lockTimeout),
		shared.NewAuditLogger(pool),
		shared.NewApprovalRecorder(pool, nil),
		shared.NewIdempotencyStore(pool),
		invSvc,
		nil,
	)
	return &pgFixture{inventory: invSvc, orders: orderSvc}, ctx
}

func (f *pgFixture) product(t *testing.T, ctx context.Context, code string, stock, threshold int64) inventory.Product {
	t.Helper()
	p, err := f.inventory.RegisterProduct(ctx, inventory.RegisterProductInput{
		Code: code, Name: code, UnitPrice: decimal.NewFromInt(3), OpeningStock: stock, AlertThreshold: threshold, Actor: "admin",
	})
	require.NoError(t, err)
	return p
}

func (f *pgFixture) order(t *testing.T, ctx context.Context, direction orders.Direction, productID, qty int64) orders.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(ctx, orders.CreateInput{
		Direction: direction, ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString("1.50"), Operator: "clerk",
	})
	require.NoError(t, err)
	return o
}

func TestPostgresOutboundScenario(t *testing.T) {
	f, ctx := newPGFixture(t, 2*time.Second)
	p := f.product(t, ctx, "P", 10, 5)

	first := f.order(t, ctx, orders.DirectionOutbound, p.ID, 7)
	_, err := f.orders.Approve(ctx, first.ID, "mgr")
	require.NoError(t, err)

	snap, err := f.inventory.GetStockSnapshot(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), snap.CurrentStock)
	require.Equal(t, inventory.StockLow, snap.Status)

	second := f.order(t, ctx, orders.DirectionOutbound, p.ID, 5)
	_, err = f.orders.Approve(ctx, second.ID, "mgr")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	entries, err := f.inventory.GetLedger(ctx, inventory.LedgerFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, inventory.EntryOut, entries[0].Kind)
	require.Equal(t, int64(-7), entries[0].Quantity)
	require.Equal(t, first.Number, entries[0].Ref.Number)

	report, err := f.inventory.VerifyConsistency(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, report.Consistent)
}

func TestPostgresCancelReversesAndKeepsHistory(t *testing.T) {
	f, ctx := newPGFixture(t, 2*time.Second)
	q := f.product(t, ctx, "Q", 0, 5)

	po := f.order(t, ctx, orders.DirectionInbound, q.ID, 20)
	_, err := f.orders.Approve(ctx, po.ID, "mgr")
	require.NoError(t, err)
	_, err = f.orders.Cancel(ctx, po.ID, "mgr", "supplier recalled")
	require.NoError(t, err)

	current, err := f.inventory.GetProduct(ctx, q.ID)
	require.NoError(t, err)
	require.Zero(t, current.CurrentStock)

	entries, err := f.inventory.GetLedger(ctx, inventory.LedgerFilter{ProductID: q.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, inventory.EntryAdjustment, entries[1].Kind)
	require.Equal(t, int64(-20), entries[1].Quantity)

	require.ErrorIs(t, f.orders.Delete(ctx, po.ID, "clerk"), shared.ErrConflict)
}

func TestPostgresConcurrentApprovalsNeverOversell(t *testing.T) {
	f, ctx := newPGFixture(t, 5*time.Second)
	p := f.product(t, ctx, "RACE", 10, 2)

	const workers = 6
	ids := make([]int64, workers)
	for i := range ids {
		ids[i] = f.order(t, ctx, orders.DirectionOutbound, p.ID, 4).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orders.Approve(ctx, id, "mgr")
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, shared.ErrInsufficientStock), "unexpected error: %v", err)
	}
	require.Equal(t, 2, ok)

	current, err := f.inventory.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), current.CurrentStock)
	reconstructed, err := f.inventory.ReconstructStock(ctx, p.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, current.CurrentStock, reconstructed)
}

func TestPostgresConcurrentApproveSameOrder(t *testing.T) {
	f, ctx := newPGFixture(t, 5*time.Second)
	p := f.product(t, ctx, "SAME", 10, 2)
	order := f.order(t, ctx, orders.DirectionOutbound, p.ID, 3)

	var wg sync.WaitGroup
	results := make([]orders.Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.orders.Approve(ctx, order.ID, "mgr")
		}()
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Applied {
			applied++
		}
	}
	require.Equal(t, 1, applied)
	entries, err := f.inventory.GetLedger(ctx, inventory.LedgerFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
