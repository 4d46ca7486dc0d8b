package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/audit"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testutil"
)

func TestPostgresTimelineFiltersAndOrders(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	logger := shared.NewAuditLogger(pool)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	records := []shared.AuditLog{
		{Actor: "alice", Action: "create", Entity: "order", EntityID: "1", At: base},
		{Actor: "bob", Action: "approve", Entity: "order", EntityID: "1", Meta: map[string]any{"number": "PO-1"}, At: base.Add(time.Minute)},
		{Actor: "alice", Action: "adjust", Entity: "product", EntityID: "4", At: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, logger.Record(ctx, rec))
	}

	svc := audit.NewService(audit.NewRepository(pool))
	result, err := svc.Timeline(ctx, audit.Filter{Entity: "order", EntityID: "1"}, shared.PageRequest{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, "approve", result.Rows[0].Action)
	require.Equal(t, "PO-1", result.Rows[0].Meta["number"])
	require.Equal(t, "create", result.Rows[1].Action)

	result, err = svc.Timeline(ctx, audit.Filter{Actor: "alice"}, shared.PageRequest{Size: 1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, "adjust", result.Rows[0].Action)

	rows, err := svc.Export(ctx, audit.Filter{From: base.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
