package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/audit"
	audithttp "github.com/odyssey-erp/stockledger/internal/audit/http"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/orders"
	"github.com/odyssey-erp/stockledger/internal/shared"
	_ "github.com/odyssey-erp/stockledger/internal/testing/guard"
	"github.com/odyssey-erp/stockledger/internal/testutil"
)

type client struct {
	t      *testing.T
	router http.Handler
}

func newStack(t *testing.T) *client {
	t.Helper()
	require.True(t, app.InTestMode())

	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)

	invSvc := inventory.NewService(inventory.NewRepository(pool, 2*time.Second), auditLogger, nil, nil, nil)
	invSvc.SetMetrics(ledgerMetrics)
	orderSvc := orders.NewService(
		orders.NewRepository(pool, 2*time.Second),
		auditLogger,
		shared.NewApprovalRecorder(pool, nil),
		shared.NewIdempotencyStore(pool),
		invSvc,
		nil,
	)
	orderSvc.SetMetrics(ledgerMetrics)

	router := app.NewRouter(app.RouterParams{
		Config:         &app.Config{RateLimitPerMinute: 1000},
		Database:       pool,
		ProductHandler: inventory.NewHandler(nil, invSvc),
		OrderHandler:   orders.NewHandler(nil, orderSvc),
		AuditHandler:   audithttp.NewHandler(nil, audit.NewService(audit.NewRepository(pool))),
		Metrics:        metrics,
	})
	return &client{t: t, router: router}
}

func (c *client) do(method, path, body, actor string, out any) int {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(app.ActorHeader, actor)
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(c.t, json.NewDecoder(rec.Body).Decode(out), rec.Body.String())
	}
	return rec.Code
}

func (c *client) createOrder(direction string, productID, qty int64) orders.Order {
	c.t.Helper()
	var order orders.Order
	body := fmt.Sprintf(`{"direction":%q,"product_id":%d,"quantity":%d,"unit_price":"4.00"}`, direction, productID, qty)
	require.Equal(c.t, http.StatusCreated, c.do(http.MethodPost, "/api/orders/", body, "clerk", &order))
	return order
}

func (c *client) stock(productID int64) int64 {
	c.t.Helper()
	var snap inventory.StockSnapshot
	require.Equal(c.t, http.StatusOK, c.do(http.MethodGet, fmt.Sprintf("/api/products/%d/snapshot", productID), "", "", &snap))
	return snap.CurrentStock
}

func TestStockFlowOverHTTP(t *testing.T) {
	c := newStack(t)

	var product inventory.Product
	code := c.do(http.MethodPost, "/api/products/", `{"code":"E2E-1","name":"Widget","unit_price":"4.00","opening_stock":5,"alert_threshold":3}`, "admin", &product)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, int64(5), product.CurrentStock)

	inbound := c.createOrder("INBOUND", product.ID, 10)
	var result orders.Result
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/approve", inbound.ID), "", "mgr", &result))
	require.True(t, result.Applied)
	require.Equal(t, int64(15), c.stock(product.ID))

	outbound := c.createOrder("OUTBOUND", product.ID, 12)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/approve", outbound.ID), "", "mgr", &result))
	require.Equal(t, int64(3), c.stock(product.ID))

	tooBig := c.createOrder("OUTBOUND", product.ID, 4)
	require.Equal(t, http.StatusUnprocessableEntity, c.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/approve", tooBig.ID), "", "mgr", nil))
	require.Equal(t, int64(3), c.stock(product.ID))

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", outbound.ID), `{"reason":"customer withdrew"}`, "mgr", &result))
	require.Equal(t, orders.StatusCanceled, result.Order.Status)
	require.Equal(t, int64(15), c.stock(product.ID))

	var ledger struct {
		Data []inventory.LedgerEntry `json:"data"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, fmt.Sprintf("/api/products/%d/ledger", product.ID), "", "", &ledger))
	require.Len(t, ledger.Data, 3)
	var sum int64
	for _, e := range ledger.Data {
		sum += e.Quantity
	}
	require.Equal(t, int64(10), sum)

	var replay struct {
		Stock int64 `json:"stock"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, fmt.Sprintf("/api/products/%d/reconstruct", product.ID), "", "", &replay))
	require.Equal(t, int64(15), replay.Stock)

	var report inventory.ConsistencyReport
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, fmt.Sprintf("/api/products/%d/consistency", product.ID), "", "", &report))
	require.True(t, report.Consistent)

	var history struct {
		Data []shared.ApprovalLog `json:"data"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, fmt.Sprintf("/api/orders/%d/approvals", outbound.ID), "", "", &history))
	require.Len(t, history.Data, 2)
	require.Equal(t, shared.ApprovalApprove, history.Data[0].Action)
	require.Equal(t, shared.ApprovalCancel, history.Data[1].Action)
	require.Equal(t, "customer withdrew", history.Data[1].Note)

	var timeline audit.Result
	path := fmt.Sprintf("/api/audit?entity=order&entity_id=%d", outbound.ID)
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, path, "", "", &timeline))
	actions := make([]string, 0, len(timeline.Rows))
	for _, row := range timeline.Rows {
		actions = append(actions, row.Action)
	}
	require.Equal(t, []string{"order:cancel", "order:approve", "order:create"}, actions)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	c := newStack(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/healthz", "", "", &health))
	require.Equal(t, "ok", health["status"])

	require.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/nope", "", "", nil))
}
