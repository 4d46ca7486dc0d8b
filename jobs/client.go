package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs to the queue. It doubles as the inventory stock
// observer: committed movements that leave a product LOW or OUT_OF_STOCK
// become stock:alert tasks.
type Client struct {
	q      enqueuer
	logger *slog.Logger
}

var _ inventory.StockObserver = (*Client)(nil)

// NewClient connects to the queue's Redis.
func NewClient(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Client {
	return newClient(asynq.NewClient(redisOpts), logger)
}

func newClient(q enqueuer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{q: q, logger: logger}
}

// HandleStockChanged enqueues an alert when evt left the product below its
// threshold.
func (c *Client) HandleStockChanged(ctx context.Context, evt inventory.StockChangedEvent) error {
	if !evt.NeedsAlert() {
		return nil
	}
	task, err := NewStockAlertTask(StockAlertPayloadFrom(evt))
	if err != nil {
		return err
	}
	info, err := c.q.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue stock alert: %w", err)
	}
	c.logger.Debug("stock alert enqueued",
		slog.String("task_id", info.ID),
		slog.Int64("product_id", evt.Snapshot.ProductID),
		slog.String("status", string(evt.Snapshot.Status)),
	)
	return nil
}

// EnqueueLedgerIntegrity requests an out-of-schedule integrity check.
// Duplicate requests within a minute collapse into one task.
func (c *Client) EnqueueLedgerIntegrity(ctx context.Context, payload LedgerIntegrityPayload) (*asynq.TaskInfo, error) {
	task, err := NewLedgerIntegrityTask(payload)
	if err != nil {
		return nil, err
	}
	return c.q.EnqueueContext(ctx, task, asynq.Unique(time.Minute))
}

// Enqueue submits a prepared task.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.q.EnqueueContext(ctx, task, opts...)
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.q.Close()
}
