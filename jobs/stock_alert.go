package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// SnapshotReader serves current stock levels.
type SnapshotReader interface {
	GetStockSnapshot(ctx context.Context, productID int64) (inventory.StockSnapshot, error)
}

// StockAlertJob publishes low-stock and out-of-stock alerts. Delivery to people
// happens downstream of the structured log line it emits.
type StockAlertJob struct {
	Reader  SnapshotReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockAlertJob initialises the stock alert handler.
func NewStockAlertJob(reader SnapshotReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAlertJob {
	return &StockAlertJob{Reader: reader, Logger: logger, Metrics: metrics}
}

// Handle executes the stock alert logic. The current snapshot is re-read so
// an alert already resolved by a later inbound movement is dropped.
func (j *StockAlertJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("stock alert: handler not configured")
	}
	var payload StockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ProductID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskStockAlert)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int64("product_id", payload.ProductID), slog.String("code", payload.Code))
	status := payload.Status
	current := payload.CurrentStock
	if j.Reader != nil {
		snap, err := j.Reader.GetStockSnapshot(ctx, payload.ProductID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			logger.Warn("stock alert for unknown product")
			return nil
		case err != nil:
			return err
		}
		status, current = snap.Status, snap.CurrentStock
	}
	if status == inventory.StockNormal {
		logger.Info("stock alert resolved before delivery", slog.Int64("current_stock", current))
		return nil
	}
	logger.Warn("stock alert",
		slog.String("status", string(status)),
		slog.Int64("current_stock", current),
		slog.Int64("alert_threshold", payload.AlertThreshold),
		slog.Int64("entry_id", payload.EntryID),
		slog.String("entry_kind", string(payload.EntryKind)),
		slog.Int64("quantity", payload.Quantity),
		slog.Time("occurred_at", payload.OccurredAt),
	)
	return nil
}

func (j *StockAlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
