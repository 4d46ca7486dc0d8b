package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAlert notifies that a product fell to LOW or OUT_OF_STOCK.
	TaskStockAlert = "stock:alert"
	// TaskLedgerIntegrity replays the ledger of every product and compares it
	// with the stored stock.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup prunes idempotency keys past their retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// StockAlertPayload describes the movement that triggered an alert.
type StockAlertPayload struct {
	ProductID      int64                 `json:"product_id"`
	Code           string                `json:"code"`
	Name           string                `json:"name"`
	CurrentStock   int64                 `json:"current_stock"`
	AlertThreshold int64                 `json:"alert_threshold"`
	Status         inventory.StockStatus `json:"status"`
	EntryID        int64                 `json:"entry_id"`
	EntryKind      inventory.EntryKind   `json:"entry_kind"`
	Quantity       int64                 `json:"quantity"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// StockAlertPayloadFrom flattens a stock change event.
func StockAlertPayloadFrom(evt inventory.StockChangedEvent) StockAlertPayload {
	return StockAlertPayload{
		ProductID:      evt.Snapshot.ProductID,
		Code:           evt.Snapshot.Code,
		Name:           evt.Snapshot.Name,
		CurrentStock:   evt.Snapshot.CurrentStock,
		AlertThreshold: evt.Snapshot.AlertThreshold,
		Status:         evt.Snapshot.Status,
		EntryID:        evt.Entry.ID,
		EntryKind:      evt.Entry.Kind,
		Quantity:       evt.Entry.Quantity,
		OccurredAt:     evt.At,
	}
}

// NewStockAlertTask constructs an Asynq task for a stock alert.
func NewStockAlertTask(payload StockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlert, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// LedgerIntegrityPayload carries scheduling metadata. An empty ProductIDs
// list checks every product.
type LedgerIntegrityPayload struct {
	ProductIDs   []int64   `json:"product_ids,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity check.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the nightly key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}
