package inventory

import (
	"context"
	"time"
)

// StockChangedEvent is published after a committed stock movement.
type StockChangedEvent struct {
	Snapshot StockSnapshot
	Entry    LedgerEntry
	At       time.Time
}

// NeedsAlert reports whether the new level crossed into LOW or OUT_OF_STOCK.
func (e StockChangedEvent) NeedsAlert() bool {
	return e.Snapshot.Status != StockNormal
}

// StockObserver receives committed stock movements, e.g. to enqueue alerts.
type StockObserver interface {
	HandleStockChanged(ctx context.Context, evt StockChangedEvent) error
}
