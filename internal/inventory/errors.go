package inventory

import (
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ErrProductNotFound indicates a missing product.
var ErrProductNotFound = fmt.Errorf("inventory: product %w", shared.ErrNotFound)

// NegativeStockError is returned when a write would drive stock below zero.
// Reaching it means a sufficiency check upstream was skipped.
type NegativeStockError struct {
	ProductID int64
	Code      string
	Current   int64
	Delta     int64
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("inventory: stock of %s would become %d (current %d, delta %d)", e.Code, e.Current+e.Delta, e.Current, e.Delta)
}

func (e *NegativeStockError) Unwrap() error {
	return shared.ErrNegativeStock
}

// InsufficientStockError reports a movement that needs more stock than is
// available.
type InsufficientStockError struct {
	ProductID int64
	Code      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Code, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}
