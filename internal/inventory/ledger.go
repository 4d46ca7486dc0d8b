package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// LedgerTx is the transactional write surface of the ledger. Stock can only
// change through RecordMovement, which persists the new counter together with
// the entry describing it. There is no way to update or delete an entry.
type LedgerTx interface {
	// LockProduct reads the product row under an exclusive row lock held
	// until the surrounding transaction ends.
	LockProduct(ctx context.Context, productID int64) (Product, error)
	// RecordMovement stores newStock on the product and appends entry,
	// returning the entry with its assigned ID.
	RecordMovement(ctx context.Context, productID, newStock int64, entry LedgerEntry) (LedgerEntry, error)
}

// Guard is a precondition evaluated against the locked product row before a
// movement is written.
type Guard func(Product) error

// RequireAvailable fails with InsufficientStockError unless the product holds
// at least quantity units.
func RequireAvailable(quantity int64) Guard {
	return func(p Product) error {
		if p.CurrentStock < quantity {
			return &InsufficientStockError{ProductID: p.ID, Code: p.Code, Available: p.CurrentStock, Requested: quantity}
		}
		return nil
	}
}

// AppendAndAdjust locks the product, applies draft.Quantity to its counter and
// appends the matching entry. It must run inside the caller's transaction so
// that the counter update and the entry commit or roll back together.
func AppendAndAdjust(ctx context.Context, tx LedgerTx, productID int64, draft EntryDraft, guards ...Guard) (Product, LedgerEntry, error) {
	if err := validateDraft(draft); err != nil {
		return Product{}, LedgerEntry{}, err
	}
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Product{}, LedgerEntry{}, err
	}
	for _, guard := range guards {
		if err := guard(product); err != nil {
			return Product{}, LedgerEntry{}, err
		}
	}
	newStock := product.CurrentStock + draft.Quantity
	if newStock < 0 {
		return Product{}, LedgerEntry{}, &NegativeStockError{ProductID: product.ID, Code: product.Code, Current: product.CurrentStock, Delta: draft.Quantity}
	}
	at := draft.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry := LedgerEntry{
		ProductID:    productID,
		Kind:         draft.Kind,
		Quantity:     draft.Quantity,
		BalanceAfter: newStock,
		Ref:          draft.Ref,
		Operator:     draft.Operator,
		Note:         draft.Note,
		CreatedAt:    at,
	}
	stored, err := tx.RecordMovement(ctx, productID, newStock, entry)
	if err != nil {
		return Product{}, LedgerEntry{}, fmt.Errorf("inventory: record movement: %w", err)
	}
	product.CurrentStock = newStock
	product.UpdatedAt = at
	return product, stored, nil
}

func validateDraft(d EntryDraft) error {
	if !d.Kind.Valid() {
		return shared.Invalid("kind", fmt.Sprintf("unknown entry kind %q", d.Kind))
	}
	if d.Quantity == 0 {
		return shared.Invalid("quantity", "must be non-zero")
	}
	if d.Operator == "" {
		return shared.Invalid("operator", "is required")
	}
	switch {
	case d.Kind == EntryIn && d.Quantity < 0:
		return shared.Invalid("quantity", "IN entries must be positive")
	case d.Kind == EntryOut && d.Quantity > 0:
		return shared.Invalid("quantity", "OUT entries must be negative")
	case d.Kind == EntryAdjustment && d.Ref == nil && d.Note == "":
		return shared.Invalid("note", "manual adjustments require a note")
	}
	return nil
}

// ManualAdjustment builds the draft for an operator correction.
func ManualAdjustment(quantity int64, operator, note string, at time.Time) EntryDraft {
	return EntryDraft{Kind: EntryAdjustment, Quantity: quantity, Operator: operator, Note: note, At: at}
}

// Reconstruct replays entries created at or before asOf on top of baseline.
func Reconstruct(baseline int64, entries []LedgerEntry, asOf time.Time) int64 {
	stock := baseline
	for _, e := range entries {
		if !asOf.IsZero() && e.CreatedAt.After(asOf) {
			continue
		}
		stock += e.Quantity
	}
	return stock
}
