package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	// EntryIn records stock received from an approved purchase.
	EntryIn EntryKind = "IN"
	// EntryOut records stock released by an approved sale.
	EntryOut EntryKind = "OUT"
	// EntryAdjustment records a reversal or a manual correction.
	EntryAdjustment EntryKind = "ADJUSTMENT"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryIn, EntryOut, EntryAdjustment:
		return true
	}
	return false
}

// RefKind tags which kind of order produced an entry.
type RefKind string

const (
	RefPurchase RefKind = "PURCHASE"
	RefSales    RefKind = "SALES"
)

// OrderRef identifies the order behind a ledger entry. A nil *OrderRef on an
// entry means a manual adjustment.
type OrderRef struct {
	Kind    RefKind `json:"kind"`
	OrderID int64   `json:"order_id"`
	Number  string  `json:"number"`
}

// Product carries the per-product stock counter and its reconstruction base.
type Product struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	BaselineStock  int64           `json:"baseline_stock"`
	CurrentStock   int64           `json:"current_stock"`
	AlertThreshold int64           `json:"alert_threshold"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LedgerEntry is one immutable stock movement.
type LedgerEntry struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	Kind         EntryKind `json:"kind"`
	Quantity     int64     `json:"quantity"`
	BalanceAfter int64     `json:"balance_after"`
	Ref          *OrderRef `json:"ref,omitempty"`
	Operator     string    `json:"operator"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EntryDraft describes an entry that has not been appended yet. Quantity is
// signed: positive adds stock, negative removes it.
type EntryDraft struct {
	Kind     EntryKind
	Quantity int64
	Ref      *OrderRef
	Operator string
	Note     string
	At       time.Time
}

// StockStatus is the alert classification of a stock level.
type StockStatus string

const (
	StockOutOfStock StockStatus = "OUT_OF_STOCK"
	StockLow        StockStatus = "LOW"
	StockNormal     StockStatus = "NORMAL"
)

// ClassifyStock maps a stock level against its alert threshold.
func ClassifyStock(stock, threshold int64) StockStatus {
	switch {
	case stock <= 0:
		return StockOutOfStock
	case stock < threshold:
		return StockLow
	default:
		return StockNormal
	}
}

// StockSnapshot is the read model served to callers and cached in Redis.
type StockSnapshot struct {
	ProductID      int64       `json:"product_id"`
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	CurrentStock   int64       `json:"current_stock"`
	AlertThreshold int64       `json:"alert_threshold"`
	Status         StockStatus `json:"status"`
	AsOf           time.Time   `json:"as_of"`
}

// SnapshotOf builds the snapshot of p at time at.
func SnapshotOf(p Product, at time.Time) StockSnapshot {
	return StockSnapshot{
		ProductID:      p.ID,
		Code:           p.Code,
		Name:           p.Name,
		CurrentStock:   p.CurrentStock,
		AlertThreshold: p.AlertThreshold,
		Status:         ClassifyStock(p.CurrentStock, p.AlertThreshold),
		AsOf:           at,
	}
}

// StockValue is a product's stock valued at its unit price.
type StockValue struct {
	ProductID    int64           `json:"product_id"`
	Code         string          `json:"code"`
	CurrentStock int64           `json:"current_stock"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Value        decimal.Decimal `json:"value"`
}

// ConsistencyReport compares the stored counter against the ledger replay.
type ConsistencyReport struct {
	ProductID     int64     `json:"product_id"`
	Code          string    `json:"code"`
	Stored        int64     `json:"stored"`
	Reconstructed int64     `json:"reconstructed"`
	Consistent    bool      `json:"consistent"`
	CheckedAt     time.Time `json:"checked_at"`
}

// LedgerFilter selects entries for one product.
type LedgerFilter struct {
	ProductID int64
	Since     time.Time
	Limit     int
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	LowStock   bool
	OutOfStock bool
	Limit      int
	Offset     int
}

// RegisterProductInput registers a product with its opening stock.
type RegisterProductInput struct {
	Code           string          `json:"code" validate:"required,max=20"`
	Name           string          `json:"name" validate:"required,max=100"`
	Unit           string          `json:"unit" validate:"omitempty,oneof=PCS KG M BOX"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	OpeningStock   int64           `json:"opening_stock" validate:"gte=0"`
	AlertThreshold int64           `json:"alert_threshold" validate:"gte=0"`
	Actor          string          `json:"-" validate:"required,max=50"`
}

// AdjustmentInput is a manual stock correction.
type AdjustmentInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"ne=0"`
	Note      string `json:"note" validate:"required,max=500"`
	Actor     string `json:"-" validate:"required,max=50"`
}

const (
	defaultLedgerLimit = 200
	maxLedgerLimit     = 1000
	defaultUnit        = "PCS"
)
