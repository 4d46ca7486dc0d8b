package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// Direction tells whether an order brings stock in or takes it out.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Prefix returns the document number prefix.
func (d Direction) Prefix() string {
	if d == DirectionOutbound {
		return "SO"
	}
	return "PO"
}

// RefKind maps the direction to the ledger reference tag.
func (d Direction) RefKind() inventory.RefKind {
	if d == DirectionOutbound {
		return inventory.RefSales
	}
	return inventory.RefPurchase
}

// Status is the order lifecycle state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusShipped  Status = "SHIPPED"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusShipped, StatusCanceled:
		return true
	}
	return false
}

// Action is a requested lifecycle move.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionShip    Action = "ship"
	ActionAmend   Action = "amend"
	ActionDelete  Action = "delete"
)

// Target returns the status a transition action leads to.
func (a Action) Target() Status {
	switch a {
	case ActionApprove:
		return StatusApproved
	case ActionReject:
		return StatusRejected
	case ActionCancel:
		return StatusCanceled
	case ActionShip:
		return StatusShipped
	}
	return ""
}

// Order is a purchase (inbound) or sales (outbound) order for one product.
type Order struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	Direction       Direction       `json:"direction"`
	ProductID       int64           `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Discount        decimal.Decimal `json:"discount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	Operator        string          `json:"operator"`
	Counterparty    string          `json:"counterparty,omitempty"`
	ExpectedDate    *time.Time      `json:"expected_date,omitempty"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ClosedBy        string          `json:"closed_by,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Ref builds the ledger reference pointing at o.
func (o Order) Ref() *inventory.OrderRef {
	return &inventory.OrderRef{Kind: o.Direction.RefKind(), OrderID: o.ID, Number: o.Number}
}

// ApprovalModule names the approval trail of o.
func (o Order) ApprovalModule() string {
	return o.Direction.Prefix()
}

var hundred = decimal.NewFromInt(100)

// ComputeTotal prices quantity units. Outbound orders apply a percentage
// discount. The result is rounded to cents.
func ComputeTotal(direction Direction, quantity int64, unitPrice, discount decimal.Decimal) decimal.Decimal {
	total := unitPrice.Mul(decimal.NewFromInt(quantity))
	if direction == DirectionOutbound && !discount.IsZero() {
		total = total.Mul(hundred.Sub(discount)).Div(hundred)
	}
	return total.Round(2)
}

// CreateInput captures a new order.
type CreateInput struct {
	Direction       Direction       `json:"direction" validate:"required,oneof=INBOUND OUTBOUND"`
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        int64           `json:"quantity" validate:"gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Discount        decimal.Decimal `json:"discount"`
	Number          string          `json:"number" validate:"max=50"`
	Counterparty    string          `json:"counterparty" validate:"max=100"`
	ExpectedDate    *time.Time      `json:"expected_date"`
	ShippingAddress string          `json:"shipping_address" validate:"max=500"`
	Operator        string          `json:"-" validate:"required,max=50"`
	IdempotencyKey  string          `json:"-" validate:"max=128"`
}

// AmendInput changes commercial terms of a pending order. Nil fields are kept.
type AmendInput struct {
	Quantity  *int64           `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Discount  *decimal.Decimal `json:"discount"`
	Actor     string           `json:"-"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status    Status
	Direction Direction
	ProductID int64
	Page      int
	PerPage   int
}

// Result reports the outcome of a transition request. Applied is false when
// the order already had the target status and nothing changed.
type Result struct {
	Order   Order                  `json:"order"`
	From    Status                 `json:"from"`
	Applied bool                   `json:"applied"`
	Entry   *inventory.LedgerEntry `json:"entry,omitempty"`
	Product *inventory.Product     `json:"-"`
}
