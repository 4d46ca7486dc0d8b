package orders

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// ledgerDraft describes the entry written for a stock-affecting transition.
func ledgerDraft(order Order, to Status, effect Effect, actor, reason string, at time.Time) inventory.EntryDraft {
	return inventory.EntryDraft{
		Kind:     effect.Kind,
		Quantity: effect.Delta,
		Ref:      order.Ref(),
		Operator: actor,
		Note:     entryNote(order, to, reason),
		At:       at,
	}
}

func entryNote(order Order, to Status, reason string) string {
	if to != StatusCanceled {
		return ""
	}
	label := "purchase"
	if order.Direction == DirectionOutbound {
		label = "sales"
	}
	if reason == "" {
		return fmt.Sprintf("%s order %s canceled", label, order.Number)
	}
	return fmt.Sprintf("%s order %s canceled: %s", label, order.Number, reason)
}

// applyStatus stamps the order with the outcome of a transition.
func applyStatus(order Order, to Status, actor, reason string, at time.Time) Order {
	order.Status = to
	order.UpdatedAt = at
	switch to {
	case StatusApproved:
		order.ApprovedBy = actor
		order.ApprovedAt = &at
		order.RejectionReason = ""
	case StatusRejected:
		order.ApprovedBy = actor
		order.ApprovedAt = &at
		order.RejectionReason = reason
	case StatusCanceled:
		order.ClosedBy = actor
		order.ClosedAt = &at
		order.RejectionReason = reason
	case StatusShipped:
		order.ClosedBy = actor
		order.ClosedAt = &at
	}
	return order
}
