package orders

import "github.com/odyssey-erp/stockledger/internal/inventory"

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCanceled,
	},
	StatusApproved: {
		ActionCancel: StatusCanceled,
		ActionShip:   StatusShipped,
	},
}

// NextStatus resolves action against the order's current status.
func NextStatus(order Order, action Action) (Status, error) {
	to, ok := transitions[order.Status][action]
	if !ok || (action == ActionShip && order.Direction != DirectionOutbound) {
		return "", &TransitionError{Number: order.Number, From: order.Status, Action: action}
	}
	return to, nil
}

// Effect is the stock consequence of a status change.
type Effect struct {
	Delta int64
	Kind  inventory.EntryKind
}

// None reports whether the change leaves stock untouched.
func (e Effect) None() bool {
	return e.Delta == 0
}

// Plan is the single mapping from a status change to its stock
// movement. Approval moves stock in the order's direction; cancelling an
// approved order reverses it. Every other change has no effect.
func Plan(from, to Status, direction Direction, quantity int64) Effect {
	sign := int64(1)
	if direction == DirectionOutbound {
		sign = -1
	}
	switch {
	case from == StatusPending && to == StatusApproved:
		kind := inventory.EntryIn
		if direction == DirectionOutbound {
			kind = inventory.EntryOut
		}
		return Effect{Delta: sign * quantity, Kind: kind}
	case from == StatusApproved && to == StatusCanceled:
		return Effect{Delta: -sign * quantity, Kind: inventory.EntryAdjustment}
	}
	return Effect{}
}
