package orders

import (
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ErrOrderNotFound indicates a missing order.
var ErrOrderNotFound = fmt.Errorf("orders: order %w", shared.ErrNotFound)

// TransitionError reports an action the order's current status does not allow.
type TransitionError struct {
	Number string
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot %s while %s", e.Number, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return shared.ErrInvalidTransition
}
