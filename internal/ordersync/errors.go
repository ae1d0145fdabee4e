package ordersync

import (
	"errors"
	"fmt"
)

// ErrMissingBillingEmail is returned when no customer can be resolved
// because the order has no usable billing email.
var ErrMissingBillingEmail = errors.New("order has no valid billing email")

// StepError reports the workflow step that failed.
type StepError struct {
	OrderID int64
	State   State // Step being attempted
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("ordersync: order %d: %s: %v", e.OrderID, e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
