package invoice

import (
	"errors"
	"fmt"
)

// Common line building errors
var (
	// ErrNoInvoiceLines is returned when an order yields no line at all, for
	// example when every product was fully refunded and nothing else remains.
	ErrNoInvoiceLines = errors.New("no invoice line could be generated for this order")

	// ErrInvalidOrder is returned when the order snapshot is unusable.
	ErrInvalidOrder = errors.New("invalid order snapshot")
)

// BuildError wraps errors with the order they were raised for.
type BuildError struct {
	// OrderID is the local order identifier.
	OrderID int64

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("invoice: order %d: %s: %v", e.OrderID, e.Details, e.Err)
	}
	return fmt.Sprintf("invoice: order %d: %v", e.OrderID, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *BuildError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newBuildError(orderID int64, err error, details string) *BuildError {
	return &BuildError{
		OrderID: orderID,
		Err:     err,
		Details: details,
	}
}
