// Package store persists the remote references attached to orders, users
// and products, the per-order sync marker, and order notes.
package store

import (
	"errors"
	"fmt"
)

// ErrRefAlreadySet is returned when a write-once reference already holds a
// different value.
var ErrRefAlreadySet = errors.New("reference already set")

// RefError names the reference a write was refused for.
type RefError struct {
	Kind     string // customer, document, payment
	OrderID  int64
	Existing string
	Err      error
}

func (e *RefError) Error() string {
	return fmt.Sprintf("store: order %d %s reference is %q: %v", e.OrderID, e.Kind, e.Existing, e.Err)
}

func (e *RefError) Unwrap() error { return e.Err }

// Reference kinds stored per order.
const (
	RefCustomer = "customer"
	RefDocument = "document"
	RefPayment  = "payment"
)

func refColumn(kind string) (string, error) {
	switch kind {
	case RefCustomer:
		return "customer_ref", nil
	case RefDocument:
		return "document_ref", nil
	case RefPayment:
		return "payment_ref", nil
	}
	return "", fmt.Errorf("store: unknown reference kind %q", kind)
}
