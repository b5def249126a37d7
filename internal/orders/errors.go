package orders

import "errors"

var (
	ErrEmptyCart            = errors.New("empty cart")
	ErrMissingCheckoutToken = errors.New("missing checkout token")
	ErrMissingCustomerInfo  = errors.New("missing customer name or email")
	ErrMissingAddress       = errors.New("shipping selected but address incomplete")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrUnknownProduct       = errors.New("unknown product")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotFound             = errors.New("order not found")

	// ErrConflict marks a transaction aborted by a concurrent writer.
	// Safe to retry with the same checkout token.
	ErrConflict = errors.New("persistence conflict")
)
