package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("inventory: product not found")
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
)

// InsufficientStockError reports which product a reservation failed on.
// It is an expected business outcome, not a system fault; the finalizer
// compensates reservations already taken and surfaces this to the caller.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s (requested %d, available %d)",
		e.ProductID, e.Requested, e.Available)
}

// Reservation records one successful decrement so a failed later step of
// the same attempt can unwind it exactly once.
type Reservation struct {
	ProductID string
	Quantity  int
}
