package inventory

import (
	"context"
)

// Ledger tracks available quantity per product.
//
// Reserve must be a single atomic compare-and-decrement: it succeeds only
// when the recorded quantity covers the request and returns (false, nil)
// otherwise. A false return is authoritative; no retries happen inside.
// Release unconditionally increments; it is the compensating half of a
// reservation and callers must not release the same reservation twice.
type Ledger interface {
	GetAvailable(ctx context.Context, productID string) (int, error)
	Reserve(ctx context.Context, productID string, quantity int) (bool, error)
	Release(ctx context.Context, productID string, quantity int) error
	SetQuantity(ctx context.Context, productID string, quantity int) error
}
