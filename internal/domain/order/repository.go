package order

import "context"

// Repository stores committed orders. Insert creates exactly one row per
// finalization and fails with ErrConflict on reuse of an id;
// UpdateStatus is the only mutation allowed after commit and fails with
// ErrNotFound when the order does not already exist.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
