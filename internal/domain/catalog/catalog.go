package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("catalog: product not found")

// ProviderError marks a failure talking to the remote shopper API.
// Callers treat it as retryable.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return "catalog: provider " + e.Op + ": " + e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// Product is owned by the remote catalog; the checkout core only reads it.
type Product struct {
	ID       string
	Title    string
	Price    int64 // minor currency units
	ImageURL string
	Category string
}

// Provider is the remote catalog collaborator.
type Provider interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	SearchProducts(ctx context.Context, query string) ([]*Product, error)
}
