package order

import (
	"context"

	"github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

// OrderProvider submits a finalizable session to the remote commerce
// backend and returns the provider's order number.
type OrderProvider interface {
	SubmitOrder(ctx context.Context, session *checkout.Session) (string, error)
}
