package order

import (
	"errors"
	"time"

	"github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

var (
	ErrNotFound      = errors.New("order: not found")
	ErrConflict      = errors.New("order: already exists")
	ErrInvalidStatus = errors.New("order: invalid status")
)

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusPlaced, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Order is the immutable record a checkout becomes at commit time. The
// payload is the frozen snapshot of the session plus the provider's
// order number; after creation only the status may change.
type Order struct {
	ID         string
	CheckoutID string
	Status     Status
	Payload    checkout.Payload
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func New(id, checkoutID string, payload checkout.Payload) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:         id,
		CheckoutID: checkoutID,
		Status:     StatusPlaced,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Payload = o.Payload.Clone()
	return &clone
}
