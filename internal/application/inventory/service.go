package inventory

import (
	"context"
	"fmt"

	"github.com/ucp-labs/checkout-core/internal/application"
	dominv "github.com/ucp-labs/checkout-core/internal/domain/inventory"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

// Service is the admin surface over the stock ledger. Reservations go
// through the order finalizer, never through here.
type Service struct {
	ledger dominv.Ledger
	log    observability.Logger
}

func NewService(ledger dominv.Ledger, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		ledger: ledger,
		log:    logger.With(observability.F("component", "inventory_service")),
	}
}

func (s *Service) GetAvailable(ctx context.Context, productID string) (int, error) {
	if productID == "" {
		return 0, application.NewValidation("product id is required")
	}
	return s.ledger.GetAvailable(ctx, productID)
}

// SetQuantity overwrites the recorded stock level for a product,
// creating the row when absent.
func (s *Service) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return application.NewValidation("product id is required")
	}
	if quantity < 0 {
		return application.NewValidation("quantity must not be negative")
	}

	if err := s.ledger.SetQuantity(ctx, productID, quantity); err != nil {
		return fmt.Errorf("inventory: set quantity %s: %w", productID, err)
	}
	logctx.FromOr(ctx, s.log).Info("inventory_quantity_set",
		observability.F("product_id", productID),
		observability.F("quantity", quantity),
	)
	return nil
}

// Seed sets the initial stock level for each product id that has no
// ledger row yet. Existing rows are left untouched.
func (s *Service) Seed(ctx context.Context, productIDs []string, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	for _, id := range productIDs {
		if _, err := s.ledger.GetAvailable(ctx, id); err == nil {
			continue
		}
		if err := s.ledger.SetQuantity(ctx, id, quantity); err != nil {
			return fmt.Errorf("inventory: seed %s: %w", id, err)
		}
	}
	return nil
}
