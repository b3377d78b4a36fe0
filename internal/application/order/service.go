package order

import (
	"context"
	"fmt"

	"github.com/ucp-labs/checkout-core/internal/application"
	domain "github.com/ucp-labs/checkout-core/internal/domain/order"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

// Service covers the post-purchase order surface. Status is the only
// field that changes after placement.
type Service struct {
	repo domain.Repository
	log  observability.Logger
}

func NewService(repo domain.Repository, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo: repo,
		log:  logger.With(observability.F("component", "order_service")),
	}
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, application.NewValidation("order id is required")
	}
	return s.repo.Get(ctx, orderID)
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	if orderID == "" {
		return nil, application.NewValidation("order id is required")
	}
	if !domain.ValidStatus(status) {
		return nil, application.NewValidation("unknown order status %q", status)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, fmt.Errorf("order: update status %s: %w", orderID, err)
	}
	logctx.FromOr(ctx, s.log).Info("order_status_updated",
		observability.F("order_id", orderID),
		observability.F("status", string(status)),
	)
	return s.repo.Get(ctx, orderID)
}
