package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ucp-labs/checkout-core/internal/application"
	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
	domain "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

const componentService = "checkout_service"

// IDGenerator issues identifiers for new sessions.
type IDGenerator interface {
	NewID() string
}

// CouponValidator resolves a coupon code into a concrete discount. The
// dev catalog implements it; against the remote provider coupons are
// applied at order submission instead, so the validator may be nil.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string, subtotal int64) (domain.Discount, error)
}

// Service owns the checkout session lifecycle up to (but excluding)
// order placement. Every mutation is a read-modify-write against the
// repository followed by a full totals rebuild.
type Service struct {
	repo     domain.Repository
	products catalog.Provider
	coupons  CouponValidator
	ids      IDGenerator
	log      observability.Logger
}

func NewService(
	repo domain.Repository,
	products catalog.Provider,
	coupons CouponValidator,
	ids IDGenerator,
	logger observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo:     repo,
		products: products,
		coupons:  coupons,
		ids:      ids,
		log:      logger.With(observability.F("component", componentService)),
	}
}

// Get returns the session or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, checkoutID string) (*domain.Session, error) {
	if checkoutID == "" {
		return nil, application.NewValidation("checkout id is required")
	}
	return s.repo.Get(ctx, checkoutID)
}

// AddItem adds a product to the session. The session is created on
// first mutation: a missing checkoutID gets a generated id, an unknown
// one is adopted as a client-chosen id. Adding an existing product
// merges quantities.
func (s *Service) AddItem(ctx context.Context, checkoutID, productID string, quantity int) (*domain.Session, error) {
	if productID == "" {
		return nil, application.NewValidation("product id is required")
	}
	if quantity <= 0 {
		return nil, application.NewValidation("quantity must be greater than zero")
	}

	created := false
	var session *domain.Session
	if checkoutID == "" {
		session = domain.New(s.ids.NewID())
		created = true
	} else {
		var err error
		session, err = s.loadMutable(ctx, checkoutID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// First mutation for a client-chosen id creates the session.
			session = domain.New(checkoutID)
			created = true
		case err != nil:
			return nil, err
		}
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, application.NewValidation("unknown product %q", productID)
		}
		return nil, fmt.Errorf("checkout: product lookup: %w", err)
	}

	if li := session.Payload.FindLineItem(productID); li != nil {
		li.Quantity += quantity
	} else {
		session.Payload.LineItems = append(session.Payload.LineItems, domain.LineItem{
			ProductID: product.ID,
			Title:     product.Title,
			UnitPrice: product.Price,
			ImageURL:  product.ImageURL,
			Quantity:  quantity,
		})
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	if created {
		logctx.FromOr(ctx, s.log).Info("checkout_created",
			observability.F("checkout_id", session.ID),
			observability.F("product_id", productID),
		)
	}
	return session, nil
}

// UpdateItemQuantity replaces the quantity of an existing line item.
func (s *Service) UpdateItemQuantity(ctx context.Context, checkoutID, productID string, quantity int) (*domain.Session, error) {
	if quantity <= 0 {
		return nil, application.NewValidation("quantity must be greater than zero")
	}
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}

	li := session.Payload.FindLineItem(productID)
	if li == nil {
		return nil, application.NewValidation("product %q is not in the checkout", productID)
	}
	li.Quantity = quantity

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// RemoveItem drops a line item from the session.
func (s *Service) RemoveItem(ctx context.Context, checkoutID, productID string) (*domain.Session, error) {
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range session.Payload.LineItems {
		if session.Payload.LineItems[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, application.NewValidation("product %q is not in the checkout", productID)
	}
	session.Payload.LineItems = slices.Delete(session.Payload.LineItems, idx, idx+1)

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) SetCustomer(ctx context.Context, checkoutID, email string) (*domain.Session, error) {
	if email == "" {
		return nil, application.NewValidation("email is required")
	}
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	session.Payload.CustomerEmail = email

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetAddress stores the shipping address. The first address attaches the
// fulfillment options with standard shipping preselected.
func (s *Service) SetAddress(ctx context.Context, checkoutID string, address domain.Address) (*domain.Session, error) {
	if address.StreetAddress == "" || address.Locality == "" || address.Country == "" {
		return nil, application.NewValidation("street address, locality, and country are required")
	}
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}

	session.Payload.ShippingAddress = &address
	if session.Payload.Fulfillment == nil {
		session.Payload.Fulfillment = &domain.Fulfillment{
			Options:          fulfillmentOptions(),
			SelectedOptionID: domain.FulfillmentStandard,
		}
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) SelectFulfillment(ctx context.Context, checkoutID, optionID string) (*domain.Session, error) {
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if session.Payload.Fulfillment == nil {
		return nil, application.NewValidation("set a shipping address before selecting fulfillment")
	}

	found := false
	for _, opt := range session.Payload.Fulfillment.Options {
		if opt.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return nil, application.NewValidation("unknown fulfillment option %q", optionID)
	}
	session.Payload.Fulfillment.SelectedOptionID = optionID

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) SetPaymentInstrument(ctx context.Context, checkoutID, paymentRef string) (*domain.Session, error) {
	if paymentRef == "" {
		return nil, application.NewValidation("payment reference is required")
	}
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	session.Payload.PaymentRef = paymentRef

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ApplyCoupon records the code on the session. When a validator is
// available the resolved discount lands in the totals immediately;
// otherwise the code rides along with a zero amount and the provider
// prices it at order submission.
func (s *Service) ApplyCoupon(ctx context.Context, checkoutID, code string) (*domain.Session, error) {
	if code == "" {
		return nil, application.NewValidation("coupon code is required")
	}
	session, err := s.loadMutable(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(session.Payload.CouponCodes, code) {
		return nil, application.NewValidation("coupon %q is already applied", code)
	}

	discount := domain.Discount{Code: code, Title: "Coupon: " + code}
	if s.coupons != nil {
		resolved, err := s.coupons.ValidateCoupon(ctx, code, session.Payload.Total(domain.TotalSubtotal))
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, application.NewValidation("unknown coupon %q", code)
			}
			logctx.FromOr(ctx, s.log).Warn("coupon_validation_unavailable",
				observability.F("checkout_id", checkoutID),
				observability.F("code", code),
				observability.F("error", err.Error()),
			)
		} else {
			discount = resolved
		}
	}

	session.Payload.CouponCodes = append(session.Payload.CouponCodes, code)
	if discount.Amount > 0 {
		session.Payload.AppliedDiscounts = append(session.Payload.AppliedDiscounts, discount)
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) loadMutable(ctx context.Context, checkoutID string) (*domain.Session, error) {
	if checkoutID == "" {
		return nil, application.NewValidation("checkout id is required")
	}
	session, err := s.repo.Get(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if !session.Mutable() {
		return nil, domain.ErrCompleted
	}
	return session, nil
}

func (s *Service) save(ctx context.Context, session *domain.Session) error {
	recalculate(&session.Payload)
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, session); err != nil {
		return fmt.Errorf("checkout: save %s: %w", session.ID, err)
	}
	return nil
}
