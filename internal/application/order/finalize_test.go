package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucp-labs/checkout-core/internal/application"
	domcheckout "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	dominv "github.com/ucp-labs/checkout-core/internal/domain/inventory"
	domain "github.com/ucp-labs/checkout-core/internal/domain/order"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/memory"
	"github.com/ucp-labs/checkout-core/internal/infrastructure/staticcatalog"
	"github.com/ucp-labs/checkout-core/internal/observability"
)

type placeOrderFixture struct {
	sessions *memory.CheckoutRepository
	orders   *memory.OrderRepository
	ledger   *memory.InventoryRepository
	uc       *PlaceOrderUseCase
}

func newPlaceOrderFixture(provider OrderProvider) *placeOrderFixture {
	f := &placeOrderFixture{
		sessions: memory.NewCheckoutRepository(),
		orders:   memory.NewOrderRepository(),
		ledger:   memory.NewInventoryRepository(),
	}
	if provider == nil {
		provider = staticcatalog.New()
	}
	f.uc = NewPlaceOrderUseCase(f.sessions, f.orders, f.ledger, provider, observability.Nop())
	return f
}

func (f *placeOrderFixture) seedSession(t *testing.T, id string, items ...domcheckout.LineItem) *domcheckout.Session {
	t.Helper()
	session := domcheckout.New(id)
	session.Payload.LineItems = items
	session.Payload.ShippingAddress = &domcheckout.Address{
		FirstName:     "Ada",
		LastName:      "Lovelace",
		StreetAddress: "1 Analytical Way",
		Locality:      "London",
		Country:       "GB",
	}
	session.Payload.PaymentRef = "tok_visa"
	require.NoError(t, f.sessions.Save(context.Background(), session))
	return session
}

func (f *placeOrderFixture) stock(t *testing.T, productID string, quantity int) {
	t.Helper()
	require.NoError(t, f.ledger.SetQuantity(context.Background(), productID, quantity))
}

func (f *placeOrderFixture) available(t *testing.T, productID string) int {
	t.Helper()
	available, err := f.ledger.GetAvailable(context.Background(), productID)
	require.NoError(t, err)
	return available
}

func TestPlaceOrder_Success(t *testing.T) {
	ctx := context.Background()
	f := newPlaceOrderFixture(nil)
	f.stock(t, "SKU-MUG", 10)
	f.stock(t, "SKU-TSHIRT", 4)
	f.seedSession(t, "chk-1",
		domcheckout.LineItem{ProductID: "SKU-MUG", UnitPrice: 1250, Quantity: 2},
		domcheckout.LineItem{ProductID: "SKU-TSHIRT", UnitPrice: 1999, Quantity: 1},
	)

	result, err := f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})
	require.NoError(t, err)
	require.NotNil(t, result.Order)

	assert.Equal(t, "ORD-chk-1", result.Order.ID)
	assert.Equal(t, "chk-1", result.Order.CheckoutID)
	assert.Equal(t, domain.StatusPlaced, result.Order.Status)
	assert.NotEmpty(t, result.Order.Payload.ProviderOrderNo)

	assert.Equal(t, 8, f.available(t, "SKU-MUG"))
	assert.Equal(t, 3, f.available(t, "SKU-TSHIRT"))

	stored, err := f.orders.Get(ctx, "ORD-chk-1")
	require.NoError(t, err)
	assert.Equal(t, result.Order.Payload.ProviderOrderNo, stored.Payload.ProviderOrderNo)

	session, err := f.sessions.Get(ctx, "chk-1")
	require.NoError(t, err)
	assert.Equal(t, domcheckout.StatusCompleted, session.Status)
	assert.Equal(t, result.Order.Payload.ProviderOrderNo, session.Payload.ProviderOrderNo)
}

func TestPlaceOrder_NilObservabilityFallsBackToNops(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewCheckoutRepository()
	orders := memory.NewOrderRepository()
	ledger := memory.NewInventoryRepository()
	require.NoError(t, ledger.SetQuantity(ctx, "SKU-MUG", 5))

	uc := NewPlaceOrderUseCase(sessions, orders, ledger, staticcatalog.New(), nil)

	session := domcheckout.New("chk-1")
	session.Payload.LineItems = []domcheckout.LineItem{{ProductID: "SKU-MUG", Quantity: 1}}
	session.Payload.ShippingAddress = &domcheckout.Address{
		StreetAddress: "1 Analytical Way",
		Locality:      "London",
		Country:       "GB",
	}
	session.Payload.PaymentRef = "tok_visa"
	require.NoError(t, sessions.Save(ctx, session))

	result, err := uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-chk-1", result.Order.ID)
}

func TestPlaceOrder_InsufficientStockReleasesAcquiredReservations(t *testing.T) {
	ctx := context.Background()
	f := newPlaceOrderFixture(nil)
	f.stock(t, "SKU-MUG", 5)
	f.stock(t, "SKU-TSHIRT", 5)
	f.stock(t, "SKU-POSTER", 1)
	f.seedSession(t, "chk-1",
		domcheckout.LineItem{ProductID: "SKU-MUG", Quantity: 2},
		domcheckout.LineItem{ProductID: "SKU-TSHIRT", Quantity: 3},
		domcheckout.LineItem{ProductID: "SKU-POSTER", Quantity: 2},
	)

	_, err := f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})

	var insufficient *dominv.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SKU-POSTER", insufficient.ProductID)
	assert.Equal(t, 2, insufficient.Requested)
	assert.Equal(t, 1, insufficient.Available)

	// Reservations taken before the failing item are compensated.
	assert.Equal(t, 5, f.available(t, "SKU-MUG"))
	assert.Equal(t, 5, f.available(t, "SKU-TSHIRT"))
	assert.Equal(t, 1, f.available(t, "SKU-POSTER"))

	session, err := f.sessions.Get(ctx, "chk-1")
	require.NoError(t, err)
	assert.Equal(t, domcheckout.StatusInProgress, session.Status)
}

func TestPlaceOrder_UnknownProductTreatedAsOutOfStock(t *testing.T) {
	ctx := context.Background()
	f := newPlaceOrderFixture(nil)
	f.stock(t, "SKU-MUG", 5)
	f.seedSession(t, "chk-1",
		domcheckout.LineItem{ProductID: "SKU-MUG", Quantity: 1},
		domcheckout.LineItem{ProductID: "SKU-GHOST", Quantity: 1},
	)

	_, err := f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})

	var insufficient *dominv.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SKU-GHOST", insufficient.ProductID)
	assert.Equal(t, 0, insufficient.Available)
	assert.Equal(t, 5, f.available(t, "SKU-MUG"))
}

type failingProvider struct{ err error }

func (p failingProvider) SubmitOrder(context.Context, *domcheckout.Session) (string, error) {
	return "", p.err
}

func TestPlaceOrder_ProviderFailureReleasesAllReservations(t *testing.T) {
	ctx := context.Background()
	providerErr := errors.New("gateway timeout")
	f := newPlaceOrderFixture(failingProvider{err: providerErr})
	f.stock(t, "SKU-MUG", 5)
	f.stock(t, "SKU-TSHIRT", 5)
	f.seedSession(t, "chk-1",
		domcheckout.LineItem{ProductID: "SKU-MUG", Quantity: 2},
		domcheckout.LineItem{ProductID: "SKU-TSHIRT", Quantity: 1},
	)

	_, err := f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})
	require.ErrorIs(t, err, providerErr)

	assert.Equal(t, 5, f.available(t, "SKU-MUG"))
	assert.Equal(t, 5, f.available(t, "SKU-TSHIRT"))

	_, err = f.orders.Get(ctx, "ORD-chk-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	session, err := f.sessions.Get(ctx, "chk-1")
	require.NoError(t, err)
	assert.Equal(t, domcheckout.StatusInProgress, session.Status)
}

func TestPlaceOrder_ValidatesSessionBeforeTouchingStock(t *testing.T) {
	ctx := context.Background()
	f := newPlaceOrderFixture(nil)
	f.stock(t, "SKU-MUG", 5)

	_, err := f.uc.Execute(ctx, PlaceOrderInput{})
	assert.True(t, application.IsValidation(err))

	_, err = f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "missing"})
	assert.ErrorIs(t, err, domcheckout.ErrNotFound)

	empty := domcheckout.New("chk-empty")
	require.NoError(t, f.sessions.Save(ctx, empty))
	_, err = f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-empty"})
	assert.True(t, application.IsValidation(err))

	noAddress := domcheckout.New("chk-noaddr")
	noAddress.Payload.LineItems = []domcheckout.LineItem{{ProductID: "SKU-MUG", Quantity: 1}}
	require.NoError(t, f.sessions.Save(ctx, noAddress))
	_, err = f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-noaddr"})
	assert.True(t, application.IsValidation(err))

	noPayment := f.seedSession(t, "chk-nopay",
		domcheckout.LineItem{ProductID: "SKU-MUG", Quantity: 1},
	)
	noPayment.Payload.PaymentRef = ""
	require.NoError(t, f.sessions.Save(ctx, noPayment))
	_, err = f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-nopay"})
	assert.True(t, application.IsValidation(err))

	assert.Equal(t, 5, f.available(t, "SKU-MUG"), "validation failures must not move stock")
}

func TestPlaceOrder_CompletedSessionRejected(t *testing.T) {
	ctx := context.Background()
	f := newPlaceOrderFixture(nil)
	session := f.seedSession(t, "chk-1",
		domcheckout.LineItem{ProductID: "SKU-MUG", Quantity: 1},
	)
	session.MarkCompleted()
	require.NoError(t, f.sessions.Save(ctx, session))

	_, err := f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})
	assert.ErrorIs(t, err, domcheckout.ErrCompleted)
}

func TestPlaceOrder_DuplicateOrderReleasesStock(t *testing.T) {
	ctx := context.Background()
	f := newPlaceOrderFixture(nil)
	f.stock(t, "SKU-MUG", 5)
	session := f.seedSession(t, "chk-1",
		domcheckout.LineItem{ProductID: "SKU-MUG", Quantity: 2},
	)

	require.NoError(t, f.orders.Insert(ctx, domain.New("ORD-chk-1", "chk-1", session.Payload.Clone())))

	_, err := f.uc.Execute(ctx, PlaceOrderInput{CheckoutID: "chk-1"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 5, f.available(t, "SKU-MUG"))
}
