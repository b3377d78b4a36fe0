package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

func TestCheckoutSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckoutRepository()

	session := domain.New("chk-1")
	session.Payload.CustomerEmail = "shopper@example.com"
	session.Payload.LineItems = []domain.LineItem{
		{ProductID: "SKU-MUG", Title: "Ceramic Mug", UnitPrice: 1250, Quantity: 2},
	}
	require.NoError(t, repo.Save(ctx, session))

	loaded, err := repo.Get(ctx, "chk-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, domain.StatusInProgress, loaded.Status)
	assert.Equal(t, "shopper@example.com", loaded.Payload.CustomerEmail)
	require.Len(t, loaded.Payload.LineItems, 1)
	assert.Equal(t, 2, loaded.Payload.LineItems[0].Quantity)
}

func TestCheckoutGet_Unknown(t *testing.T) {
	repo := NewCheckoutRepository()

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckoutGet_UnknownPayloadVersionReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckoutRepository()

	session := domain.New("chk-1")
	session.Payload.Version = 99
	require.NoError(t, repo.Save(ctx, session))

	_, err := repo.Get(ctx, "chk-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckoutSaveReplacesPayloadWholesale(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckoutRepository()

	session := domain.New("chk-1")
	session.Payload.LineItems = []domain.LineItem{
		{ProductID: "SKU-MUG", UnitPrice: 1250, Quantity: 1},
	}
	require.NoError(t, repo.Save(ctx, session))

	session.Payload.LineItems = nil
	session.Payload.PaymentRef = "tok_visa"
	require.NoError(t, repo.Save(ctx, session))

	loaded, err := repo.Get(ctx, "chk-1")
	require.NoError(t, err)
	assert.Empty(t, loaded.Payload.LineItems)
	assert.Equal(t, "tok_visa", loaded.Payload.PaymentRef)
}
