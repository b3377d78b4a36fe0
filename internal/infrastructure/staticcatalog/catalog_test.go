package staticcatalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
)

func TestSearchProducts_IncludesRegisteredProducts(t *testing.T) {
	ctx := context.Background()
	p := New()

	p.Add(catalog.Product{ID: "SKU-SCARF", Title: "Wool Scarf", Price: 2900, Category: "apparel"})

	results, err := p.SearchProducts(ctx, "scarf")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "SKU-SCARF", results[0].ID)

	all, err := p.SearchProducts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, len(defaultProducts)+1)
}

func TestSearchProducts_EmptyQueryIsSortedByID(t *testing.T) {
	ctx := context.Background()
	p := New()

	all, err := p.SearchProducts(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func TestGetProduct_Unknown(t *testing.T) {
	p := New()

	_, err := p.GetProduct(context.Background(), "SKU-GHOST")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
