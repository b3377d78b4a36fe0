package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ucp-labs/checkout-core/internal/domain/inventory"
)

func TestInventoryReserve_Succeeds(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.SetQuantity(ctx, "P1", 5))

	ok, err := repo.Reserve(ctx, "P1", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	available, err := repo.GetAvailable(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestInventoryReserve_InsufficientStockLeavesQuantityUntouched(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.SetQuantity(ctx, "P1", 2))

	ok, err := repo.Reserve(ctx, "P1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	available, err := repo.GetAvailable(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestInventoryReserve_UnknownProduct(t *testing.T) {
	repo := NewInventoryRepository()

	_, err := repo.Reserve(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventoryReserve_InvalidQuantity(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.SetQuantity(ctx, "P1", 5))

	_, err := repo.Reserve(ctx, "P1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = repo.Reserve(ctx, "P1", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestInventoryReleaseRestoresReservedStock(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.SetQuantity(ctx, "P1", 5))

	ok, err := repo.Reserve(ctx, "P1", 3)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Release(ctx, "P1", 3))

	available, err := repo.GetAvailable(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

// Many goroutines race on the same row; the sum of successful
// reservations must never exceed the starting quantity and the counter
// must never go negative.
func TestInventoryReserve_ConcurrentStorm(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()

	const stock = 50
	const workers = 200
	require.NoError(t, repo.SetQuantity(ctx, "P1", stock))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Reserve(ctx, "P1", 1)
			if err != nil {
				return
			}
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)

	available, err := repo.GetAvailable(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}
