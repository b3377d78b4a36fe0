package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
)

func TestIdempotencyClaimThenComplete(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()

	existing, claimed, err := store.Claim(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, existing)

	require.NoError(t, store.Complete(ctx, "key-1", 201, []byte(`{"id":"chk-1"}`)))

	record, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, record.State)
	assert.Equal(t, 201, record.ResponseStatus)
	assert.JSONEq(t, `{"id":"chk-1"}`, string(record.ResponseBody))
}

func TestIdempotencyClaim_SecondCallerLoses(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()

	_, claimed, err := store.Claim(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	require.True(t, claimed)

	existing, claimed, err := store.Claim(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, domain.StateInProgress, existing.State)
	assert.Equal(t, "hash-a", existing.RequestHash)
}

func TestIdempotencyRelease_MakesKeyClaimableAgain(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()

	_, claimed, err := store.Claim(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.Release(ctx, "key-1"))

	_, claimed, err = store.Claim(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotencyClaim_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()

	const callers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := store.Claim(ctx, "key-1", "hash-a")
			if err == nil && claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
