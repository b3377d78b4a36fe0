package memory

import (
	"context"
	"sync"

	domain "github.com/ucp-labs/checkout-core/internal/domain/inventory"
)

// InventoryRepository keeps quantities in a map guarded by one mutex; the
// reserve check-and-decrement happens inside a single critical section,
// which is this backend's equivalent of the SQL conditional update.
type InventoryRepository struct {
	mu    sync.RWMutex
	items map[string]int
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		items: make(map[string]int),
	}
}

func (r *InventoryRepository) GetAvailable(ctx context.Context, productID string) (int, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	qty, ok := r.items[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return qty, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	_ = ctx
	if quantity <= 0 {
		return false, domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	qty, ok := r.items[productID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if qty < quantity {
		return false, nil
	}
	r.items[productID] = qty - quantity
	return true, nil
}

func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) error {
	_ = ctx
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[productID] += quantity
	return nil
}

func (r *InventoryRepository) SetQuantity(ctx context.Context, productID string, quantity int) error {
	_ = ctx
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[productID] = quantity
	return nil
}
