package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domain "github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

type checkoutRow struct {
	status    domain.Status
	payload   []byte
	createdAt time.Time
	updatedAt time.Time
}

// CheckoutRepository serializes payloads the same way the SQL backends
// do, so the corrupt-payload-reads-as-absent rule holds here too.
type CheckoutRepository struct {
	mu   sync.RWMutex
	rows map[string]checkoutRow
}

func NewCheckoutRepository() *CheckoutRepository {
	return &CheckoutRepository{
		rows: make(map[string]checkoutRow),
	}
}

func (r *CheckoutRepository) Save(ctx context.Context, session *domain.Session) error {
	_ = ctx
	if session == nil || session.ID == "" {
		return fmt.Errorf("checkout repository: id is required")
	}

	payload, err := json.Marshal(session.Payload)
	if err != nil {
		return fmt.Errorf("checkout repository: encode payload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[session.ID] = checkoutRow{
		status:    session.Status,
		payload:   payload,
		createdAt: session.CreatedAt,
		updatedAt: session.UpdatedAt,
	}
	return nil
}

func (r *CheckoutRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	_ = ctx

	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrNotFound
	}

	var payload domain.Payload
	if err := json.Unmarshal(row.payload, &payload); err != nil {
		// A corrupt session cannot be resumed; report it as absent.
		return nil, domain.ErrNotFound
	}
	if payload.Version != domain.PayloadVersion {
		return nil, domain.ErrNotFound
	}

	return &domain.Session{
		ID:        id,
		Status:    row.status,
		Payload:   payload,
		CreatedAt: row.createdAt,
		UpdatedAt: row.updatedAt,
	}, nil
}
