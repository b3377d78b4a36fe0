package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
)

type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*domain.Record
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		records: make(map[string]*domain.Record),
	}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key, requestHash string) (*domain.Record, bool, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok {
		clone := *existing
		return &clone, false, nil
	}

	s.records[key] = &domain.Record{
		Key:         key,
		RequestHash: requestHash,
		State:       domain.StateInProgress,
		CreatedAt:   time.Now().UTC(),
	}
	return nil, true, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	record.State = domain.StateCompleted
	record.ResponseStatus = status
	record.ResponseBody = append([]byte(nil), body...)
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*domain.Record, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *record
	clone.ResponseBody = append([]byte(nil), record.ResponseBody...)
	return &clone, nil
}
