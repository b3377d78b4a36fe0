package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domain "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
)

const (
	// Key layout: idem:checkout:{key} -> JSON record.
	keyPrefix = "idem:checkout:"

	// Records expire after the retry horizon; a client replaying later
	// than this re-executes, which is the documented trade-off of the
	// TTL-based store.
	recordTTL = 24 * time.Hour
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

type IdempotencyStore struct {
	rdb *redis.Client
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

type storedRecord struct {
	RequestHash    string    `json:"request_hash"`
	State          string    `json:"state"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Claim relies on SET NX as the atomic insert-if-absent primitive.
func (s *IdempotencyStore) Claim(ctx context.Context, key, requestHash string) (*domain.Record, bool, error) {
	payload, err := json.Marshal(storedRecord{
		RequestHash: requestHash,
		State:       string(domain.StateInProgress),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: encode claim %s: %w", key, err)
	}

	ok, err := s.rdb.SetNX(ctx, keyPrefix+key, payload, recordTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	if ok {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		// Claim expired between SetNX and Get; treat as contention and
		// let the caller retry.
		return nil, false, domain.ErrInFlight
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(storedRecord{
		RequestHash:    existing.RequestHash,
		State:          string(domain.StateCompleted),
		ResponseStatus: status,
		ResponseBody:   body,
		CreatedAt:      existing.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("idempotency: encode record %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, payload, recordTTL).Err(); err != nil {
		return fmt.Errorf("idempotency: complete %s: %w", key, err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", key, err)
	}
	return nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*domain.Record, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: get %s: %w", key, err)
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("idempotency: decode record %s: %w", key, err)
	}
	return &domain.Record{
		Key:            key,
		RequestHash:    stored.RequestHash,
		State:          domain.State(stored.State),
		ResponseStatus: stored.ResponseStatus,
		ResponseBody:   stored.ResponseBody,
		CreatedAt:      stored.CreatedAt,
	}, nil
}
