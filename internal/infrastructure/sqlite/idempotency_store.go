package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
)

type IdempotencyStore struct {
	db *sql.DB
}

func NewIdempotencyStore(db *sql.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Claim inserts the key if absent in one statement; losing the race means
// another request already holds it, in which case the existing record is
// returned for hash comparison.
func (s *IdempotencyStore) Claim(ctx context.Context, key, requestHash string) (*domain.Record, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, state, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`,
		key, requestHash, string(domain.StateInProgress), time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	if affected == 1 {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET state = ?, response_status = ?, response_body = ? WHERE key = ?`,
		string(domain.StateCompleted), status, body, key,
	)
	if err != nil {
		return fmt.Errorf("idempotency: complete %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency: complete %s: %w", key, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("idempotency: release %s: %w", key, err)
	}
	return nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*domain.Record, error) {
	var (
		record domain.Record
		state  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, request_hash, state, response_status, response_body, created_at FROM idempotency_keys WHERE key = ?`,
		key,
	).Scan(&record.Key, &record.RequestHash, &state, &record.ResponseStatus, &record.ResponseBody, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: get %s: %w", key, err)
	}
	record.State = domain.State(state)
	return &record, nil
}
