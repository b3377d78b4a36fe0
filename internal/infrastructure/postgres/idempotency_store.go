package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
)

type IdempotencyStore struct {
	db *pgxpool.Pool
}

func NewIdempotencyStore(db *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key, requestHash string) (*domain.Record, bool, error) {
	ct, err := s.db.Exec(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, state, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO NOTHING`,
		key, requestHash, string(domain.StateInProgress), time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	if ct.RowsAffected() == 1 {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE idempotency_keys SET state = $2, response_status = $3, response_body = $4 WHERE key = $1`,
		key, string(domain.StateCompleted), status, body,
	)
	if err != nil {
		return fmt.Errorf("idempotency: complete %s: %w", key, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
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
	err := s.db.QueryRow(ctx,
		`SELECT key, request_hash, state, response_status, response_body, created_at FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&record.Key, &record.RequestHash, &state, &record.ResponseStatus, &record.ResponseBody, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: get %s: %w", key, err)
	}
	record.State = domain.State(state)
	return &record, nil
}
