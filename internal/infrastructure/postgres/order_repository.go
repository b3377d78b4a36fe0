package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domcheckout "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	domain "github.com/ucp-labs/checkout-core/internal/domain/order"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	payload, err := json.Marshal(order.Payload)
	if err != nil {
		return fmt.Errorf("order repository: encode payload: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO orders (id, checkout_id, status, payload, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.CheckoutID, string(order.Status), payload, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrConflict
		}
		return fmt.Errorf("order repository: insert %s: %w", order.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var (
		checkoutID string
		status     string
		payload    []byte
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT checkout_id, status, payload, created_at, updated_at FROM orders WHERE id = $1`, id,
	).Scan(&checkoutID, &status, &payload, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order repository: get %s: %w", id, err)
	}

	var decoded domcheckout.Payload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("order repository: decode payload for %s: %w", id, err)
	}

	return &domain.Order{
		ID:         id,
		CheckoutID: checkoutID,
		Status:     domain.Status(status),
		Payload:    decoded,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("order repository: update status %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
