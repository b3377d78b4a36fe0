package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domcheckout "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	domain "github.com/ucp-labs/checkout-core/internal/domain/order"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
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

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO orders (id, checkout_id, status, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.CheckoutID, string(order.Status), string(payload), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
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
		payload    string
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT checkout_id, status, payload, created_at, updated_at FROM orders WHERE id = ?`, id,
	).Scan(&checkoutID, &status, &payload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order repository: get %s: %w", id, err)
	}

	var decoded domcheckout.Payload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
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
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("order repository: update status %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order repository: update status %s: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
