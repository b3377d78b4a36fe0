package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/ucp-labs/checkout-core/internal/domain/inventory"
)

type InventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetAvailable(ctx context.Context, productID string) (int, error) {
	var qty int
	err := r.db.QueryRow(ctx,
		`SELECT quantity FROM inventory WHERE product_id = $1`, productID,
	).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: get %s: %w", productID, err)
	}
	return qty, nil
}

// Reserve is a single conditional update; contention between concurrent
// reservations for the same product is resolved by the database, not by
// application-level locking.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.ErrInvalidQuantity
	}

	ct, err := r.db.Exec(ctx,
		`UPDATE inventory SET quantity = quantity - $2 WHERE product_id = $1 AND quantity >= $2`,
		productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("inventory: reserve %s: %w", productID, err)
	}
	if ct.RowsAffected() == 0 {
		if _, getErr := r.GetAvailable(ctx, productID); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}

func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO inventory (product_id, quantity) VALUES ($1, $2)
		 ON CONFLICT (product_id) DO UPDATE SET quantity = inventory.quantity + excluded.quantity`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("inventory: release %s: %w", productID, err)
	}
	return nil
}

func (r *InventoryRepository) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO inventory (product_id, quantity) VALUES ($1, $2)
		 ON CONFLICT (product_id) DO UPDATE SET quantity = excluded.quantity`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("inventory: set %s: %w", productID, err)
	}
	return nil
}
