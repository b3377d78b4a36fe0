package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/ucp-labs/checkout-core/internal/domain/inventory"
)

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetAvailable(ctx context.Context, productID string) (int, error) {
	var qty int
	err := r.db.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE product_id = ?`, productID,
	).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: get %s: %w", productID, err)
	}
	return qty, nil
}

// Reserve is a single conditional update; the database serializes
// concurrent attempts, so the quantity can never go negative.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.ErrInvalidQuantity
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE inventory SET quantity = quantity - ? WHERE product_id = ? AND quantity >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("inventory: reserve %s: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inventory: reserve %s: %w", productID, err)
	}
	if affected == 0 {
		// Either the row is missing or stock is short; distinguish so
		// callers see not-found rather than a clean rejection.
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

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inventory (product_id, quantity) VALUES (?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
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

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inventory (product_id, quantity) VALUES (?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET quantity = excluded.quantity`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("inventory: set %s: %w", productID, err)
	}
	return nil
}
