package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/ucp-labs/checkout-core/internal/domain/checkout"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

type CheckoutRepository struct {
	db  *pgxpool.Pool
	log observability.Logger
}

func NewCheckoutRepository(db *pgxpool.Pool, logger observability.Logger) *CheckoutRepository {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CheckoutRepository{db: db, log: logger.With(observability.F("component", "checkout_repository"))}
}

func (r *CheckoutRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("checkout repository: id is required")
	}

	payload, err := json.Marshal(session.Payload)
	if err != nil {
		return fmt.Errorf("checkout repository: encode payload: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO checkouts (id, status, payload, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, payload = excluded.payload, updated_at = excluded.updated_at`,
		session.ID, string(session.Status), payload, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("checkout repository: save %s: %w", session.ID, err)
	}
	return nil
}

func (r *CheckoutRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var (
		status    string
		payload   []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT status, payload, created_at, updated_at FROM checkouts WHERE id = $1`, id,
	).Scan(&status, &payload, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkout repository: get %s: %w", id, err)
	}

	var decoded domain.Payload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		logctx.FromOr(ctx, r.log).Warn("checkout_payload_corrupt",
			observability.F("checkout_id", id),
			observability.F("error", err.Error()),
		)
		return nil, domain.ErrNotFound
	}
	if decoded.Version != domain.PayloadVersion {
		logctx.FromOr(ctx, r.log).Warn("checkout_payload_version_unknown",
			observability.F("checkout_id", id),
			observability.F("version", decoded.Version),
		)
		return nil, domain.ErrNotFound
	}

	return &domain.Session{
		ID:        id,
		Status:    domain.Status(status),
		Payload:   decoded,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
