package checkout

import (
	"context"
)

// Repository persists sessions keyed by id with upsert semantics.
// Implementations return ErrNotFound for unknown ids and for rows whose
// stored payload can no longer be deserialized: a corrupt session
// cannot be resumed, so it is reported as absent rather than failing.
type Repository interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
}
