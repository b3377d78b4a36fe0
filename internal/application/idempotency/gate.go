package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	domain "github.com/ucp-labs/checkout-core/internal/domain/idempotency"
	"github.com/ucp-labs/checkout-core/internal/observability"
	"github.com/ucp-labs/checkout-core/internal/observability/logctx"
)

// Outcome is the transport-level result of a mutation, captured so a
// replay can return it byte-identical.
type Outcome struct {
	Status int
	Body   []byte
	// Replayed marks outcomes served from the store without re-executing.
	Replayed bool
}

// Mutation executes the side effect and renders its response. Returning
// an error drops the claim so the client can retry with the same key;
// a domain outcome that should be replayed is an Outcome, not an error.
type Mutation func(ctx context.Context) (Outcome, error)

// Gate deduplicates mutating requests by client-supplied key. The key is
// claimed with an atomic insert-if-absent before the mutation runs, so
// two concurrent first-time requests with the same key serialize: one
// executes, the other sees the in-flight claim.
type Gate struct {
	store domain.Store
	log   observability.Logger
}

func NewGate(store domain.Store, logger observability.Logger) *Gate {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gate{
		store: store,
		log:   logger.With(observability.F("component", "idempotency_gate")),
	}
}

// HashBody returns the canonical hash for a request body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Execute runs fn at most once for the given key. An empty key means
// "always execute, never dedupe". The outcome is stored before it is
// returned, so a crash between mutation and record is the only replay
// window left (see Claim/Complete ordering).
func (g *Gate) Execute(ctx context.Context, key string, body []byte, fn Mutation) (Outcome, error) {
	if key == "" {
		return fn(ctx)
	}

	hash := HashBody(body)
	existing, claimed, err := g.store.Claim(ctx, key, hash)
	if err != nil {
		return Outcome{}, fmt.Errorf("idempotency: claim: %w", err)
	}

	if !claimed {
		if existing.RequestHash != hash {
			return Outcome{}, domain.ErrKeyConflict
		}
		if existing.State != domain.StateCompleted {
			return Outcome{}, domain.ErrInFlight
		}
		return Outcome{
			Status:   existing.ResponseStatus,
			Body:     existing.ResponseBody,
			Replayed: true,
		}, nil
	}

	outcome, execErr := fn(ctx)
	if execErr != nil {
		// The mutation did not produce a response to replay; drop the
		// claim so a retry with the same key re-executes.
		if relErr := g.store.Release(ctx, key); relErr != nil {
			logctx.FromOr(ctx, g.log).Error("idempotency_claim_release_failed",
				observability.F("key", key),
				observability.F("error", relErr.Error()),
			)
		}
		return outcome, execErr
	}

	// Store-then-respond: the record must exist before the caller sees
	// the response.
	if err := g.store.Complete(ctx, key, outcome.Status, outcome.Body); err != nil {
		return Outcome{}, fmt.Errorf("idempotency: record outcome: %w", err)
	}
	return outcome, nil
}
