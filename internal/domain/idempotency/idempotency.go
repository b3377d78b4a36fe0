package idempotency

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("idempotency: key not found")
	// ErrKeyConflict signals a key reused with a different request body:
	// client misuse, distinct from a legitimate replay.
	ErrKeyConflict = errors.New("idempotency: key reused with different request body")
	// ErrInFlight signals a concurrent first-time duplicate: another
	// request holds the claim for this key and has not finished yet.
	ErrInFlight = errors.New("idempotency: request with this key is in flight")
)

type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Record is the stored outcome for one idempotency key. RequestHash lets
// a later request detect key reuse with a different body.
type Record struct {
	Key            string
	RequestHash    string
	State          State
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      time.Time
}

// Store persists idempotency records. Claim is an atomic insert-if-absent
// of an in-progress record: (nil, true) means the caller won the claim
// and must later Complete or Release it; (existing, false) means the key
// is already taken. The claim-before-execute ordering turns concurrent
// duplicates into a hard serialization point.
type Store interface {
	Claim(ctx context.Context, key, requestHash string) (*Record, bool, error)
	Complete(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*Record, error)
}
