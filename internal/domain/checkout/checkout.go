package checkout

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("checkout: not found")
	ErrCompleted       = errors.New("checkout: session already completed")
	ErrInvalidQuantity = errors.New("checkout: quantity must be greater than zero")
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Session is the mutable negotiation state between "customer started
// buying" and "order placed". The payload is replaced wholesale on every
// save; callers read-modify-write.
type Session struct {
	ID        string
	Status    Status
	Payload   Payload
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:     id,
		Status: StatusInProgress,
		Payload: Payload{
			Version:  PayloadVersion,
			Currency: DefaultCurrency,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Mutable reports whether the session still accepts basket mutations.
// The completed state is terminal; only the order finalizer moves a
// session there.
func (s *Session) Mutable() bool {
	return s.Status == StatusInProgress
}

func (s *Session) MarkCompleted() {
	s.Status = StatusCompleted
	s.touch()
}

func (s *Session) MarkFailed() {
	s.Status = StatusFailed
	s.touch()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Payload = s.Payload.Clone()
	return &clone
}
