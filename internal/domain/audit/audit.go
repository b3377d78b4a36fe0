package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one inbound mutation request snapshot. Entries are append-only
// and never read back by the checkout core.
type Entry struct {
	Method     string          `json:"method"`
	URL        string          `json:"url"`
	CheckoutID string          `json:"checkout_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Logger is a fire-and-forget collaborator: implementations must never
// block the primary operation, and callers ignore failures.
type Logger interface {
	Log(ctx context.Context, entry Entry)
}
