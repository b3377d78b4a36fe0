package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS inventory (
	product_id TEXT PRIMARY KEY,
	quantity   INTEGER NOT NULL CHECK (quantity >= 0)
);
CREATE TABLE IF NOT EXISTS checkouts (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	checkout_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key             TEXT PRIMARY KEY,
	request_hash    TEXT NOT NULL,
	state           TEXT NOT NULL,
	response_status INTEGER NOT NULL DEFAULT 0,
	response_body   BLOB,
	created_at      TIMESTAMP NOT NULL
);
`

// Open connects to the SQLite database at path and ensures the schema
// exists. Busy timeout keeps concurrent request goroutines from failing
// fast on the single writer lock.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return db, nil
}
