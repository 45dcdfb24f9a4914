package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Schema creates the receipt history tables
const Schema = `
CREATE TABLE IF NOT EXISTS submission_attempts (
	id          TEXT PRIMARY KEY,
	outcome     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfer_receipts (
	transaction_id     TEXT PRIMARY KEY,
	attempt_id         TEXT NOT NULL REFERENCES submission_attempts (id),
	recipient_username TEXT NOT NULL,
	amount             BIGINT NOT NULL,
	fee                BIGINT NOT NULL DEFAULT 0,
	narration          TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	failure_reason     TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfer_failures (
	id                 BIGSERIAL PRIMARY KEY,
	attempt_id         TEXT NOT NULL REFERENCES submission_attempts (id),
	recipient_username TEXT NOT NULL,
	amount             BIGINT NOT NULL,
	error              TEXT NOT NULL
);
`

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=transfa sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate creates the tables the repositories need
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
