// Package db provides PostgreSQL storage for pipeline sessions.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS content_sessions (
	id             TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	status         TEXT NOT NULL,
	current_stage  INTEGER NOT NULL,
	calls_used     INTEGER NOT NULL,
	calls_budget   INTEGER NOT NULL,
	snapshot       JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS content_artifacts (
	id              TEXT NOT NULL,
	session_id      TEXT NOT NULL REFERENCES content_sessions(id) ON DELETE CASCADE,
	producing_stage TEXT NOT NULL,
	track           TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	status          TEXT NOT NULL,
	version         INTEGER NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (session_id, id)
);

CREATE INDEX IF NOT EXISTS idx_content_sessions_updated_at ON content_sessions (updated_at DESC);
`

// EnsureSchema creates the session tables if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create session tables: %w", err)
	}
	return nil
}
