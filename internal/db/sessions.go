package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SaveSession upserts the session row and its artifact rows in one
// transaction, so readers see either the previous snapshot or the new one.
func (db *DB) SaveSession(ctx context.Context, row SessionRow, artifacts []ArtifactRow) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO content_sessions (id, schema_version, status, current_stage, calls_used, calls_budget, snapshot, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET schema_version = $2, status = $3, current_stage = $4,
			     calls_used = $5, calls_budget = $6, snapshot = $7, updated_at = $8`,
			row.ID, row.SchemaVersion, row.Status, row.CurrentStage, row.CallsUsed, row.CallsBudget, row.Snapshot, row.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save session %s: %w", row.ID, err)
		}

		batch := &pgx.Batch{}
		for _, a := range artifacts {
			batch.Queue(
				`INSERT INTO content_artifacts (id, session_id, producing_stage, track, type, status, version, content, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
				 ON CONFLICT (session_id, id) DO UPDATE SET status = $6, version = $7, content = $8, updated_at = NOW()`,
				a.ID, row.ID, a.ProducingStage, a.Track, a.Type, a.Status, a.Version, a.Content,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save artifacts for session %s: %w", row.ID, err)
		}
		return nil
	})
}

// GetSessionSnapshot returns the stored session document, or nil if the
// session does not exist.
func (db *DB) GetSessionSnapshot(ctx context.Context, id string) ([]byte, error) {
	var snapshot []byte
	err := db.pool.QueryRow(ctx,
		`SELECT snapshot FROM content_sessions WHERE id = $1`,
		id,
	).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return snapshot, nil
}

// ListSessions retrieves the most recently updated sessions
func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, schema_version, status, current_stage, calls_used, calls_budget, updated_at
		 FROM content_sessions ORDER BY updated_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.ID, &s.SchemaVersion, &s.Status, &s.CurrentStage, &s.CallsUsed, &s.CallsBudget, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
