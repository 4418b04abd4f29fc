package session

import (
	"context"
	"fmt"

	"github.com/jonathan/b2b-content-agent/internal/db"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// PGStore keeps sessions in PostgreSQL. Each save is a single transaction
// that replaces the snapshot and mirrors artifact rows.
type PGStore struct {
	db    *db.DB
	limit int
}

// NewPGStore wraps an open database, creating tables if needed.
func NewPGStore(ctx context.Context, database *db.DB) (*PGStore, error) {
	if err := database.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &PGStore{db: database, limit: 200}, nil
}

// Save upserts the session snapshot.
func (s *PGStore) Save(ctx context.Context, sess *types.Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	row := db.SessionRow{
		ID:            sess.ID,
		SchemaVersion: sess.SchemaVersion,
		Status:        string(sess.Status),
		CurrentStage:  sess.CurrentStage,
		CallsUsed:     sess.CallsUsed,
		CallsBudget:   sess.CallsBudget,
		Snapshot:      data,
		UpdatedAt:     sess.UpdatedAt,
	}
	rows := make([]db.ArtifactRow, 0, len(sess.Artifacts))
	for _, a := range sess.Artifacts {
		if a == nil {
			continue
		}
		rows = append(rows, db.ArtifactRow{
			ID:             a.ID,
			ProducingStage: a.ProducingStage,
			Track:          a.Track,
			Type:           string(a.Type),
			Status:         string(a.Status),
			Version:        a.Version,
			Content:        a.Content,
		})
	}
	return s.db.SaveSession(ctx, row, rows)
}

// Load reads and validates a stored session.
func (s *PGStore) Load(ctx context.Context, id string) (*types.Session, error) {
	data, err := s.db.GetSessionSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Decode(id, data)
}

// List summarizes recent sessions from the denormalized columns.
func (s *PGStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.ListSessions(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		stage := "done"
		if r.CurrentStage >= 0 && r.CurrentStage < len(types.StageNames) {
			stage = types.StageNames[r.CurrentStage]
		}
		out = append(out, Summary{
			ID:          r.ID,
			Status:      types.SessionStatus(r.Status),
			Stage:       stage,
			CallsUsed:   r.CallsUsed,
			CallsBudget: r.CallsBudget,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out, nil
}
