package db

import "time"

// SessionRow is the content_sessions record. Snapshot holds the full session
// document; the other columns are denormalized for listing.
type SessionRow struct {
	ID            string    `json:"id"`
	SchemaVersion int       `json:"schema_version"`
	Status        string    `json:"status"`
	CurrentStage  int       `json:"current_stage"`
	CallsUsed     int       `json:"calls_used"`
	CallsBudget   int       `json:"calls_budget"`
	Snapshot      []byte    `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ArtifactRow is the content_artifacts record, mirrored from the snapshot so
// produced content can be queried without decoding sessions.
type ArtifactRow struct {
	ID             string `json:"id"`
	SessionID      string `json:"session_id"`
	ProducingStage string `json:"producing_stage"`
	Track          string `json:"track"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Version        int    `json:"version"`
	Content        string `json:"content"`
}
