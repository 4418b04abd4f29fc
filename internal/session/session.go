// Package session persists pipeline sessions and validates them on load.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/b2b-content-agent/internal/schemas"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// Sentinel errors
var (
	ErrNotFound          = errors.New("session not found")
	ErrCorruptSession    = errors.New("corrupt session")
	ErrUnsupportedSchema = errors.New("unsupported session schema version")
)

// CorruptError describes why a stored session failed validation.
type CorruptError struct {
	SessionID string
	Problems  []string
	Cause     error
}

func (e *CorruptError) Error() string {
	msg := fmt.Sprintf("session %s is corrupt", e.SessionID)
	if len(e.Problems) > 0 {
		msg += ": " + strings.Join(e.Problems, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes ErrCorruptSession and the underlying cause.
func (e *CorruptError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrCorruptSession, e.Cause}
	}
	return []error{ErrCorruptSession}
}

// Summary is a listing entry for a stored session.
type Summary struct {
	ID          string              `json:"id"`
	Status      types.SessionStatus `json:"status"`
	Stage       string              `json:"stage"`
	CallsUsed   int                 `json:"calls_used"`
	CallsBudget int                 `json:"calls_budget"`
	Pending     int                 `json:"pending_checkpoints"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Error       string              `json:"error,omitempty"`
}

// Store saves and loads sessions.
type Store interface {
	// Save atomically replaces the stored snapshot of s
	Save(ctx context.Context, s *types.Session) error
	// Load reads and validates a session; fails with ErrNotFound,
	// ErrUnsupportedSchema or a *CorruptError
	Load(ctx context.Context, id string) (*types.Session, error)
	// List returns summaries of stored sessions, most recent first
	List(ctx context.Context) ([]Summary, error)
}

// New creates a fresh session with a random id and the given call budget.
func New(budget int, now time.Time) *types.Session {
	return types.NewSession(uuid.NewString(), budget, now)
}

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidID reports whether id is safe to use as a storage key.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// Encode serializes a session document.
func Encode(s *types.Session) ([]byte, error) {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = types.SchemaVersion
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}
	return data, nil
}

// Decode parses and validates a stored session document. Documents written
// before schema_version existed are read as version 1.
func Decode(id string, data []byte) (*types.Session, error) {
	var header map[string]json.RawMessage
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, &CorruptError{SessionID: id, Problems: []string{"not a JSON object"}, Cause: err}
	}

	version := 1
	if raw, ok := header["schema_version"]; ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			return nil, &CorruptError{SessionID: id, Problems: []string{"schema_version is not an integer"}}
		}
	} else {
		header["schema_version"] = json.RawMessage("1")
		patched, err := json.Marshal(header)
		if err != nil {
			return nil, &CorruptError{SessionID: id, Cause: err}
		}
		data = patched
	}
	if version > types.SchemaVersion {
		return nil, fmt.Errorf("%w: session %s has version %d, this build reads up to %d", ErrUnsupportedSchema, id, version, types.SchemaVersion)
	}

	if err := schemas.ValidateSession(data); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return nil, &CorruptError{SessionID: id, Problems: ve.Messages()}
		}
		return nil, &CorruptError{SessionID: id, Cause: err}
	}

	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &CorruptError{SessionID: id, Cause: err}
	}
	if id != "" && s.ID != id {
		return nil, &CorruptError{SessionID: id, Problems: []string{fmt.Sprintf("document id %q does not match", s.ID)}}
	}
	if s.Checkpoints == nil {
		s.Checkpoints = []types.Checkpoint{}
	}
	if s.Artifacts == nil {
		s.Artifacts = make(map[string]*types.Artifact)
	}
	if problems := s.Problems(); len(problems) > 0 {
		return nil, &CorruptError{SessionID: id, Problems: problems}
	}
	s.SchemaVersion = types.SchemaVersion
	return &s, nil
}

func summarize(s *types.Session) Summary {
	pending := 0
	for _, cp := range s.Checkpoints {
		if cp.IsPending() {
			pending++
		}
	}
	stage := s.StageName()
	if stage == "" {
		stage = "done"
	}
	return Summary{
		ID:          s.ID,
		Status:      s.Status,
		Stage:       stage,
		CallsUsed:   s.CallsUsed,
		CallsBudget: s.CallsBudget,
		Pending:     pending,
		UpdatedAt:   s.UpdatedAt,
	}
}
