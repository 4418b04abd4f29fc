// Package types provides the data model shared across the content pipeline:
// sessions, checkpoints, artifacts and provider quota snapshots.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion is the version written into every persisted session document.
// Readers accept any version up to and including this one.
const SchemaVersion = 1

// Stage names in pipeline order. CurrentStage indexes into this slice; a value
// equal to len(StageNames) means every stage has been run and checkpointed.
const (
	StageResearchPlanning  = "research_planning"
	StageContentGeneration = "content_generation"
	StageReviewPolish      = "review_polish"
)

// StageNames lists the fixed stage sequence.
var StageNames = []string{StageResearchPlanning, StageContentGeneration, StageReviewPolish}

// SessionStatus is the lifecycle state of a pipeline run.
type SessionStatus string

// Session status values
const (
	SessionActive         SessionStatus = "active"
	SessionAwaitingReview SessionStatus = "awaiting_review"
	SessionPaused         SessionStatus = "paused"
	SessionCompleted      SessionStatus = "completed"
	SessionFailed         SessionStatus = "failed"
)

// Session is the durable record of one pipeline run.
type Session struct {
	SchemaVersion int                  `json:"schema_version" validate:"min=1"`
	ID            string               `json:"id" validate:"required"`
	Status        SessionStatus        `json:"status" validate:"oneof=active awaiting_review paused completed failed"`
	CurrentStage  int                  `json:"current_stage" validate:"min=0"`
	CallsUsed     int                  `json:"calls_used" validate:"min=0"`
	CallsBudget   int                  `json:"calls_budget" validate:"min=1"`
	Input         string               `json:"input"`
	InputSource   string               `json:"input_source,omitempty"`
	Checkpoints   []Checkpoint         `json:"checkpoints" validate:"dive"`
	Artifacts     map[string]*Artifact `json:"artifacts" validate:"dive"`
	Quotas        []ProviderQuota      `json:"quotas,omitempty" validate:"dive"`
	FailureReason string               `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

var validate = validator.New()

// NewSession returns an active session at stage 0 with the given call budget.
func NewSession(id string, budget int, now time.Time) *Session {
	return &Session{
		SchemaVersion: SchemaVersion,
		ID:            id,
		Status:        SessionActive,
		CallsBudget:   budget,
		Checkpoints:   []Checkpoint{},
		Artifacts:     make(map[string]*Artifact),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// StageName returns the name of the current stage, or "" once all stages are done.
func (s *Session) StageName() string {
	if s.CurrentStage < 0 || s.CurrentStage >= len(StageNames) {
		return ""
	}
	return StageNames[s.CurrentStage]
}

// Finished reports whether every stage has been run and checkpointed.
func (s *Session) Finished() bool {
	return s.CurrentStage >= len(StageNames)
}

// FirstPending returns the earliest unresolved checkpoint, or nil.
func (s *Session) FirstPending() *Checkpoint {
	for i := range s.Checkpoints {
		if s.Checkpoints[i].IsPending() {
			return &s.Checkpoints[i]
		}
	}
	return nil
}

// FindCheckpoint looks a checkpoint up by id.
func (s *Session) FindCheckpoint(id string) *Checkpoint {
	for i := range s.Checkpoints {
		if s.Checkpoints[i].ID == id {
			return &s.Checkpoints[i]
		}
	}
	return nil
}

// NextOrdinal is the ordinal the next presented checkpoint must carry.
func (s *Session) NextOrdinal() int {
	return len(s.Checkpoints) + 1
}

// Problems checks the structural invariants of a session and returns a
// description of every violation found. An empty result means the session is
// consistent.
func (s *Session) Problems() []string {
	var problems []string

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if s.CallsUsed > s.CallsBudget {
		problems = append(problems, fmt.Sprintf("calls_used %d exceeds calls_budget %d", s.CallsUsed, s.CallsBudget))
	}
	if s.CurrentStage > len(StageNames) {
		problems = append(problems, fmt.Sprintf("current_stage %d out of range", s.CurrentStage))
	}

	seenPending := false
	for i, cp := range s.Checkpoints {
		if cp.Ordinal != i+1 {
			problems = append(problems, fmt.Sprintf("checkpoint %d has ordinal %d, want %d", i, cp.Ordinal, i+1))
		}
		if cp.IsPending() {
			seenPending = true
			if cp.ResolvedAt != nil {
				problems = append(problems, fmt.Sprintf("checkpoint %d is pending but has resolved_at", cp.Ordinal))
			}
		} else if seenPending {
			problems = append(problems, fmt.Sprintf("checkpoint %d resolved after an earlier pending checkpoint", cp.Ordinal))
		}
		for _, id := range cp.ArtifactsPresented {
			if _, ok := s.Artifacts[id]; !ok {
				problems = append(problems, fmt.Sprintf("checkpoint %d presents unknown artifact %s", cp.Ordinal, id))
			}
		}
	}

	for id, a := range s.Artifacts {
		if a == nil {
			problems = append(problems, fmt.Sprintf("artifact %s is null", id))
			continue
		}
		if a.ID != id {
			problems = append(problems, fmt.Sprintf("artifact key %s does not match id %s", id, a.ID))
		}
		problems = append(problems, a.problems()...)
	}

	return problems
}

// Validate returns an error listing every invariant violation, or nil.
func (s *Session) Validate() error {
	problems := s.Problems()
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = errors.New(p)
	}
	return errors.Join(errs...)
}
