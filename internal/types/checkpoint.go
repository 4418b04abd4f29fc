package types

import "time"

// Decision is the operator's verdict on a checkpoint.
type Decision string

// Decision values
const (
	DecisionPending Decision = "pending"
	DecisionApprove Decision = "approve"
	DecisionRevise  Decision = "revise"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a resolving decision (not pending).
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionRevise, DecisionReject:
		return true
	}
	return false
}

// RevisionState tracks the single regeneration pass that a revise decision triggers.
type RevisionState string

// Revision state values
const (
	RevisionNone      RevisionState = ""
	RevisionScheduled RevisionState = "scheduled"
	RevisionDone      RevisionState = "done"
)

// Checkpoint is a human review gate after a stage (or a track of a stage).
type Checkpoint struct {
	ID                 string        `json:"id" validate:"required"`
	Ordinal            int           `json:"ordinal" validate:"min=1"`
	StageIndex         int           `json:"stage_index" validate:"min=0"`
	StageName          string        `json:"stage_name" validate:"required"`
	Track              string        `json:"track,omitempty"`
	ArtifactsPresented []string      `json:"artifacts_presented"`
	Decision           Decision      `json:"decision" validate:"oneof=pending approve revise reject"`
	Feedback           string        `json:"feedback,omitempty"`
	Revision           RevisionState `json:"revision,omitempty" validate:"omitempty,oneof=scheduled done"`
	PresentedAt        time.Time     `json:"presented_at"`
	ResolvedAt         *time.Time    `json:"resolved_at,omitempty"`
}

// IsPending reports whether the checkpoint still awaits a decision.
func (c *Checkpoint) IsPending() bool {
	return c.Decision == DecisionPending
}

// NeedsRepass reports whether a revise decision still owes its regeneration pass.
func (c *Checkpoint) NeedsRepass() bool {
	return c.Decision == DecisionRevise && c.Revision == RevisionScheduled
}
