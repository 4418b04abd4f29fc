package types

import (
	"errors"
	"fmt"
	"time"
)

// ArtifactType identifies what kind of document an artifact is.
type ArtifactType string

// Artifact types produced by the three stages
const (
	ArtifactProductAnalysis ArtifactType = "product_analysis"
	ArtifactPersonaLibrary  ArtifactType = "persona_library"
	ArtifactContentStrategy ArtifactType = "content_strategy"
	ArtifactCaseStudy       ArtifactType = "case_study"
	ArtifactWhitePaper      ArtifactType = "white_paper"
	ArtifactPitchDeck       ArtifactType = "pitch_deck"
	ArtifactSocialPost      ArtifactType = "social_post"
	ArtifactPolished        ArtifactType = "polished"
)

// ArtifactStatus is the review state of an artifact.
type ArtifactStatus string

// Artifact status values
const (
	StatusDraft    ArtifactStatus = "draft"
	StatusApproved ArtifactStatus = "approved"
	StatusRevised  ArtifactStatus = "revised"
	StatusRejected ArtifactStatus = "rejected"
)

// ItemOutcome is the result of producing a single artifact.
type ItemOutcome string

// Item outcome values
const (
	OutcomeProduced        ItemOutcome = "produced"
	OutcomePendingBudget   ItemOutcome = "pending_budget"
	OutcomeFailedExhausted ItemOutcome = "failed_exhausted"
	OutcomeFailed          ItemOutcome = "failed"
)

// ErrIllegalTransition is returned when an artifact status change is not allowed.
var ErrIllegalTransition = errors.New("illegal artifact status transition")

// Provenance records how an artifact's current content came to be.
type Provenance struct {
	Stage        string      `json:"stage"`
	Task         string      `json:"task"`
	Track        string      `json:"track,omitempty"`
	Provider     string      `json:"provider,omitempty"`
	Model        string      `json:"model,omitempty"`
	AttemptCount int         `json:"attempt_count" validate:"min=0"`
	Outcome      ItemOutcome `json:"outcome,omitempty" validate:"omitempty,oneof=produced pending_budget failed_exhausted failed"`
	LastError    string      `json:"last_error,omitempty"`
	Feedback     string      `json:"feedback,omitempty"`
	GeneratedAt  *time.Time  `json:"generated_at,omitempty"`
}

// PendingBudget reports whether the artifact was skipped for lack of budget.
func (p Provenance) PendingBudget() bool {
	return p.Outcome == OutcomePendingBudget
}

// PriorVersion is an archived earlier content of a revised artifact.
type PriorVersion struct {
	Version           int        `json:"version" validate:"min=1"`
	Content           string     `json:"content"`
	Provenance        Provenance `json:"provenance"`
	CheckpointOrdinal int        `json:"checkpoint_ordinal" validate:"min=1"`
	Feedback          string     `json:"feedback,omitempty"`
	ArchivedAt        time.Time  `json:"archived_at"`
}

// Artifact is one produced document.
type Artifact struct {
	ID             string         `json:"id" validate:"required"`
	Type           ArtifactType   `json:"type" validate:"required"`
	ProducingStage string         `json:"producing_stage" validate:"required"`
	Track          string         `json:"track,omitempty"`
	Sequence       int            `json:"sequence" validate:"min=0"`
	Status         ArtifactStatus `json:"status" validate:"oneof=draft approved revised rejected"`
	Content        string         `json:"content"`
	PersonaRef     string         `json:"persona_ref,omitempty"`
	SourceRef      string         `json:"source_ref,omitempty"`
	Version        int            `json:"version" validate:"min=1"`
	Provenance     Provenance     `json:"provenance"`
	PriorVersions  []PriorVersion `json:"prior_versions,omitempty" validate:"dive"`
	RegeneratedFor int            `json:"regenerated_for,omitempty" validate:"min=0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HasContent reports whether the artifact holds produced text.
func (a *Artifact) HasContent() bool {
	return a.Content != ""
}

// CanTransition reports whether an artifact may move from one status to another.
// Only draft artifacts can be reviewed; every review outcome is terminal.
func CanTransition(from, to ArtifactStatus) bool {
	if from != StatusDraft {
		return false
	}
	switch to {
	case StatusApproved, StatusRevised, StatusRejected:
		return true
	}
	return false
}

// Transition moves the artifact to a new status when the move is legal.
func (a *Artifact) Transition(to ArtifactStatus, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, a.ID, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// Archive pushes the current content into PriorVersions and bumps Version.
func (a *Artifact) Archive(ordinal int, feedback string, now time.Time) {
	a.PriorVersions = append(a.PriorVersions, PriorVersion{
		Version:           a.Version,
		Content:           a.Content,
		Provenance:        a.Provenance,
		CheckpointOrdinal: ordinal,
		Feedback:          feedback,
		ArchivedAt:        now,
	})
	a.Version++
	a.UpdatedAt = now
}

func (a *Artifact) problems() []string {
	var problems []string
	if a.Provenance.PendingBudget() {
		if a.HasContent() {
			problems = append(problems, fmt.Sprintf("artifact %s is pending budget but has content", a.ID))
		}
		if a.Status != StatusDraft {
			problems = append(problems, fmt.Sprintf("artifact %s is pending budget but has status %s", a.ID, a.Status))
		}
	}
	if a.Status == StatusRevised && len(a.PriorVersions) == 0 {
		problems = append(problems, fmt.Sprintf("artifact %s is revised but has no prior versions", a.ID))
	}
	if a.Version != len(a.PriorVersions)+1 {
		problems = append(problems, fmt.Sprintf("artifact %s has version %d with %d prior versions", a.ID, a.Version, len(a.PriorVersions)))
	}
	return problems
}
