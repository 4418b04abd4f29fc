// Package checkpoint records human review gates on a session and applies the
// operator's decisions to the presented artifacts.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/b2b-content-agent/internal/artifacts"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// ErrInvalidCheckpointState is matched by every *StateError.
var ErrInvalidCheckpointState = errors.New("invalid checkpoint state")

// StateError reports a resolve or present call that the session state does
// not allow.
type StateError struct {
	CheckpointID string
	Reason       string
}

func (e *StateError) Error() string {
	if e.CheckpointID == "" {
		return fmt.Sprintf("invalid checkpoint state: %s", e.Reason)
	}
	return fmt.Sprintf("invalid checkpoint state for %s: %s", e.CheckpointID, e.Reason)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidCheckpointState
}

// Manager presents and resolves checkpoints on one session.
type Manager struct {
	sess    *types.Session
	store   *artifacts.Store
	persist func(ctx context.Context) error
	now     func() time.Time
	newID   func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for checkpoint timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.now = clock
	}
}

// WithIDs overrides checkpoint id generation.
func WithIDs(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// NewManager creates a manager. persist must durably save the session; it is
// called before Present and Resolve return.
func NewManager(sess *types.Session, store *artifacts.Store, persist func(ctx context.Context) error, opts ...Option) *Manager {
	m := &Manager{
		sess:    sess,
		store:   store,
		persist: persist,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Present appends a pending checkpoint for the given artifacts, moves the
// session to awaiting_review and persists it.
func (m *Manager) Present(ctx context.Context, stageIndex int, track string, artifactIDs []string) (types.Checkpoint, error) {
	if stageIndex < 0 || stageIndex >= len(types.StageNames) {
		return types.Checkpoint{}, &StateError{Reason: fmt.Sprintf("stage index %d out of range", stageIndex)}
	}
	for _, id := range artifactIDs {
		if _, ok := m.store.Get(id); !ok {
			return types.Checkpoint{}, &StateError{Reason: fmt.Sprintf("unknown artifact %s", id)}
		}
	}

	cp := types.Checkpoint{
		ID:                 m.newID(),
		Ordinal:            m.sess.NextOrdinal(),
		StageIndex:         stageIndex,
		StageName:          types.StageNames[stageIndex],
		Track:              track,
		ArtifactsPresented: append([]string{}, artifactIDs...),
		Decision:           types.DecisionPending,
		PresentedAt:        m.now(),
	}
	m.sess.Checkpoints = append(m.sess.Checkpoints, cp)
	m.sess.Status = types.SessionAwaitingReview

	if err := m.persist(ctx); err != nil {
		return cp, fmt.Errorf("failed to persist checkpoint %d: %w", cp.Ordinal, err)
	}
	return cp, nil
}

// Pending returns a copy of the earliest unresolved checkpoint.
func (m *Manager) Pending() (types.Checkpoint, bool) {
	cp := m.sess.FirstPending()
	if cp == nil {
		return types.Checkpoint{}, false
	}
	return *cp, true
}

// Resolve records a decision on the earliest pending checkpoint and applies
// it to the presented artifacts. Approve and reject are terminal for the
// artifacts; revise marks them revised, archives their content and schedules
// one regeneration pass.
func (m *Manager) Resolve(ctx context.Context, checkpointID string, decision types.Decision, feedback string) (types.Checkpoint, error) {
	cp := m.sess.FindCheckpoint(checkpointID)
	if cp == nil {
		return types.Checkpoint{}, &StateError{CheckpointID: checkpointID, Reason: "no such checkpoint"}
	}
	if !cp.IsPending() {
		return *cp, &StateError{CheckpointID: checkpointID, Reason: fmt.Sprintf("already resolved with %s", cp.Decision)}
	}
	if first := m.sess.FirstPending(); first != nil && first.ID != checkpointID {
		return *cp, &StateError{CheckpointID: checkpointID, Reason: fmt.Sprintf("checkpoint %d must be resolved first", first.Ordinal)}
	}
	if !decision.Valid() {
		return *cp, &StateError{CheckpointID: checkpointID, Reason: fmt.Sprintf("unknown decision %q", decision)}
	}

	now := m.now()
	target := statusFor(decision)
	for _, id := range cp.ArtifactsPresented {
		err := m.store.Update(id, func(a *types.Artifact) error {
			if a.Status != types.StatusDraft {
				return nil
			}
			if err := a.Transition(target, now); err != nil {
				return err
			}
			if decision == types.DecisionRevise {
				a.Archive(cp.Ordinal, feedback, now)
				a.Provenance.Feedback = feedback
			}
			return nil
		})
		if err != nil {
			log.Printf("[CHECKPOINT] %d: could not apply %s to %s: %v", cp.Ordinal, decision, id, err)
		}
	}

	cp.Decision = decision
	cp.Feedback = feedback
	cp.ResolvedAt = &now
	if decision == types.DecisionRevise {
		cp.Revision = types.RevisionScheduled
	}
	if m.sess.FirstPending() == nil {
		m.sess.Status = types.SessionActive
	}

	if err := m.persist(ctx); err != nil {
		return *cp, fmt.Errorf("failed to persist checkpoint %d: %w", cp.Ordinal, err)
	}
	return *cp, nil
}

// MarkRepassDone records that the regeneration pass owed by a revise
// decision has run, so it is never repeated.
func (m *Manager) MarkRepassDone(ctx context.Context, checkpointID string) error {
	cp := m.sess.FindCheckpoint(checkpointID)
	if cp == nil {
		return &StateError{CheckpointID: checkpointID, Reason: "no such checkpoint"}
	}
	if !cp.NeedsRepass() {
		return &StateError{CheckpointID: checkpointID, Reason: "no regeneration pass scheduled"}
	}
	cp.Revision = types.RevisionDone
	return m.persist(ctx)
}

// Presentation builds the reviewer view of a checkpoint.
func (m *Manager) Presentation(cp types.Checkpoint) Presentation {
	list := m.store.List(artifacts.Filter{IDs: cp.ArtifactsPresented})
	return Presentation{SessionID: m.sess.ID, Checkpoint: cp, Artifacts: list}
}

func statusFor(d types.Decision) types.ArtifactStatus {
	switch d {
	case types.DecisionApprove:
		return types.StatusApproved
	case types.DecisionRevise:
		return types.StatusRevised
	default:
		return types.StatusRejected
	}
}
