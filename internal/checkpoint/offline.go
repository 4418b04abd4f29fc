package checkpoint

import (
	"context"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/artifacts"
	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// ResolveStored resolves a checkpoint on a stored session without running
// the pipeline. An empty checkpointID selects the earliest pending
// checkpoint. Once nothing is pending the session is left paused so the
// next resume picks it up.
func ResolveStored(ctx context.Context, sessions session.Store, sessionID, checkpointID string, decision types.Decision, feedback string, now func() time.Time) (*types.Session, types.Checkpoint, error) {
	if now == nil {
		now = time.Now
	}
	sess, err := sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, types.Checkpoint{}, err
	}

	persist := func(ctx context.Context) error {
		if sess.Status == types.SessionActive {
			sess.Status = types.SessionPaused
		}
		sess.UpdatedAt = now()
		return sessions.Save(ctx, sess)
	}
	store := artifacts.NewStore(sess.Artifacts, artifacts.WithClock(now))
	m := NewManager(sess, store, persist, WithClock(now))

	if checkpointID == "" {
		pending, ok := m.Pending()
		if !ok {
			return sess, types.Checkpoint{}, &StateError{Reason: "no checkpoint awaiting review"}
		}
		checkpointID = pending.ID
	}

	cp, err := m.Resolve(ctx, checkpointID, decision, feedback)
	return sess, cp, err
}
