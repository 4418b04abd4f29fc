package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

func storedFixture(t *testing.T) (*session.FileStore, *fixture) {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Present(ctx, 1, "case_study", f.trackIDs("case_study"))
	require.NoError(t, err)
	_, err = f.mgr.Present(ctx, 1, "white_paper", f.trackIDs("white_paper"))
	require.NoError(t, err)

	fs, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Save(ctx, f.sess))
	return fs, f
}

func TestResolveStored_FirstPendingByDefault(t *testing.T) {
	fs, _ := storedFixture(t)
	later := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	sess, cp, err := ResolveStored(context.Background(), fs, "s1", "", types.DecisionApprove, "", func() time.Time { return later })
	require.NoError(t, err)
	assert.Equal(t, "cp-1", cp.ID)
	assert.Equal(t, types.DecisionApprove, cp.Decision)
	assert.Equal(t, types.SessionAwaitingReview, sess.Status)

	loaded, err := fs.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, types.DecisionApprove, loaded.Checkpoints[0].Decision)
	assert.True(t, loaded.Checkpoints[1].IsPending())
	assert.Equal(t, types.StatusApproved, loaded.Artifacts["content_generation.case_study.01"].Status)
	assert.True(t, loaded.UpdatedAt.Equal(later))
}

func TestResolveStored_LastDecisionPausesSession(t *testing.T) {
	fs, _ := storedFixture(t)
	ctx := context.Background()

	_, _, err := ResolveStored(ctx, fs, "s1", "cp-1", types.DecisionApprove, "", nil)
	require.NoError(t, err)
	sess, cp, err := ResolveStored(ctx, fs, "s1", "cp-2", types.DecisionRevise, "Add a pricing section", nil)
	require.NoError(t, err)

	assert.Equal(t, types.RevisionScheduled, cp.Revision)
	assert.Equal(t, types.SessionPaused, sess.Status)

	loaded, err := fs.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionPaused, loaded.Status)
	wp := loaded.Artifacts["content_generation.white_paper.01"]
	assert.Equal(t, types.StatusRevised, wp.Status)
	assert.Equal(t, "Add a pricing section", wp.Provenance.Feedback)
}

func TestResolveStored_DefaultFollowsPendingOrder(t *testing.T) {
	fs, _ := storedFixture(t)
	ctx := context.Background()

	_, first, err := ResolveStored(ctx, fs, "s1", "", types.DecisionApprove, "", nil)
	require.NoError(t, err)
	_, second, err := ResolveStored(ctx, fs, "s1", "", types.DecisionReject, "Off brand", nil)
	require.NoError(t, err)

	assert.Equal(t, "cp-1", first.ID)
	assert.Equal(t, "cp-2", second.ID)
	assert.Equal(t, types.DecisionReject, second.Decision)

	_, _, err = ResolveStored(ctx, fs, "s1", "", types.DecisionApprove, "", nil)
	assert.ErrorIs(t, err, ErrInvalidCheckpointState)
}

func TestResolveStored_OutOfOrder(t *testing.T) {
	fs, _ := storedFixture(t)

	_, _, err := ResolveStored(context.Background(), fs, "s1", "cp-2", types.DecisionApprove, "", nil)
	assert.ErrorIs(t, err, ErrInvalidCheckpointState)

	loaded, err := fs.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, loaded.Checkpoints[1].IsPending())
}

func TestResolveStored_NothingPending(t *testing.T) {
	fs, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	sess := types.NewSession("s2", 5, time.Now())
	require.NoError(t, fs.Save(context.Background(), sess))

	_, _, err = ResolveStored(context.Background(), fs, "s2", "", types.DecisionApprove, "", nil)
	assert.ErrorIs(t, err, ErrInvalidCheckpointState)
	assert.Contains(t, err.Error(), "no checkpoint awaiting review")
}

func TestResolveStored_UnknownSession(t *testing.T) {
	fs, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = ResolveStored(context.Background(), fs, "missing", "", types.DecisionApprove, "", nil)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
