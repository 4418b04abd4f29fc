// Package pipeline drives a content session through its stages and review
// checkpoints.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/artifacts"
	"github.com/jonathan/b2b-content-agent/internal/budget"
	"github.com/jonathan/b2b-content-agent/internal/checkpoint"
	"github.com/jonathan/b2b-content-agent/internal/gateway"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/quota"
	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/jonathan/b2b-content-agent/internal/stages"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	Sessions        session.Store
	Clients         []llm.Client
	QuotaLimits     map[string]quota.Limit
	Gateway         gateway.Config // Zero value means gateway.DefaultConfig()
	InitialCooldown time.Duration
	MaxCooldown     time.Duration
	TrackCounts     map[string]int
	PersonaCount    int
	MaxParallel     int
	CheckpointMode  CheckpointMode
	HaltOnReject    bool
	Reviewer        checkpoint.Reviewer // Defaults to deferring every checkpoint
	ExportDir       string              // Final artifacts go to <ExportDir>/<session_id>/artifacts
	Out             io.Writer
	OnProgress      ProgressCallback

	// Test hooks
	Collaborator func(d gateway.Dispatcher) stages.Collaborator
	Clock        func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Input is the product description a session is created from.
type Input struct {
	Text   string
	Source string // File path or URL, for display
}

// Start creates a session with the given call budget, saves it, and runs it.
func Start(ctx context.Context, opts RunOptions, input Input, maxCalls int) (*Outcome, error) {
	if input.Text == "" {
		return nil, fmt.Errorf("product description is empty")
	}
	now := clockOf(opts)()
	sess := session.New(maxCalls, now)
	sess.Input = input.Text
	sess.InputSource = input.Source
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	o, err := New(sess, opts)
	if err != nil {
		return nil, err
	}
	if err := o.persist(ctx); err != nil {
		return nil, fmt.Errorf("failed to save new session: %w", err)
	}
	fmt.Fprintf(o.out, "Session %s created (budget: %d API calls)\n", sess.ID, sess.CallsBudget)
	return o.Run(ctx)
}

// Resume loads a stored session and continues it from its persisted state.
// The session's call budget is the one it was created with.
func Resume(ctx context.Context, opts RunOptions, sessionID string) (*Outcome, error) {
	sess, err := opts.Sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	o, err := New(sess, opts)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(o.out, "Resuming session %s at %s (%d/%d API calls used, status %s)\n",
		sess.ID, stageLabel(sess), sess.CallsUsed, sess.CallsBudget, sess.Status)
	return o.Run(ctx)
}

// New wires an orchestrator for a session: the budget counter and quota
// tracker are rebuilt from the session's persisted state.
func New(sess *types.Session, opts RunOptions) (*Orchestrator, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	mode := opts.CheckpointMode
	switch mode {
	case "":
		mode = CheckpointPerTrack
	case CheckpointPerTrack, CheckpointCombined:
	default:
		return nil, fmt.Errorf("unknown checkpoint mode %q", mode)
	}
	clock := clockOf(opts)
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	reviewer := opts.Reviewer
	if reviewer == nil {
		reviewer = checkpoint.DeferredReviewer{}
	}

	counter, err := budget.New(sess.CallsBudget, sess.CallsUsed)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}

	trackerOpts := []quota.Option{quota.WithClock(clock)}
	if opts.InitialCooldown > 0 && opts.MaxCooldown > 0 {
		trackerOpts = append(trackerOpts, quota.WithCooldown(opts.InitialCooldown, opts.MaxCooldown))
	}
	tracker := quota.NewTracker(opts.QuotaLimits, trackerOpts...)
	tracker.Restore(sess.Quotas)

	gwConfig := opts.Gateway
	if gwConfig == (gateway.Config{}) {
		gwConfig = gateway.DefaultConfig()
	}
	var gwOpts []gateway.Option
	if opts.Sleep != nil {
		gwOpts = append(gwOpts, gateway.WithSleep(opts.Sleep))
	}
	gw, err := gateway.New(opts.Clients, tracker, counter, gwConfig, gwOpts...)
	if err != nil {
		return nil, err
	}

	var collab stages.Collaborator = stages.NewPromptCollaborator(gw)
	if opts.Collaborator != nil {
		collab = opts.Collaborator(gw)
	}

	registry, err := stages.NewRegistry(opts.TrackCounts)
	if err != nil {
		return nil, err
	}
	if sess.Artifacts == nil {
		sess.Artifacts = make(map[string]*types.Artifact)
	}
	store := artifacts.NewStore(sess.Artifacts, artifacts.WithClock(clock))

	o := &Orchestrator{
		sess:       sess,
		sessions:   opts.Sessions,
		store:      store,
		registry:   registry,
		reviewer:   reviewer,
		counter:    counter,
		tracker:    tracker,
		stats:      gw.Stats,
		mode:       mode,
		haltReject: opts.HaltOnReject,
		onProgress: opts.OnProgress,
		out:        out,
		now:        clock,
	}
	if opts.ExportDir != "" {
		o.exportDir = filepath.Join(opts.ExportDir, sess.ID, "artifacts")
	}
	o.runner = stages.NewRunner(registry, store, collab, counter, sess.Input,
		stages.WithParallelism(opts.MaxParallel),
		stages.WithPersonaCount(opts.PersonaCount),
		stages.WithPersist(o.persist),
		stages.WithProgress(out),
		stages.WithClock(clock),
	)
	o.checkpoints = checkpoint.NewManager(sess, store, o.persist, checkpoint.WithClock(clock))
	return o, nil
}

// Session returns the session being driven.
func (o *Orchestrator) Session() *types.Session {
	return o.sess
}

func clockOf(opts RunOptions) func() time.Time {
	if opts.Clock != nil {
		return opts.Clock
	}
	return time.Now
}

func stageLabel(sess *types.Session) string {
	if sess.Finished() {
		return "the end of the pipeline"
	}
	return fmt.Sprintf("stage %d/%d (%s)", sess.CurrentStage+1, len(types.StageNames), sess.StageName())
}
