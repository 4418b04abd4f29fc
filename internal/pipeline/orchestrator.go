package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
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

// Run results other than completion. Each is returned together with an
// Outcome describing the state that was persisted.
var (
	ErrPaused         = errors.New("session paused")
	ErrAwaitingReview = errors.New("session awaiting review")
	ErrSessionFailed  = errors.New("session failed")
)

// CheckpointMode controls how content generation output is grouped for review.
type CheckpointMode string

// Checkpoint modes
const (
	CheckpointPerTrack CheckpointMode = "per_track"
	CheckpointCombined CheckpointMode = "combined"
)

// StageRunner is the part of stages.Runner the orchestrator drives.
type StageRunner interface {
	Run(ctx context.Context, stageIndex int) (*stages.StageResult, error)
	Revise(ctx context.Context, cp types.Checkpoint) (*stages.StageResult, error)
}

// Outcome describes where a run stopped.
type Outcome struct {
	SessionID   string
	Status      types.SessionStatus
	Stage       int
	StageName   string
	CallsUsed   int
	CallsBudget int
	Reason      string
	Pending     *types.Checkpoint
	Stages      []*stages.StageResult
	Usage       map[llm.Provider]gateway.ProviderStats
	Exported    []string
}

// ResumeHint is the command that continues this session.
func (o *Outcome) ResumeHint() string {
	return fmt.Sprintf("Resume with: content_agent run --resume %s", o.SessionID)
}

// Orchestrator sequences stages and checkpoints for one session.
type Orchestrator struct {
	sess        *types.Session
	sessions    session.Store
	store       *artifacts.Store
	registry    *stages.Registry
	runner      StageRunner
	checkpoints *checkpoint.Manager
	reviewer    checkpoint.Reviewer
	counter     *budget.Counter
	tracker     *quota.Tracker
	stats       func() map[llm.Provider]gateway.ProviderStats
	mode        CheckpointMode
	haltReject  bool
	exportDir   string
	onProgress  ProgressCallback
	out         io.Writer
	now         func() time.Time

	saveMu  sync.Mutex
	results []*stages.StageResult
}

// Run drives the session until it completes, pauses, fails or waits for a
// review that the reviewer deferred. Every stop is persisted before Run
// returns. A completed session is returned as is; a failed one is re-entered.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	out, err := o.run(ctx)
	if err != nil && out != nil {
		fmt.Fprintln(o.out, out.ResumeHint())
	}
	return out, err
}

func (o *Orchestrator) run(ctx context.Context) (*Outcome, error) {
	switch o.sess.Status {
	case types.SessionCompleted:
		fmt.Fprintf(o.out, "Session %s is already completed.\n", o.sess.ID)
		return o.outcome(""), nil
	case types.SessionFailed:
		log.Printf("[PIPELINE] re-entering failed session %s (was: %s)", o.sess.ID, o.sess.FailureReason)
		o.sess.FailureReason = ""
	}
	o.sess.Status = types.SessionActive
	if o.sess.FirstPending() != nil {
		o.sess.Status = types.SessionAwaitingReview
	}

	for {
		if err := ctx.Err(); err != nil {
			return o.pause(ctx, "stopped by operator")
		}

		if cp := o.sess.FirstPending(); cp != nil {
			if out, err := o.review(ctx, *cp); out != nil {
				return out, err
			}
			continue
		}

		if cp := o.owedRepass(); cp != nil {
			if out, err := o.repass(ctx, *cp); out != nil {
				return out, err
			}
			continue
		}

		if o.sess.Finished() {
			return o.complete(ctx)
		}

		def, err := o.registry.Stage(o.sess.CurrentStage)
		if err != nil {
			return o.fail(ctx, err.Error())
		}
		if o.needsRun(def) {
			if out, err := o.runStage(ctx, def); out != nil {
				return out, err
			}
			if o.sess.FirstPending() != nil {
				continue
			}
		}

		o.sess.CurrentStage++
		o.emit("stage_completed", def.Name, def.Title+" reviewed")
		if err := o.persist(ctx); err != nil {
			return o.outcome(err.Error()), fmt.Errorf("failed to persist session: %w", err)
		}
	}
}

// runStage produces the stage's items and presents its checkpoints. A
// non-nil Outcome means the run stops there.
func (o *Orchestrator) runStage(ctx context.Context, def stages.StageDefinition) (*Outcome, error) {
	fmt.Fprintf(o.out, "\nStage %d/%d: %s...\n", def.Index+1, o.registry.Len(), def.Title)
	o.emit("stage_started", def.Name, def.Title)

	res, err := o.runner.Run(ctx, def.Index)
	if res != nil {
		o.results = append(o.results, res)
	}
	if err != nil {
		if ctx.Err() != nil {
			return o.pause(ctx, "stopped by operator")
		}
		return o.fail(ctx, fmt.Sprintf("stage %s: %v", def.Name, err))
	}
	fmt.Fprintf(o.out, "Stage %d/%d: %s\n", def.Index+1, o.registry.Len(), res.Summary())

	if res.BudgetExhausted() {
		return o.pause(ctx, fmt.Sprintf("api call budget exhausted (%d/%d calls) with %d item(s) pending",
			o.counter.Used(), o.counter.Limit(), res.PendingBudget))
	}

	for _, track := range o.unpresented(def) {
		ids := o.idsFor(def.Name, track)
		cp, err := o.checkpoints.Present(ctx, def.Index, track, ids)
		if err != nil {
			return o.fail(ctx, fmt.Sprintf("present checkpoint: %v", err))
		}
		label := cp.StageName
		if cp.Track != "" {
			label += " / " + cp.Track
		}
		fmt.Fprintf(o.out, "Checkpoint %d presented: %s (%d artifacts)\n", cp.Ordinal, label, len(ids))
		o.emit("checkpoint_presented", def.Name, fmt.Sprintf("checkpoint %d", cp.Ordinal))
	}
	return nil, nil
}

// review asks the reviewer for a decision on the earliest pending checkpoint.
func (o *Orchestrator) review(ctx context.Context, cp types.Checkpoint) (*Outcome, error) {
	verdict, err := o.reviewer.Review(ctx, o.checkpoints.Presentation(cp))
	if err != nil {
		if errors.Is(err, checkpoint.ErrDeferred) || ctx.Err() != nil {
			o.sess.Status = types.SessionAwaitingReview
			if perr := o.persist(context.WithoutCancel(ctx)); perr != nil {
				return o.outcome(perr.Error()), fmt.Errorf("failed to persist session: %w", perr)
			}
			fmt.Fprintf(o.out, "\nCheckpoint %d is waiting for review.\n", cp.Ordinal)
			return o.outcome(fmt.Sprintf("checkpoint %d awaiting review", cp.Ordinal)), ErrAwaitingReview
		}
		return o.fail(ctx, fmt.Sprintf("review of checkpoint %d: %v", cp.Ordinal, err))
	}

	resolved, err := o.checkpoints.Resolve(ctx, cp.ID, verdict.Decision, verdict.Feedback)
	if err != nil {
		return o.outcome(err.Error()), err
	}
	fmt.Fprintf(o.out, "Checkpoint %d: %s\n", resolved.Ordinal, resolved.Decision)
	o.emit("checkpoint_resolved", resolved.StageName, string(resolved.Decision))

	if resolved.Decision == types.DecisionReject && o.haltReject {
		return o.fail(ctx, fmt.Sprintf("checkpoint %d rejected", resolved.Ordinal))
	}
	return nil, nil
}

// repass runs the regeneration owed by a revise decision.
func (o *Orchestrator) repass(ctx context.Context, cp types.Checkpoint) (*Outcome, error) {
	fmt.Fprintf(o.out, "Regenerating artifacts for checkpoint %d with reviewer feedback...\n", cp.Ordinal)
	res, err := o.runner.Revise(ctx, cp)
	if res != nil {
		o.results = append(o.results, res)
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return o.pause(ctx, "stopped by operator")
	case errors.Is(err, budget.ErrBudgetExhausted):
		return o.pause(ctx, fmt.Sprintf("api call budget exhausted (%d/%d calls) during revision of checkpoint %d",
			o.counter.Used(), o.counter.Limit(), cp.Ordinal))
	default:
		return o.fail(ctx, fmt.Sprintf("revision of checkpoint %d: %v", cp.Ordinal, err))
	}

	if err := o.checkpoints.MarkRepassDone(ctx, cp.ID); err != nil {
		return o.outcome(err.Error()), err
	}
	return nil, nil
}

func (o *Orchestrator) complete(ctx context.Context) (*Outcome, error) {
	o.sess.Status = types.SessionCompleted
	if err := o.persist(ctx); err != nil {
		return o.outcome(err.Error()), fmt.Errorf("failed to persist session: %w", err)
	}

	var exported []string
	if o.exportDir != "" {
		final := o.store.List(artifacts.Filter{Statuses: []types.ArtifactStatus{types.StatusApproved, types.StatusRevised}})
		paths, err := artifacts.Export(o.exportDir, final)
		if err != nil {
			log.Printf("[PIPELINE] export failed: %v", err)
		}
		exported = paths
	}

	fmt.Fprintf(o.out, "\nSession %s completed.\n", o.sess.ID)
	o.emit("completed", "", "")
	out := o.outcome("")
	out.Exported = exported
	return out, nil
}

func (o *Orchestrator) pause(ctx context.Context, reason string) (*Outcome, error) {
	o.sess.Status = types.SessionPaused
	if o.sess.FirstPending() != nil {
		o.sess.Status = types.SessionAwaitingReview
	}
	if err := o.persist(context.WithoutCancel(ctx)); err != nil {
		return o.outcome(reason), fmt.Errorf("failed to persist session: %w", err)
	}
	fmt.Fprintf(o.out, "\nSession paused: %s\n", reason)
	o.emit("paused", o.sess.StageName(), reason)
	return o.outcome(reason), ErrPaused
}

func (o *Orchestrator) fail(ctx context.Context, reason string) (*Outcome, error) {
	o.sess.Status = types.SessionFailed
	o.sess.FailureReason = reason
	if err := o.persist(context.WithoutCancel(ctx)); err != nil {
		return o.outcome(reason), fmt.Errorf("failed to persist session: %w", err)
	}
	fmt.Fprintf(o.out, "\nSession failed: %s\n", reason)
	o.emit("failed", o.sess.StageName(), reason)
	return o.outcome(reason), fmt.Errorf("%w: %s", ErrSessionFailed, reason)
}

// persist saves the session with the live budget and quota state. It is
// safe to call from concurrent stage tracks.
func (o *Orchestrator) persist(ctx context.Context) error {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	return o.store.View(func() error {
		o.sess.CallsUsed = o.counter.Used()
		o.sess.Quotas = o.tracker.Snapshot()
		o.sess.UpdatedAt = o.now()
		return o.sessions.Save(ctx, o.sess)
	})
}

// groups returns the checkpoint tracks a stage is reviewed in. "" is a
// checkpoint covering the whole stage.
func (o *Orchestrator) groups(def stages.StageDefinition) []string {
	if def.Parallel && o.mode != CheckpointCombined {
		return def.Tracks()
	}
	return []string{""}
}

// needsRun reports whether the stage still has to be run and presented.
// Running is idempotent, so a stage interrupted between checkpoints is
// simply run again.
func (o *Orchestrator) needsRun(def stages.StageDefinition) bool {
	return !o.presented(def.Index) || len(o.unpresented(def)) > 0
}

// unpresented lists the stage's checkpoint tracks that have artifacts but no
// checkpoint yet.
func (o *Orchestrator) unpresented(def stages.StageDefinition) []string {
	seen := make(map[string]bool)
	for _, cp := range o.sess.Checkpoints {
		if cp.StageIndex == def.Index {
			seen[cp.Track] = true
		}
	}
	var missing []string
	for _, track := range o.groups(def) {
		if !seen[track] && len(o.idsFor(def.Name, track)) > 0 {
			missing = append(missing, track)
		}
	}
	return missing
}

func (o *Orchestrator) presented(stage int) bool {
	for _, cp := range o.sess.Checkpoints {
		if cp.StageIndex == stage {
			return true
		}
	}
	return false
}

func (o *Orchestrator) idsFor(stage, track string) []string {
	list := o.store.List(artifacts.Filter{Stage: stage, Track: track})
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}

func (o *Orchestrator) owedRepass() *types.Checkpoint {
	for i := range o.sess.Checkpoints {
		if o.sess.Checkpoints[i].NeedsRepass() {
			return &o.sess.Checkpoints[i]
		}
	}
	return nil
}

func (o *Orchestrator) outcome(reason string) *Outcome {
	out := &Outcome{
		SessionID:   o.sess.ID,
		Status:      o.sess.Status,
		Stage:       o.sess.CurrentStage,
		StageName:   o.sess.StageName(),
		CallsUsed:   o.counter.Used(),
		CallsBudget: o.counter.Limit(),
		Reason:      reason,
		Stages:      o.results,
	}
	if cp := o.sess.FirstPending(); cp != nil {
		c := *cp
		out.Pending = &c
	}
	if o.stats != nil {
		out.Usage = o.stats()
	}
	return out
}

func (o *Orchestrator) emit(step, category, message string) {
	if o.onProgress != nil {
		o.onProgress(ProgressEvent{Step: step, Category: category, Message: message, RunID: o.sess.ID})
	}
}
