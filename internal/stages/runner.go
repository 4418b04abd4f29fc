package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/b2b-content-agent/internal/artifacts"
	"github.com/jonathan/b2b-content-agent/internal/budget"
	"github.com/jonathan/b2b-content-agent/internal/gateway"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// DefaultParallelism bounds how many content tracks generate at once.
const DefaultParallelism = 4

// ItemResult is the outcome of one work item in a stage run.
type ItemResult struct {
	ArtifactID string
	Track      string
	Outcome    types.ItemOutcome
	Skipped    bool // Already produced by an earlier run
	Attempts   int
	Err        error
}

// StageResult tallies item outcomes for one stage run.
type StageResult struct {
	Stage         string
	StageIndex    int
	Items         []ItemResult
	Produced      int
	Skipped       int
	PendingBudget int
	Failed        int
}

func (r *StageResult) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch {
	case item.Skipped:
		r.Skipped++
	case item.Outcome == types.OutcomeProduced:
		r.Produced++
	case item.Outcome == types.OutcomePendingBudget:
		r.PendingBudget++
	default:
		r.Failed++
	}
}

// BudgetExhausted reports whether any item was left for lack of budget.
func (r *StageResult) BudgetExhausted() bool {
	return r.PendingBudget > 0
}

// Summary is a one-line tally for progress output.
func (r *StageResult) Summary() string {
	return fmt.Sprintf("%d produced, %d already done, %d pending budget, %d failed",
		r.Produced, r.Skipped, r.PendingBudget, r.Failed)
}

type workItem struct {
	def     TaskDefinition
	stage   string
	id      string
	track   string
	seq     int
	total   int
	persona string
	source  *types.Artifact
}

// Runner produces the artifacts of a stage through the collaborator.
type Runner struct {
	registry     *Registry
	store        *artifacts.Store
	collab       Collaborator
	counter      *budget.Counter
	product      string
	persist      func(ctx context.Context) error
	maxParallel  int
	personaCount int
	now          func() time.Time

	outMu sync.Mutex
	out   io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallelism sets how many tracks of a parallel stage run at once.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxParallel = n
		}
	}
}

// WithPersonaCount sets how many personas content items rotate through.
func WithPersonaCount(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.personaCount = n
		}
	}
}

// WithPersist sets the callback invoked after every committed item.
func WithPersist(fn func(ctx context.Context) error) Option {
	return func(r *Runner) {
		r.persist = fn
	}
}

// WithProgress sets where per-item progress lines are written.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		r.now = clock
	}
}

// NewRunner creates a runner for one session.
func NewRunner(registry *Registry, store *artifacts.Store, collab Collaborator, counter *budget.Counter, product string, opts ...Option) *Runner {
	r := &Runner{
		registry:     registry,
		store:        store,
		collab:       collab,
		counter:      counter,
		product:      product,
		maxParallel:  DefaultParallelism,
		personaCount: DefaultPersonaCount,
		now:          time.Now,
		out:          io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run produces every unproduced item of a stage. Items that already have
// content are skipped, so re-running a partially completed stage only does
// the missing work. Item failures are recorded on the artifact and do not
// stop the stage; an error is returned only for cancellation or when the
// session cannot be persisted.
func (r *Runner) Run(ctx context.Context, stageIndex int) (*StageResult, error) {
	stage, err := r.registry.Stage(stageIndex)
	if err != nil {
		return nil, err
	}

	result := &StageResult{Stage: stage.Name, StageIndex: stage.Index}
	var mu sync.Mutex
	record := func(item ItemResult) {
		mu.Lock()
		result.add(item)
		mu.Unlock()
	}

	lanes := r.plan(stage)
	if !stage.Parallel || len(lanes) < 2 {
		for _, lane := range lanes {
			if err := r.runLane(ctx, lane, record); err != nil {
				return result, err
			}
		}
	} else {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(r.maxParallel)
		for _, lane := range lanes {
			g.Go(func() error {
				return r.runLane(gCtx, lane, record)
			})
		}
		err = g.Wait()
	}

	sort.Slice(result.Items, func(i, j int) bool {
		return result.Items[i].ArtifactID < result.Items[j].ArtifactID
	})
	return result, err
}

// plan lays out the stage's items as lanes. Items within a lane run in
// order; lanes of a parallel stage run concurrently.
func (r *Runner) plan(stage StageDefinition) [][]workItem {
	var lanes [][]workItem
	for _, def := range stage.Tasks {
		if def.Count == 0 {
			lanes = append(lanes, r.sourcedItems(stage, def))
			continue
		}
		lane := make([]workItem, 0, def.Count)
		for seq := 1; seq <= def.Count; seq++ {
			item := workItem{
				def:   def,
				stage: stage.Name,
				id:    artifacts.ID(stage.Name, def.Track, seq),
				track: def.Track,
				seq:   seq,
				total: def.Count,
			}
			if stage.Name == types.StageContentGeneration {
				item.persona = r.personaRef(seq)
			}
			lane = append(lane, item)
		}
		lanes = append(lanes, lane)
	}
	if stage.Parallel {
		return lanes
	}
	var single []workItem
	for _, lane := range lanes {
		single = append(single, lane...)
	}
	return [][]workItem{single}
}

// sourcedItems creates one item per reviewed content artifact that survived
// its checkpoint.
func (r *Runner) sourcedItems(stage StageDefinition, def TaskDefinition) []workItem {
	sources := r.store.List(artifacts.Filter{
		Stage:    types.StageContentGeneration,
		Statuses: []types.ArtifactStatus{types.StatusApproved, types.StatusRevised},
	})
	items := make([]workItem, 0, len(sources))
	for i := range sources {
		src := sources[i]
		if !src.HasContent() {
			continue
		}
		items = append(items, workItem{
			def:     def,
			stage:   stage.Name,
			id:      artifacts.ID(stage.Name, src.Track, src.Sequence),
			track:   src.Track,
			seq:     src.Sequence,
			total:   len(sources),
			persona: src.PersonaRef,
			source:  &src,
		})
	}
	return items
}

// personaRef links a content item to a persona in the persona library,
// rotating through the library in sequence order.
func (r *Runner) personaRef(seq int) string {
	library := artifacts.ID(types.StageResearchPlanning, TrackPersonaLibrary, 1)
	return fmt.Sprintf("%s#%d", library, (seq-1)%r.personaCount+1)
}

func (r *Runner) runLane(ctx context.Context, lane []workItem, record func(ItemResult)) error {
	for _, item := range lane {
		res, err := r.runItem(ctx, item)
		if err != nil {
			return err
		}
		record(res)
	}
	return nil
}

func (r *Runner) runItem(ctx context.Context, it workItem) (ItemResult, error) {
	res := ItemResult{ArtifactID: it.id, Track: it.track}
	if r.store.Produced(it.id) {
		res.Skipped = true
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	prior, _ := r.store.Get(it.id)
	art := types.Artifact{
		ID:             it.id,
		Type:           it.def.ArtifactType,
		ProducingStage: it.stage,
		Track:          it.track,
		Sequence:       it.seq,
		Status:         types.StatusDraft,
		PersonaRef:     it.persona,
		Provenance: types.Provenance{
			Stage:        it.stage,
			Task:         it.def.Name,
			Track:        it.track,
			AttemptCount: prior.Provenance.AttemptCount,
		},
	}
	if it.source != nil {
		art.SourceRef = it.source.ID
	}

	inputs, err := r.inputs(it.def)
	if err != nil {
		art.Provenance.Outcome = types.OutcomeFailed
		art.Provenance.LastError = err.Error()
		res.Outcome, res.Err = types.OutcomeFailed, err
		return res, r.commit(ctx, art, res)
	}

	if r.counter.Exhausted() {
		art.Provenance.Outcome = types.OutcomePendingBudget
		res.Outcome = types.OutcomePendingBudget
		return res, r.commit(ctx, art, res)
	}

	draft, err := r.collab.Generate(ctx, Task{
		Definition:   it.def,
		Stage:        it.stage,
		ArtifactID:   it.id,
		Sequence:     it.seq,
		Total:        it.total,
		Persona:      personaLabel(it.persona),
		PersonaCount: r.personaCount,
		Product:      r.product,
		Inputs:       inputs,
		Source:       it.source,
	})
	res.Attempts = attemptsOf(draft, err)
	art.Provenance.AttemptCount += res.Attempts

	switch {
	case err == nil:
		now := r.now()
		art.Content = draft.Content
		art.Provenance.Provider = draft.Provider
		art.Provenance.Model = draft.Model
		art.Provenance.Outcome = types.OutcomeProduced
		art.Provenance.GeneratedAt = &now
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(err, budget.ErrBudgetExhausted):
		art.Provenance.Outcome = types.OutcomePendingBudget
		art.Provenance.LastError = err.Error()
	case errors.Is(err, gateway.ErrAllProvidersExhausted):
		art.Provenance.Outcome = types.OutcomeFailedExhausted
		art.Provenance.LastError = gateway.LastFailure(err)
	default:
		art.Provenance.Outcome = types.OutcomeFailed
		art.Provenance.LastError = err.Error()
	}
	res.Outcome, res.Err = art.Provenance.Outcome, err
	return res, r.commit(ctx, art, res)
}

func (r *Runner) commit(ctx context.Context, art types.Artifact, res ItemResult) error {
	r.store.Put(art)
	if res.Err != nil {
		log.Printf("[STAGES] %s: %s: %v", art.ID, res.Outcome, res.Err)
	}
	r.progress("  [%s] %s: %s (attempts: %d)\n", art.Track, art.ID, res.Outcome, art.Provenance.AttemptCount)
	if r.persist == nil {
		return nil
	}
	if err := r.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist %s: %w", art.ID, err)
	}
	return nil
}

// inputs collects the upstream content a task depends on. Rejected or empty
// upstream artifacts count as missing.
func (r *Runner) inputs(def TaskDefinition) (map[types.ArtifactType]string, error) {
	inputs := make(map[types.ArtifactType]string, len(def.Dependencies))
	var missing []string
	for _, dep := range def.Dependencies {
		a, ok := r.store.Get(artifacts.ID(types.StageResearchPlanning, string(dep), 1))
		if !ok || !a.HasContent() || a.Status == types.StatusRejected {
			missing = append(missing, string(dep))
			continue
		}
		inputs[dep] = a.Content
	}
	if len(missing) > 0 {
		return inputs, &DependencyError{Task: def.Name, MissingDependencies: missing}
	}
	return inputs, nil
}

// Revise runs the single regeneration pass owed by a revise decision. Each
// revised artifact presented at the checkpoint is regenerated at most once
// with the reviewer's feedback; it stays revised whether or not the
// regeneration succeeds. ErrBudgetExhausted is returned when the budget runs
// out before every artifact was attempted; the remaining ones are picked up
// when the pass is resumed.
func (r *Runner) Revise(ctx context.Context, cp types.Checkpoint) (*StageResult, error) {
	result := &StageResult{Stage: cp.StageName, StageIndex: cp.StageIndex}
	for _, id := range cp.ArtifactsPresented {
		a, ok := r.store.Get(id)
		if !ok || a.Status != types.StatusRevised || a.RegeneratedFor == cp.Ordinal {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		def, ok := r.registry.TaskFor(a.ProducingStage, a.Type)
		if !ok {
			return result, fmt.Errorf("no task produces %s artifacts in %s", a.Type, a.ProducingStage)
		}
		if r.counter.Exhausted() {
			return result, budget.ErrBudgetExhausted
		}

		res, err := r.regenerate(ctx, cp, a, def)
		if err != nil {
			return result, err
		}
		result.add(res)
	}
	return result, nil
}

func (r *Runner) regenerate(ctx context.Context, cp types.Checkpoint, a types.Artifact, def TaskDefinition) (ItemResult, error) {
	res := ItemResult{ArtifactID: a.ID, Track: a.Track}

	task := Task{
		Definition:   def,
		Stage:        a.ProducingStage,
		ArtifactID:   a.ID,
		Sequence:     a.Sequence,
		Total:        def.Count,
		Persona:      personaLabel(a.PersonaRef),
		PersonaCount: r.personaCount,
		Product:      r.product,
		Revision: &Revision{
			Ordinal:       cp.Ordinal,
			Feedback:      cp.Feedback,
			PreviousDraft: previousDraft(a),
		},
	}
	if a.SourceRef != "" {
		if src, ok := r.store.Get(a.SourceRef); ok {
			task.Source = &src
		}
	}

	inputs, err := r.inputs(def)
	var draft *Draft
	if err == nil {
		task.Inputs = inputs
		draft, err = r.collab.Generate(ctx, task)
	}
	res.Attempts = attemptsOf(draft, err)

	switch {
	case err == nil:
		res.Outcome = types.OutcomeProduced
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(err, budget.ErrBudgetExhausted):
		// Leave the artifact eligible for the pass on resume.
		_ = r.store.Update(a.ID, func(art *types.Artifact) error {
			art.Provenance.AttemptCount += res.Attempts
			return nil
		})
		if perr := r.persistNow(ctx, a.ID); perr != nil {
			return res, perr
		}
		return res, err
	default:
		res.Outcome, res.Err = types.OutcomeFailed, err
		log.Printf("[STAGES] regeneration of %s for checkpoint %d failed: %v", a.ID, cp.Ordinal, err)
	}

	now := r.now()
	updateErr := r.store.Update(a.ID, func(art *types.Artifact) error {
		art.Provenance.AttemptCount += res.Attempts
		art.RegeneratedFor = cp.Ordinal
		if err != nil {
			art.Provenance.LastError = "regeneration failed: " + gateway.LastFailure(err)
			return nil
		}
		art.Content = draft.Content
		art.Provenance.Provider = draft.Provider
		art.Provenance.Model = draft.Model
		art.Provenance.Outcome = types.OutcomeProduced
		art.Provenance.LastError = ""
		art.Provenance.GeneratedAt = &now
		return nil
	})
	if updateErr != nil {
		return res, updateErr
	}
	r.progress("  [%s] %s: regenerated for checkpoint %d (%s)\n", a.Track, a.ID, cp.Ordinal, outcomeLabel(res))
	return res, r.persistNow(ctx, a.ID)
}

func (r *Runner) persistNow(ctx context.Context, id string) error {
	if r.persist == nil {
		return nil
	}
	if err := r.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist %s: %w", id, err)
	}
	return nil
}

func (r *Runner) progress(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func attemptsOf(draft *Draft, err error) int {
	if draft != nil {
		return draft.Attempts
	}
	return gateway.Attempts(err)
}

func previousDraft(a types.Artifact) string {
	if a.HasContent() {
		return a.Content
	}
	if n := len(a.PriorVersions); n > 0 {
		return a.PriorVersions[n-1].Content
	}
	return ""
}

// personaLabel turns a persona reference into prompt text.
func personaLabel(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '#' {
			return "Persona #" + ref[i+1:] + " from the persona library"
		}
	}
	return "the primary persona in the persona library"
}

func outcomeLabel(res ItemResult) string {
	if res.Err != nil {
		return "kept previous content"
	}
	return "new content"
}
