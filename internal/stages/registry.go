// Package stages defines the three content stages and runs their work items
// through the content collaborator.
package stages

import (
	"fmt"

	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// Track names used in artifact ids and checkpoints
const (
	TrackProductAnalysis = "product_analysis"
	TrackPersonaLibrary  = "persona_library"
	TrackContentStrategy = "content_strategy"
	TrackCaseStudy       = "case_study"
	TrackWhitePaper      = "white_paper"
	TrackPitchDeck       = "pitch_deck"
	TrackSocialPost      = "social_post"
)

// DefaultTrackCounts is how many items each content track produces.
var DefaultTrackCounts = map[string]int{
	TrackCaseStudy:  3,
	TrackWhitePaper: 2,
	TrackPitchDeck:  2,
	TrackSocialPost: 5,
}

// DefaultPersonaCount is how many personas the persona library asks for.
const DefaultPersonaCount = 3

// TaskDefinition describes one kind of work item.
type TaskDefinition struct {
	Name         string // Prompt key
	Track        string
	ArtifactType types.ArtifactType
	Tier         llm.ModelTier
	Count        int                  // Items per run; 0 means one per source artifact
	Dependencies []types.ArtifactType // Upstream artifacts that must have usable content
}

// StageDefinition describes one stage of the pipeline.
type StageDefinition struct {
	Index    int
	Name     string
	Title    string
	Parallel bool // Tracks run concurrently; items within a track stay ordered
	Tasks    []TaskDefinition
}

// Tracks returns the stage's track names in definition order.
func (s StageDefinition) Tracks() []string {
	tracks := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		tracks = append(tracks, t.Track)
	}
	return tracks
}

// Registry holds the fixed stage sequence.
type Registry struct {
	stages []StageDefinition
}

// NewRegistry builds the stage sequence with the given per-track item counts.
// Tracks missing from counts use DefaultTrackCounts.
func NewRegistry(counts map[string]int) (*Registry, error) {
	count := func(track string) (int, error) {
		n, ok := counts[track]
		if !ok {
			return DefaultTrackCounts[track], nil
		}
		if n < 1 {
			return 0, fmt.Errorf("track %s: count must be at least 1, got %d", track, n)
		}
		return n, nil
	}
	for track := range counts {
		if _, ok := DefaultTrackCounts[track]; !ok {
			return nil, fmt.Errorf("unknown content track %q", track)
		}
	}

	crewInputs := []types.ArtifactType{types.ArtifactProductAnalysis, types.ArtifactPersonaLibrary, types.ArtifactContentStrategy}
	var content []TaskDefinition
	for _, def := range []struct {
		track string
		name  string
		typ   types.ArtifactType
	}{
		{TrackCaseStudy, "case-study", types.ArtifactCaseStudy},
		{TrackWhitePaper, "white-paper", types.ArtifactWhitePaper},
		{TrackPitchDeck, "pitch-deck", types.ArtifactPitchDeck},
		{TrackSocialPost, "social-post", types.ArtifactSocialPost},
	} {
		n, err := count(def.track)
		if err != nil {
			return nil, err
		}
		content = append(content, TaskDefinition{
			Name:         def.name,
			Track:        def.track,
			ArtifactType: def.typ,
			Tier:         llm.TierFlash,
			Count:        n,
			Dependencies: crewInputs,
		})
	}

	return &Registry{stages: []StageDefinition{
		{
			Index: 0,
			Name:  types.StageResearchPlanning,
			Title: "Research & planning",
			Tasks: []TaskDefinition{
				{Name: "product-analysis", Track: TrackProductAnalysis, ArtifactType: types.ArtifactProductAnalysis, Tier: llm.TierPro, Count: 1},
				{Name: "persona-library", Track: TrackPersonaLibrary, ArtifactType: types.ArtifactPersonaLibrary, Tier: llm.TierPro, Count: 1,
					Dependencies: []types.ArtifactType{types.ArtifactProductAnalysis}},
				{Name: "content-strategy", Track: TrackContentStrategy, ArtifactType: types.ArtifactContentStrategy, Tier: llm.TierPro, Count: 1,
					Dependencies: []types.ArtifactType{types.ArtifactProductAnalysis, types.ArtifactPersonaLibrary}},
			},
		},
		{
			Index:    1,
			Name:     types.StageContentGeneration,
			Title:    "Content generation",
			Parallel: true,
			Tasks:    content,
		},
		{
			Index: 2,
			Name:  types.StageReviewPolish,
			Title: "Review & polish",
			Tasks: []TaskDefinition{
				{Name: "polish", ArtifactType: types.ArtifactPolished, Tier: llm.TierFlash,
					Dependencies: []types.ArtifactType{types.ArtifactProductAnalysis, types.ArtifactContentStrategy}},
			},
		},
	}}, nil
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// Stage returns the definition at the given index.
func (r *Registry) Stage(index int) (StageDefinition, error) {
	if index < 0 || index >= len(r.stages) {
		return StageDefinition{}, fmt.Errorf("unknown stage index: %d", index)
	}
	return r.stages[index], nil
}

// TaskFor returns the task that produces artifacts of the given type.
func (r *Registry) TaskFor(stage string, typ types.ArtifactType) (TaskDefinition, bool) {
	for _, s := range r.stages {
		if s.Name != stage {
			continue
		}
		for _, t := range s.Tasks {
			if t.ArtifactType == typ {
				return t, true
			}
		}
	}
	return TaskDefinition{}, false
}

// TotalItems is the number of items stages with fixed counts produce.
func (r *Registry) TotalItems() int {
	total := 0
	for _, s := range r.stages {
		for _, t := range s.Tasks {
			total += t.Count
		}
	}
	return total
}

// DependencyError reports upstream artifacts that are missing or unusable.
type DependencyError struct {
	Task                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependencies for %s: %v", e.Task, e.MissingDependencies)
}
