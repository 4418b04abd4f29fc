package stages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/b2b-content-agent/internal/gateway"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/prompts"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// Upstream content injected into prompts is truncated to these sizes.
const (
	MaxProductChars  = 30000
	MaxUpstreamChars = 50000
)

// ErrEmptyContent is returned when a generation call succeeds but yields no text.
var ErrEmptyContent = errors.New("collaborator returned empty content")

// Task is one work item handed to the collaborator.
type Task struct {
	Definition   TaskDefinition
	Stage        string
	ArtifactID   string
	Sequence     int
	Total        int
	Persona      string
	PersonaCount int
	Product      string
	Inputs       map[types.ArtifactType]string
	Source       *types.Artifact // Set for polish tasks
	Revision     *Revision       // Set for regeneration passes
}

// Revision carries reviewer feedback into a regeneration request.
type Revision struct {
	Ordinal       int
	Feedback      string
	PreviousDraft string
}

// Draft is generated content plus where it came from.
type Draft struct {
	Content  string
	Provider string
	Model    string
	Attempts int
}

// Collaborator generates the content for one task.
type Collaborator interface {
	Generate(ctx context.Context, task Task) (*Draft, error)
}

// PromptCollaborator renders the task's prompt template and sends it through
// the provider gateway.
type PromptCollaborator struct {
	dispatcher gateway.Dispatcher
}

// NewPromptCollaborator creates a collaborator backed by a dispatcher.
func NewPromptCollaborator(d gateway.Dispatcher) *PromptCollaborator {
	return &PromptCollaborator{dispatcher: d}
}

// Generate builds the prompt and dispatches it. On an empty reply the draft
// is still returned so the caller can account for the attempts made.
func (c *PromptCollaborator) Generate(ctx context.Context, task Task) (*Draft, error) {
	prompt, err := BuildPrompt(task)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatcher.Dispatch(ctx, gateway.Request{
		Prompt: prompt,
		Tier:   task.Definition.Tier,
		Label:  task.ArtifactID,
	})
	if err != nil {
		return nil, err
	}

	draft := &Draft{
		Content:  llm.StripCodeFence(resp.Text),
		Provider: string(resp.Provider),
		Model:    resp.Model,
		Attempts: resp.Attempts,
	}
	if strings.TrimSpace(draft.Content) == "" {
		draft.Content = ""
		return draft, fmt.Errorf("%s: %w", task.ArtifactID, ErrEmptyContent)
	}
	return draft, nil
}

// BuildPrompt renders the prompt for a task, appending the revision block
// when the task is a regeneration.
func BuildPrompt(task Task) (string, error) {
	data := map[string]string{
		"ProductDescription": llm.Truncate(task.Product, MaxProductChars),
		"ProductAnalysis":    llm.Truncate(task.Inputs[types.ArtifactProductAnalysis], MaxProductChars),
		"PersonaLibrary":     llm.Truncate(task.Inputs[types.ArtifactPersonaLibrary], MaxUpstreamChars),
		"ContentStrategy":    llm.Truncate(task.Inputs[types.ArtifactContentStrategy], MaxUpstreamChars),
		"PersonaCount":       strconv.Itoa(task.PersonaCount),
		"Sequence":           strconv.Itoa(task.Sequence),
		"Total":              strconv.Itoa(task.Total),
		"Persona":            task.Persona,
	}
	if task.Source != nil {
		data["ContentType"] = strings.ReplaceAll(string(task.Source.Type), "_", " ")
		data["Content"] = llm.Truncate(task.Source.Content, MaxUpstreamChars)
	}

	prompt, err := prompts.Render(prompts.ContentFile, task.Definition.Name, data)
	if err != nil {
		return "", err
	}
	if task.Revision == nil {
		return prompt, nil
	}

	suffix, err := prompts.Render(prompts.ContentFile, "revision", map[string]string{
		"Feedback":      task.Revision.Feedback,
		"PreviousDraft": llm.Truncate(task.Revision.PreviousDraft, MaxUpstreamChars),
	})
	if err != nil {
		return "", err
	}
	return prompt + suffix, nil
}
