package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/b2b-content-agent/internal/types"
)

// Export writes every artifact with content to
// <dir>/<stage>/<track>/<id>.md and returns the written paths.
func Export(dir string, list []types.Artifact) ([]string, error) {
	var written []string
	for _, a := range list {
		if !a.HasContent() {
			continue
		}
		track := a.Track
		if track == "" {
			track = string(a.Type)
		}
		path := filepath.Join(dir, a.ProducingStage, track, a.ID+".md")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("failed to create export directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(Render(a)), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// Render formats an artifact as markdown with a small metadata header.
func Render(a types.Artifact) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("id: %s\n", a.ID))
	sb.WriteString(fmt.Sprintf("type: %s\n", a.Type))
	sb.WriteString(fmt.Sprintf("status: %s\n", a.Status))
	sb.WriteString(fmt.Sprintf("version: %d\n", a.Version))
	if a.PersonaRef != "" {
		sb.WriteString(fmt.Sprintf("persona: %s\n", a.PersonaRef))
	}
	if a.SourceRef != "" {
		sb.WriteString(fmt.Sprintf("source: %s\n", a.SourceRef))
	}
	if a.Provenance.Provider != "" {
		sb.WriteString(fmt.Sprintf("provider: %s/%s\n", a.Provenance.Provider, a.Provenance.Model))
	}
	sb.WriteString("---\n\n")
	sb.WriteString(strings.TrimSpace(a.Content))
	sb.WriteString("\n")
	return sb.String()
}
