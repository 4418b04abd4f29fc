// Package observability provides formatted summaries of sessions, checkpoints
// and provider usage for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/gateway"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/quota"
	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output
type Printer struct {
	out io.Writer
	now func() time.Time
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, now: time.Now}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintSession outputs status, budget and per-status artifact counts.
func (p *Printer) PrintSession(s *types.Session) {
	if s == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", s.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", s.Status))
	stage := s.StageName()
	if stage == "" {
		stage = "done"
	}
	sb.WriteString(fmt.Sprintf("Stage:    %d/%d (%s)\n", min(s.CurrentStage+1, len(types.StageNames)), len(types.StageNames), stage))
	sb.WriteString(fmt.Sprintf("Calls:    %d/%d used\n", s.CallsUsed, s.CallsBudget))
	if s.InputSource != "" {
		sb.WriteString(fmt.Sprintf("Input:    %s\n", s.InputSource))
	}
	sb.WriteString(fmt.Sprintf("Updated:  %s\n", s.UpdatedAt.UTC().Format(time.RFC3339)))
	if s.FailureReason != "" {
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", s.FailureReason))
	}

	counts := map[types.ArtifactStatus]int{}
	pendingBudget, failed := 0, 0
	for _, a := range s.Artifacts {
		if a.HasContent() {
			counts[a.Status]++
		}
		switch a.Provenance.Outcome {
		case types.OutcomePendingBudget:
			pendingBudget++
		case types.OutcomeFailed, types.OutcomeFailedExhausted:
			failed++
		}
	}
	sb.WriteString("\nArtifacts:\n")
	for _, st := range []types.ArtifactStatus{types.StatusDraft, types.StatusApproved, types.StatusRevised, types.StatusRejected} {
		sb.WriteString(fmt.Sprintf("  %-9s %d\n", st, counts[st]))
	}
	if pendingBudget > 0 {
		sb.WriteString(fmt.Sprintf("  pending budget: %d\n", pendingBudget))
	}
	if failed > 0 {
		sb.WriteString(fmt.Sprintf("  failed: %d\n", failed))
	}

	if cp := s.FirstPending(); cp != nil {
		sb.WriteString(fmt.Sprintf("\nAwaiting review: checkpoint %d (%s)", cp.Ordinal, checkpointLabel(*cp)))
	}

	p.printBox("SESSION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSessions outputs one line per stored session.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSessions(list []session.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(p.out, "No sessions found.")
		return
	}
	fmt.Fprintf(p.out, "%-36s  %-15s  %-18s  %-9s  %s\n", "ID", "STATUS", "STAGE", "CALLS", "UPDATED")
	for _, s := range list {
		if s.Error != "" {
			fmt.Fprintf(p.out, "%-36s  %-15s  %s\n", s.ID, "unreadable", s.Error)
			continue
		}
		stage := s.Stage
		if stage == "" {
			stage = "done"
		}
		calls := fmt.Sprintf("%d/%d", s.CallsUsed, s.CallsBudget)
		fmt.Fprintf(p.out, "%-36s  %-15s  %-18s  %-9s  %s\n", s.ID, s.Status, stage, calls, p.ago(s.UpdatedAt))
	}
}

// PrintCheckpoints outputs the checkpoint history of a session.
func (p *Printer) PrintCheckpoints(s *types.Session) {
	if s == nil || len(s.Checkpoints) == 0 {
		return
	}

	var sb strings.Builder
	for _, cp := range s.Checkpoints {
		sb.WriteString(fmt.Sprintf("#%d  %-32s %s\n", cp.Ordinal, checkpointLabel(cp), cp.Decision))
		sb.WriteString(fmt.Sprintf("    %d artifact(s)", len(cp.ArtifactsPresented)))
		if cp.Revision != types.RevisionNone {
			sb.WriteString(fmt.Sprintf(", revision %s", cp.Revision))
		}
		sb.WriteString("\n")
		if cp.Feedback != "" {
			sb.WriteString(fmt.Sprintf("    \"%s\"\n", clip(cp.Feedback, 45)))
		}
	}

	p.printBox("CHECKPOINTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArtifacts outputs the artifacts presented at a checkpoint.
func (p *Printer) PrintArtifacts(title string, list []types.Artifact) {
	if len(list) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(list), maxItemsToShow)
	for i := 0; i < count; i++ {
		a := list[i]
		sb.WriteString(fmt.Sprintf("• %s [%s v%d]\n", a.ID, a.Status, a.Version))
		if first := firstLine(a.Content); first != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", first))
		}
	}
	if len(list) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(list)-maxItemsToShow))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintUsage outputs per-provider call statistics in failover order.
func (p *Printer) PrintUsage(usage map[llm.Provider]gateway.ProviderStats) {
	if len(usage) == 0 {
		return
	}

	providers := make([]llm.Provider, 0, len(usage))
	for prov := range usage {
		providers = append(providers, prov)
	}
	sort.Slice(providers, func(i, j int) bool {
		return orderOf(providers[i]) < orderOf(providers[j])
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s %5s %5s %5s %6s %8s\n", "PROVIDER", "CALLS", "OK", "FAIL", "QUOTA", "WAITED"))
	for _, prov := range providers {
		st := usage[prov]
		sb.WriteString(fmt.Sprintf("%-10s %5d %5d %5d %6d %8s\n",
			prov, st.Calls, st.Successes, st.Failures, st.QuotaHits, st.Waited.Round(time.Second)))
	}

	p.printBox("PROVIDER USAGE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQuotas outputs persisted rate-limit state.
func (p *Printer) PrintQuotas(quotas []types.ProviderQuota) {
	if len(quotas) == 0 {
		return
	}

	limits := make(map[string]quota.Limit, len(quotas))
	for _, q := range quotas {
		limits[q.ProviderName] = quota.Limit{
			RequestsPerWindow: q.WindowLimit,
			Window:            time.Duration(q.WindowSeconds) * time.Second,
		}
	}
	tracker := quota.NewTracker(limits, quota.WithClock(p.now))
	tracker.Restore(quotas)

	now := p.now()
	var sb strings.Builder
	for _, q := range quotas {
		sb.WriteString(fmt.Sprintf("%-10s %d/%d per %ds", q.ProviderName, q.CallsInWindow, q.WindowLimit, q.WindowSeconds))
		switch {
		case q.InCooldown(now):
			sb.WriteString(fmt.Sprintf(", cooling down %s", q.CooldownUntil.Sub(now).Round(time.Second)))
		case !tracker.Available(q.ProviderName):
			sb.WriteString(", window full")
		}
		sb.WriteString("\n")
	}

	p.printBox("PROVIDER QUOTAS", strings.TrimSuffix(sb.String(), "\n"))
}

func (p *Printer) ago(t time.Time) string {
	d := p.now().Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.UTC().Format("2006-01-02")
	}
}

func checkpointLabel(cp types.Checkpoint) string {
	if cp.Track != "" {
		return cp.StageName + " / " + cp.Track
	}
	return cp.StageName
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func orderOf(p llm.Provider) int {
	for i, q := range llm.DefaultOrder {
		if q == p {
			return i
		}
	}
	return len(llm.DefaultOrder)
}
