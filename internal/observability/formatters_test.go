package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/b2b-content-agent/internal/gateway"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestPrinter(buf *bytes.Buffer) *Printer {
	p := NewPrinter(buf)
	p.now = func() time.Time { return testNow }
	return p
}

func fixtureSession() *types.Session {
	s := types.NewSession("sess-1", 20, testNow.Add(-time.Hour))
	s.Status = types.SessionAwaitingReview
	s.CurrentStage = 1
	s.CallsUsed = 7
	s.InputSource = "https://ledgerly.example"
	s.UpdatedAt = testNow
	s.Artifacts["content_generation.case_study.01"] = &types.Artifact{
		ID: "content_generation.case_study.01", Status: types.StatusDraft, Content: "# Acme closes faster", Version: 1,
		Provenance: types.Provenance{Outcome: types.OutcomeProduced},
	}
	s.Artifacts["content_generation.case_study.02"] = &types.Artifact{
		ID: "content_generation.case_study.02", Status: types.StatusDraft, Version: 1,
		Provenance: types.Provenance{Outcome: types.OutcomePendingBudget},
	}
	s.Artifacts["research_planning.product_analysis.01"] = &types.Artifact{
		ID: "research_planning.product_analysis.01", Status: types.StatusApproved, Content: "analysis", Version: 1,
	}
	s.Checkpoints = []types.Checkpoint{
		{ID: "cp-1", Ordinal: 1, StageName: types.StageResearchPlanning, Decision: types.DecisionApprove,
			ArtifactsPresented: []string{"research_planning.product_analysis.01"}},
		{ID: "cp-2", Ordinal: 2, StageName: types.StageContentGeneration, Track: "case_study", Decision: types.DecisionPending,
			ArtifactsPresented: []string{"content_generation.case_study.01"}},
	}
	return s
}

func TestPrintSession(t *testing.T) {
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintSession(fixtureSession())
	output := buf.String()

	assert.Contains(t, output, "SESSION")
	assert.Contains(t, output, "sess-1")
	assert.Contains(t, output, "awaiting_review")
	assert.Contains(t, output, "2/3 (content_generation)")
	assert.Contains(t, output, "7/20 used")
	assert.Contains(t, output, "pending budget: 1")
	assert.Contains(t, output, "Awaiting review: checkpoint 2 (content_generation")
}

func TestPrintSession_Finished(t *testing.T) {
	s := fixtureSession()
	s.CurrentStage = 3
	s.Status = types.SessionCompleted

	var buf bytes.Buffer
	newTestPrinter(&buf).PrintSession(s)

	assert.Contains(t, buf.String(), "3/3 (done)")
}

func TestPrintSession_Nil(t *testing.T) {
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintSession(nil)
	assert.Empty(t, buf.String())
}

func TestPrintSessions(t *testing.T) {
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintSessions([]session.Summary{
		{ID: "a", Status: types.SessionPaused, Stage: "content_generation", CallsUsed: 10, CallsBudget: 10, UpdatedAt: testNow.Add(-5 * time.Minute)},
		{ID: "b", Status: types.SessionCompleted, CallsUsed: 12, CallsBudget: 50, UpdatedAt: testNow.Add(-72 * time.Hour)},
		{ID: "c", Error: "corrupt session"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 4)
	assert.Contains(t, lines[1], "paused")
	assert.Contains(t, lines[1], "10/10")
	assert.Contains(t, lines[1], "5m ago")
	assert.Contains(t, lines[2], "done")
	assert.Contains(t, lines[2], "2026-05-01")
	assert.Contains(t, lines[3], "unreadable")
}

func TestPrintSessions_Empty(t *testing.T) {
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintSessions(nil)
	assert.Equal(t, "No sessions found.\n", buf.String())
}

func TestPrintCheckpoints(t *testing.T) {
	s := fixtureSession()
	s.Checkpoints[0].Decision = types.DecisionRevise
	s.Checkpoints[0].Revision = types.RevisionDone
	s.Checkpoints[0].Feedback = "Lead with the ROI numbers"

	var buf bytes.Buffer
	newTestPrinter(&buf).PrintCheckpoints(s)
	output := buf.String()

	assert.Contains(t, output, "CHECKPOINTS")
	assert.Contains(t, output, "#1")
	assert.Contains(t, output, "revision done")
	assert.Contains(t, output, "Lead with the ROI numbers")
	assert.Contains(t, output, "pending")
}

func TestPrintArtifacts_Truncates(t *testing.T) {
	var list []types.Artifact
	for i := 0; i < 7; i++ {
		list = append(list, types.Artifact{ID: "x", Status: types.StatusDraft, Version: 1, Content: "\n  Title line\nbody"})
	}

	var buf bytes.Buffer
	newTestPrinter(&buf).PrintArtifacts("DRAFTS", list)
	output := buf.String()

	assert.Contains(t, output, "DRAFTS")
	assert.Equal(t, 5, strings.Count(output, "Title line"))
	assert.Contains(t, output, "... and 2 more")
}

func TestPrintUsage_FailoverOrder(t *testing.T) {
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintUsage(map[llm.Provider]gateway.ProviderStats{
		llm.ProviderGemini: {Calls: 3, Successes: 3},
		llm.ProviderGroq:   {Calls: 5, Successes: 2, Failures: 3, QuotaHits: 3, Waited: 1500 * time.Millisecond},
	})
	output := buf.String()

	assert.Contains(t, output, "PROVIDER USAGE")
	assert.Less(t, strings.Index(output, "groq"), strings.Index(output, "gemini"))
	assert.Contains(t, output, "2s")
}

func TestPrintQuotas(t *testing.T) {
	until := testNow.Add(30 * time.Second)
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintQuotas([]types.ProviderQuota{
		{ProviderName: "groq", WindowLimit: 30, WindowSeconds: 60, CallsInWindow: 30, CooldownUntil: &until},
		{ProviderName: "gemini", WindowLimit: 15, WindowSeconds: 60, CallsInWindow: 2},
	})
	output := buf.String()

	assert.Contains(t, output, "groq       30/30 per 60s, cooling down 30s")
	assert.Contains(t, output, "gemini     2/15 per 60s")
	assert.NotContains(t, output, "2/15 per 60s,")
}

func TestPrintQuotas_WindowFull(t *testing.T) {
	var buf bytes.Buffer
	newTestPrinter(&buf).PrintQuotas([]types.ProviderQuota{
		{ProviderName: "openai", WindowLimit: 5, WindowSeconds: 60, CallsInWindow: 5, WindowStart: testNow.Add(-10 * time.Second)},
		{ProviderName: "gemini", WindowLimit: 5, WindowSeconds: 60, CallsInWindow: 5, WindowStart: testNow.Add(-2 * time.Minute)},
	})
	output := buf.String()

	assert.Contains(t, output, "openai     5/5 per 60s, window full")
	assert.Contains(t, output, "gemini     5/5 per 60s")
	assert.NotContains(t, output, "gemini     5/5 per 60s,")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", clip(strings.Repeat("é", 20), 10))
}
