package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSession() *Session {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("sess-1", 10, now)
	s.Input = "A product"
	s.Artifacts["a1"] = &Artifact{
		ID:             "a1",
		Type:           ArtifactProductAnalysis,
		ProducingStage: StageResearchPlanning,
		Status:         StatusDraft,
		Content:        "analysis",
		Version:        1,
	}
	s.Checkpoints = append(s.Checkpoints, Checkpoint{
		ID:                 "cp-1",
		Ordinal:            1,
		StageName:          StageResearchPlanning,
		ArtifactsPresented: []string{"a1"},
		Decision:           DecisionPending,
		PresentedAt:        now,
	})
	return s
}

func TestSession_ValidateAcceptsConsistentSession(t *testing.T) {
	s := validSession()
	assert.Empty(t, s.Problems())
	assert.NoError(t, s.Validate())
}

func TestSession_ValidateRejectsBudgetOverrun(t *testing.T) {
	s := validSession()
	s.CallsUsed = 11

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds calls_budget")
}

func TestSession_ValidateRejectsUnknownStatus(t *testing.T) {
	s := validSession()
	s.Status = "sleeping"

	problems := s.Problems()
	require.NotEmpty(t, problems)
	assert.Contains(t, problems[0], "Status")
}

func TestSession_ValidateRejectsResolvedAfterPending(t *testing.T) {
	s := validSession()
	now := time.Now()
	s.Checkpoints = append(s.Checkpoints, Checkpoint{
		ID:          "cp-2",
		Ordinal:     2,
		StageName:   StageContentGeneration,
		Decision:    DecisionApprove,
		PresentedAt: now,
		ResolvedAt:  &now,
	})

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolved after an earlier pending")
}

func TestSession_ValidateRejectsOrdinalGap(t *testing.T) {
	s := validSession()
	s.Checkpoints[0].Ordinal = 3

	assert.Error(t, s.Validate())
}

func TestSession_ValidateRejectsUnknownPresentedArtifact(t *testing.T) {
	s := validSession()
	s.Checkpoints[0].ArtifactsPresented = append(s.Checkpoints[0].ArtifactsPresented, "ghost")

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact ghost")
}

func TestSession_ValidateRejectsPendingBudgetWithContent(t *testing.T) {
	s := validSession()
	s.Artifacts["a1"].Provenance.Outcome = OutcomePendingBudget

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending budget but has content")
}

func TestSession_FirstPending(t *testing.T) {
	s := validSession()
	now := time.Now()
	s.Checkpoints[0].Decision = DecisionApprove
	s.Checkpoints[0].ResolvedAt = &now
	s.Checkpoints = append(s.Checkpoints, Checkpoint{ID: "cp-2", Ordinal: 2, StageName: StageContentGeneration, Decision: DecisionPending})

	cp := s.FirstPending()
	require.NotNil(t, cp)
	assert.Equal(t, "cp-2", cp.ID)
	assert.Equal(t, 3, s.NextOrdinal())
}

func TestSession_StageName(t *testing.T) {
	s := validSession()
	assert.Equal(t, StageResearchPlanning, s.StageName())
	assert.False(t, s.Finished())

	s.CurrentStage = len(StageNames)
	assert.Equal(t, "", s.StageName())
	assert.True(t, s.Finished())
}

func TestArtifact_Transition(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		from    ArtifactStatus
		to      ArtifactStatus
		wantErr bool
	}{
		{"draft to approved", StatusDraft, StatusApproved, false},
		{"draft to revised", StatusDraft, StatusRevised, false},
		{"draft to rejected", StatusDraft, StatusRejected, false},
		{"approved to revised", StatusApproved, StatusRevised, true},
		{"rejected to approved", StatusRejected, StatusApproved, true},
		{"draft to draft", StatusDraft, StatusDraft, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Artifact{ID: "x", Status: tt.from}
			err := a.Transition(tt.to, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, tt.from, a.Status)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.to, a.Status)
			}
		})
	}
}

func TestArtifact_Archive(t *testing.T) {
	now := time.Now()
	a := &Artifact{ID: "x", Status: StatusRevised, Content: "v1", Version: 1}
	a.Archive(2, "tighten it", now)

	require.Len(t, a.PriorVersions, 1)
	assert.Equal(t, "v1", a.PriorVersions[0].Content)
	assert.Equal(t, 2, a.PriorVersions[0].CheckpointOrdinal)
	assert.Equal(t, "tighten it", a.PriorVersions[0].Feedback)
	assert.Equal(t, 2, a.Version)
	assert.Empty(t, a.problems())
}

func TestProviderQuota_InCooldown(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	q := ProviderQuota{ProviderName: "gemini", WindowLimit: 10, WindowSeconds: 60}
	assert.False(t, q.InCooldown(now))

	q.CooldownUntil = &later
	assert.True(t, q.InCooldown(now))
	assert.False(t, q.InCooldown(later.Add(time.Second)))
}
