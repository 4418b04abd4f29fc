package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/artifacts"
	"github.com/jonathan/b2b-content-agent/internal/checkpoint"
	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// SessionResponse is the detail view of a session. Artifact content is
// omitted; fetch it per artifact.
type SessionResponse struct {
	ID                string                `json:"id"`
	Status            types.SessionStatus   `json:"status"`
	CurrentStage      int                   `json:"current_stage"`
	Stage             string                `json:"stage"`
	CallsUsed         int                   `json:"calls_used"`
	CallsBudget       int                   `json:"calls_budget"`
	InputSource       string                `json:"input_source,omitempty"`
	FailureReason     string                `json:"failure_reason,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	PendingCheckpoint *types.Checkpoint     `json:"pending_checkpoint,omitempty"`
	Artifacts         []ArtifactSummary     `json:"artifacts"`
	Quotas            []types.ProviderQuota `json:"quotas,omitempty"`
}

// ArtifactSummary is an artifact without its content.
type ArtifactSummary struct {
	ID       string               `json:"id"`
	Type     types.ArtifactType   `json:"type"`
	Stage    string               `json:"stage"`
	Track    string               `json:"track,omitempty"`
	Sequence int                  `json:"sequence"`
	Status   types.ArtifactStatus `json:"status"`
	Version  int                  `json:"version"`
	Outcome  types.ItemOutcome    `json:"outcome,omitempty"`
	Provider string               `json:"provider,omitempty"`
	Attempts int                  `json:"attempts"`
	Chars    int                  `json:"chars"`
}

// CheckpointsResponse lists a session's checkpoints in presentation order.
type CheckpointsResponse struct {
	SessionID   string             `json:"session_id"`
	Checkpoints []types.Checkpoint `json:"checkpoints"`
	PendingID   string             `json:"pending_id,omitempty"`
}

// ResolveRequest is the body of a resolve call.
type ResolveRequest struct {
	Decision types.Decision `json:"decision"`
	Feedback string         `json:"feedback,omitempty"`
}

// ResolveResponse reports the resolved checkpoint and the session state.
type ResolveResponse struct {
	Checkpoint    types.Checkpoint    `json:"checkpoint"`
	SessionStatus types.SessionStatus `json:"session_status"`
	NextPending   string              `json:"next_pending,omitempty"`
}

// handleListSessions returns summaries of stored sessions, newest first
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sessions": list, "count": len(list)})
}

// handleGetSession returns one session without artifact content
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, toSessionResponse(sess))
}

// handleListCheckpoints returns a session's checkpoint history
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	resp := CheckpointsResponse{SessionID: sess.ID, Checkpoints: sess.Checkpoints}
	if resp.Checkpoints == nil {
		resp.Checkpoints = []types.Checkpoint{}
	}
	if cp := sess.FirstPending(); cp != nil {
		resp.PendingID = cp.ID
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleGetArtifact returns one artifact as JSON, or as markdown with
// ?format=markdown
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	artifactID := r.PathValue("artifact_id")
	a, found := sess.Artifacts[artifactID]
	if !found || a == nil {
		s.fail(w, &ErrArtifactNotFound{SessionID: sess.ID, ArtifactID: artifactID})
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		s.jsonResponse(w, http.StatusOK, a)
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(artifacts.Render(*a)))
	default:
		s.fail(w, &ErrValidation{Field: "format", Message: "must be json or markdown"})
	}
}

// handleResolveCheckpoint records a review decision on a stored session.
// The pipeline picks it up on the next resume.
func (s *Server) handleResolveCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !session.ValidID(id) {
		s.fail(w, &ErrValidation{Field: "id", Message: "invalid session id"})
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !req.Decision.Valid() {
		s.fail(w, &ErrValidation{Field: "decision", Message: "must be approve, revise or reject"})
		return
	}

	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	sess, cp, err := checkpoint.ResolveStored(r.Context(), s.sessions, id, r.PathValue("checkpoint_id"), req.Decision, req.Feedback, s.now)
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := ResolveResponse{Checkpoint: cp, SessionStatus: sess.Status}
	if next := sess.FirstPending(); next != nil {
		resp.NextPending = next.ID
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*types.Session, bool) {
	id := r.PathValue("id")
	if !session.ValidID(id) {
		s.fail(w, &ErrValidation{Field: "id", Message: "invalid session id"})
		return nil, false
	}
	sess, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return sess, true
}

func toSessionResponse(sess *types.Session) SessionResponse {
	resp := SessionResponse{
		ID:            sess.ID,
		Status:        sess.Status,
		CurrentStage:  sess.CurrentStage,
		Stage:         sess.StageName(),
		CallsUsed:     sess.CallsUsed,
		CallsBudget:   sess.CallsBudget,
		InputSource:   sess.InputSource,
		FailureReason: sess.FailureReason,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
		Quotas:        sess.Quotas,
		Artifacts:     []ArtifactSummary{},
	}
	if cp := sess.FirstPending(); cp != nil {
		pending := *cp
		resp.PendingCheckpoint = &pending
	}
	for _, a := range artifacts.NewStore(sess.Artifacts).List(artifacts.Filter{}) {
		resp.Artifacts = append(resp.Artifacts, ArtifactSummary{
			ID:       a.ID,
			Type:     a.Type,
			Stage:    a.ProducingStage,
			Track:    a.Track,
			Sequence: a.Sequence,
			Status:   a.Status,
			Version:  a.Version,
			Outcome:  a.Provenance.Outcome,
			Provider: a.Provenance.Provider,
			Attempts: a.Provenance.AttemptCount,
			Chars:    len([]rune(a.Content)),
		})
	}
	return resp
}
