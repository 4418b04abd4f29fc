package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/b2b-content-agent/internal/checkpoint"
	"github.com/jonathan/b2b-content-agent/internal/session"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrArtifactNotFound indicates the session has no artifact with the id.
type ErrArtifactNotFound struct {
	SessionID  string
	ArtifactID string
}

func (e *ErrArtifactNotFound) Error() string {
	return fmt.Sprintf("artifact %s not found in session %s", e.ArtifactID, e.SessionID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	var missing *ErrArtifactNotFound
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &missing), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkpoint.ErrInvalidCheckpointState):
		return http.StatusConflict
	case errors.Is(err, session.ErrCorruptSession), errors.Is(err, session.ErrUnsupportedSchema):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
