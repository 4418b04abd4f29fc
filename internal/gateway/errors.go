package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/b2b-content-agent/internal/budget"
	"github.com/jonathan/b2b-content-agent/internal/llm"
)

// Sentinel errors matched with errors.Is against a *Error.
var (
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrBudgetExhausted       = budget.ErrBudgetExhausted
)

// ErrorKind identifies why a dispatch gave up.
type ErrorKind string

// Dispatch failure kinds
const (
	KindAllProvidersExhausted ErrorKind = "all_providers_exhausted"
	KindBudgetExhausted       ErrorKind = "budget_exhausted"
	KindCanceled              ErrorKind = "canceled"
)

// Failure records one provider's failed attempt or skip during a dispatch.
type Failure struct {
	Provider llm.Provider
	Kind     llm.ErrorKind
	Message  string
}

// Error is returned by Dispatch when no response could be produced.
type Error struct {
	Kind     ErrorKind
	Attempts int // Network calls made before giving up
	Failures []Failure
	Cause    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("dispatch failed (%s) after %d attempt(s)", e.Kind, e.Attempts))
	if len(e.Failures) > 0 {
		parts := make([]string, len(e.Failures))
		for i, f := range e.Failures {
			parts[i] = fmt.Sprintf("%s: %s", f.Provider, f.Kind)
		}
		sb.WriteString(" [")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("]")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindAllProvidersExhausted:
		return ErrAllProvidersExhausted
	case KindBudgetExhausted:
		return ErrBudgetExhausted
	default:
		return e.Cause
	}
}

// Attempts extracts the number of network calls made from a dispatch error.
func Attempts(err error) int {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Attempts
	}
	return 0
}

// LastFailure returns a short description of the last provider failure, or
// the error text when none was recorded.
func LastFailure(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) && len(gerr.Failures) > 0 {
		f := gerr.Failures[len(gerr.Failures)-1]
		return fmt.Sprintf("%s %s: %s", f.Provider, f.Kind, f.Message)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
