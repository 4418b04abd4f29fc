package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind tells the gateway how to react to a failed call.
type ErrorKind string

const (
	// KindTransient errors are retried on the same provider with backoff.
	KindTransient ErrorKind = "transient"
	// KindQuota errors put the provider in cooldown and fail over immediately.
	KindQuota ErrorKind = "quota"
	// KindAuth errors disable the provider for a long cooldown and fail over.
	KindAuth ErrorKind = "auth"
	// KindFatal errors fail over without retry or cooldown.
	KindFatal ErrorKind = "fatal"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from provider")

// ProviderError is a classified failure from a provider call.
type ProviderError struct {
	Provider   Provider
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (HTTP %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// AsProviderError extracts a *ProviderError from err. Errors that were not
// classified by a client are treated as transient.
func AsProviderError(provider Provider, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return Classify(provider, 0, err)
}

// Classify builds a ProviderError from an HTTP status code (0 if unknown) and
// the underlying error, falling back to message heuristics.
func Classify(provider Provider, status int, err error) *ProviderError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	pe := &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    msg,
		Cause:      err,
		RetryAfter: ParseRetryAfter(msg),
	}
	pe.Kind = kindFor(status, err, msg)
	return pe
}

func kindFor(status int, err error, msg string) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status >= 500:
		return KindTransient
	case status >= 400:
		return KindFatal
	}

	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "quota", "resource_exhausted", "resource exhausted", "rate limit", "rate_limit", "too many requests", "429"):
		return KindQuota
	case containsAny(lower, "api key", "api_key", "unauthorized", "permission denied", "permission_denied", "401", "403"):
		return KindAuth
	case containsAny(lower, "invalid argument", "invalid_argument", "not found", "400", "404"):
		return KindFatal
	}
	return KindTransient
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`),
	regexp.MustCompile(`(?i)try again in ([0-9]+(?:\.[0-9]+)?)\s*s`),
	regexp.MustCompile(`(?i)retry after ([0-9]+(?:\.[0-9]+)?)\s*(?:s|sec|seconds)?\b`),
	regexp.MustCompile(`(?i)"?retryDelay"?\s*:\s*"([0-9]+(?:\.[0-9]+)?)s"`),
}

// ParseRetryAfter extracts a provider's "retry in Ns" style hint from an
// error message. It returns zero when no hint is present.
func ParseRetryAfter(msg string) time.Duration {
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil || secs <= 0 {
			continue
		}
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

// ParseRetryAfterHeader reads a Retry-After header given in seconds.
func ParseRetryAfterHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
