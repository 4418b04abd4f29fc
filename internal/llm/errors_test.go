package llm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_ByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusTooManyRequests, KindQuota},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusBadRequest, KindFatal},
		{http.StatusNotFound, KindFatal},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			pe := Classify(ProviderOpenAI, tt.status, errors.New("boom"))
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestClassify_ByMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorKind
	}{
		{"You exceeded your current quota, please check your plan", KindQuota},
		{"rpc error: code = ResourceExhausted desc = Resource exhausted", KindQuota},
		{"Rate limit reached for model llama", KindQuota},
		{"API key not valid. Please pass a valid API key.", KindAuth},
		{"model not found", KindFatal},
		{"connection reset by peer", KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			pe := Classify(ProviderGemini, 0, errors.New(tt.msg))
			assert.Equal(t, tt.want, pe.Kind)
		})
	}
}

func TestClassify_EmptyResponseIsTransient(t *testing.T) {
	pe := Classify(ProviderGroq, 0, fmt.Errorf("groq: %w", ErrEmptyResponse))
	assert.Equal(t, KindTransient, pe.Kind)
	assert.ErrorIs(t, pe, ErrEmptyResponse)
}

func TestAsProviderError(t *testing.T) {
	orig := &ProviderError{Provider: ProviderGemini, Kind: KindQuota, Message: "quota"}
	wrapped := fmt.Errorf("generate: %w", orig)

	got := AsProviderError(ProviderGemini, wrapped)
	assert.Same(t, orig, got)

	plain := AsProviderError(ProviderGroq, errors.New("weird failure"))
	assert.Equal(t, KindTransient, plain.Kind)
	assert.Equal(t, ProviderGroq, plain.Provider)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
	}{
		{"Please retry in 17.5s.", 17500 * time.Millisecond},
		{"Rate limit reached. Please try again in 4s", 4 * time.Second},
		{"retry after 30 seconds", 30 * time.Second},
		{`{"retryDelay": "12s"}`, 12 * time.Second},
		{"no hint here", 0},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRetryAfter(tt.msg))
		})
	}
}

func TestParseRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, ParseRetryAfterHeader(h))
	assert.Zero(t, ParseRetryAfterHeader(nil))

	h.Set("Retry-After", "9")
	assert.Equal(t, 9*time.Second, ParseRetryAfterHeader(h))

	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Zero(t, ParseRetryAfterHeader(h))
}

func TestProviderError_Error(t *testing.T) {
	pe := &ProviderError{Provider: ProviderOpenAI, Kind: KindQuota, StatusCode: 429, Message: "slow down"}
	require.EqualError(t, pe, "openai quota error (HTTP 429): slow down")

	pe.StatusCode = 0
	require.EqualError(t, pe, "openai quota error: slow down")
}
