package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompatTestClient(t *testing.T, handler http.HandlerFunc) *OpenAICompatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := DefaultConfig(ProviderGroq)
	config.BaseURL = srv.URL
	client, err := NewOpenAICompatClient(config, "test-key")
	require.NoError(t, err)
	return client
}

func TestOpenAICompatClient_Success(t *testing.T) {
	client := newCompatTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  # Draft  "},"finish_reason":"stop"}]}`))
	})

	text, err := client.GenerateContent(context.Background(), "write", TierFlash)
	require.NoError(t, err)
	assert.Equal(t, "# Draft", text)
	assert.Equal(t, ProviderGroq, client.Provider())
	assert.Equal(t, "llama-3.1-8b-instant", client.GetModel(TierFlash))
}

func TestOpenAICompatClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  ErrorKind
		wantRetry time.Duration
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"Rate limit reached. Please try again in 2s","type":"rate_limit_exceeded"}}`,
			wantKind:  KindQuota,
			wantRetry: 2 * time.Second,
		},
		{
			name:     "bad key",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`,
			wantKind: KindAuth,
		},
		{
			name:     "overloaded",
			status:   http.StatusServiceUnavailable,
			body:     `{"error":{"message":"Service Unavailable","type":"server_error"}}`,
			wantKind: KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newCompatTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GenerateContent(context.Background(), "write", TierPro)
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantRetry, pe.RetryAfter)
		})
	}
}

func TestOpenAICompatClient_EmptyChoicesIsTransient(t *testing.T) {
	client := newCompatTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})

	_, err := client.GenerateContent(context.Background(), "write", TierFlash)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindTransient, pe.Kind)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), DefaultConfig(ProviderOpenAI), "")
	assert.Error(t, err)

	_, err = NewClient(context.Background(), &Config{Provider: "mistral"}, "key")
	assert.Error(t, err)
}

func TestNewClientsFromEnv_SkipsMissingKeys(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")

	clients, err := NewClientsFromEnv(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, ProviderOpenAI, clients[0].Provider())
}

func TestNewClientsFromEnv_NoneConfigured(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewClientsFromEnv(context.Background(), []Provider{ProviderGroq, ProviderOpenAI})
	assert.Error(t, err)
}
