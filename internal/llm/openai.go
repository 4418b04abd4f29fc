package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatClient implements Client for providers that speak the OpenAI
// chat completions API: Groq, OpenAI and Anthropic's compatibility endpoint.
type OpenAICompatClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAICompatClient creates a client for an OpenAI-compatible provider
func NewOpenAICompatClient(config *Config, apiKey string) (*OpenAICompatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAICompatClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Provider returns the configured provider
func (c *OpenAICompatClient) Provider() Provider {
	return c.config.Provider
}

// GenerateContent generates text content using the specified model tier
func (c *OpenAICompatClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", &ProviderError{Provider: c.config.Provider, Kind: KindFatal, Message: fmt.Sprintf("no model configured for tier %s", tier)}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Temperature: c.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", Classify(c.config.Provider, 0, fmt.Errorf("no choices in response: %w", ErrEmptyResponse))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", Classify(c.config.Provider, 0, fmt.Errorf("blank message in response: %w", ErrEmptyResponse))
	}
	return text, nil
}

func (c *OpenAICompatClient) classify(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return Classify(c.config.Provider, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return Classify(c.config.Provider, reqErr.HTTPStatusCode, err)
	}
	return Classify(c.config.Provider, 0, err)
}

// GetModel returns the model name for a tier
func (c *OpenAICompatClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the underlying HTTP client holds no dedicated resources
func (c *OpenAICompatClient) Close() error {
	return nil
}
