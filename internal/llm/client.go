package llm

import (
	"context"
	"fmt"
	"log"
)

// Client is an abstraction over LLM providers
type Client interface {
	// Provider returns which provider this client talks to
	Provider() Provider
	// GenerateContent generates text content using the specified model tier.
	// Failures are returned as *ProviderError.
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GetModel returns the provider model name for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("llm config is required")
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic:
		return NewOpenAICompatClient(config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// NewClientsFromEnv builds a client for every provider in order that has an
// API key in the environment. Providers without a key are skipped.
func NewClientsFromEnv(ctx context.Context, order []Provider) ([]Client, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}

	var clients []Client
	for _, p := range order {
		config := DefaultConfig(p)
		if config == nil {
			closeAll(clients)
			return nil, fmt.Errorf("unsupported provider: %s", p)
		}
		apiKey := APIKey(p)
		if apiKey == "" {
			log.Printf("[LLM] %s skipped: %s not set", p, Catalog[p].APIKeyEnv)
			continue
		}
		client, err := NewClient(ctx, config, apiKey)
		if err != nil {
			closeAll(clients)
			return nil, fmt.Errorf("failed to create %s client: %w", p, err)
		}
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM providers configured: set at least one of GROQ_API_KEY, GOOGLE_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY")
	}
	return clients, nil
}

func closeAll(clients []Client) {
	for _, c := range clients {
		_ = c.Close()
	}
}

// FuncClient adapts a function to the Client interface. It backs offline dry
// runs and tests.
type FuncClient struct {
	Name  Provider
	Model string
	Fn    func(ctx context.Context, prompt string, tier ModelTier) (string, error)
}

// Provider returns the configured provider name
func (c *FuncClient) Provider() Provider { return c.Name }

// GenerateContent calls Fn
func (c *FuncClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.Fn(ctx, prompt, tier)
}

// GetModel returns the configured model name
func (c *FuncClient) GetModel(ModelTier) string { return c.Model }

// Close is a no-op
func (c *FuncClient) Close() error { return nil }
