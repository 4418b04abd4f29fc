// Package llm provides provider configuration and client abstractions for the
// language model backends the content pipeline can fail over between.
package llm

import "os"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierFlash is for fast drafting: social posts, summaries, polish passes
	TierFlash ModelTier = "flash"
	// TierPro is for reasoning-heavy work: analysis, strategy, long-form writing
	TierPro ModelTier = "pro"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	ProviderGroq      Provider = "groq"
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// DefaultOrder is the failover order used when none is configured.
var DefaultOrder = []Provider{ProviderGroq, ProviderGemini, ProviderOpenAI, ProviderAnthropic}

// Spec describes how to reach a provider and what it allows by default.
type Spec struct {
	Provider   Provider
	APIKeyEnv  string   // Environment variable holding the API key
	AltKeyEnvs []string // Accepted fallbacks for APIKeyEnv
	BaseURL    string   // OpenAI-compatible endpoint; empty for native SDKs
	DefaultRPM int      // Requests per minute when no quota is configured
	Models     map[ModelTier]string
}

// Catalog lists every supported provider.
var Catalog = map[Provider]Spec{
	ProviderGroq: {
		Provider:   ProviderGroq,
		APIKeyEnv:  "GROQ_API_KEY",
		BaseURL:    "https://api.groq.com/openai/v1",
		DefaultRPM: 30,
		Models: map[ModelTier]string{
			TierFlash: "llama-3.1-8b-instant",
			TierPro:   "llama-3.3-70b-versatile",
		},
	},
	ProviderGemini: {
		Provider:   ProviderGemini,
		APIKeyEnv:  "GOOGLE_API_KEY",
		AltKeyEnvs: []string{"GEMINI_API_KEY"},
		DefaultRPM: 15,
		Models: map[ModelTier]string{
			TierFlash: "gemini-2.5-flash-lite",
			TierPro:   "gemini-2.5-pro",
		},
	},
	ProviderOpenAI: {
		Provider:   ProviderOpenAI,
		APIKeyEnv:  "OPENAI_API_KEY",
		BaseURL:    "https://api.openai.com/v1",
		DefaultRPM: 60,
		Models: map[ModelTier]string{
			TierFlash: "gpt-4o-mini",
			TierPro:   "gpt-4o",
		},
	},
	ProviderAnthropic: {
		Provider:   ProviderAnthropic,
		APIKeyEnv:  "ANTHROPIC_API_KEY",
		BaseURL:    "https://api.anthropic.com/v1/",
		DefaultRPM: 50,
		Models: map[ModelTier]string{
			TierFlash: "claude-3-5-haiku-20241022",
			TierPro:   "claude-3-5-sonnet-20241022",
		},
	},
}

// Config holds the model configuration for one provider client
type Config struct {
	Provider    Provider
	BaseURL     string
	Temperature float32
	Models      map[ModelTier]string
}

// DefaultConfig returns the catalog configuration for a provider, or nil if
// the provider is unknown.
func DefaultConfig(p Provider) *Config {
	spec, ok := Catalog[p]
	if !ok {
		return nil
	}
	models := make(map[ModelTier]string, len(spec.Models))
	for k, v := range spec.Models {
		models[k] = v
	}
	return &Config{
		Provider:    p,
		BaseURL:     spec.BaseURL,
		Temperature: 0.7,
		Models:      models,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fall back to the fast model
	if model, ok := c.Models[TierFlash]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:    c.Provider,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		Models:      make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

// APIKey reads the provider's API key from the environment.
func APIKey(p Provider) string {
	spec, ok := Catalog[p]
	if !ok {
		return ""
	}
	if key := os.Getenv(spec.APIKeyEnv); key != "" {
		return key
	}
	for _, env := range spec.AltKeyEnvs {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return ""
}
