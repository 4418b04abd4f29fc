package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig(ProviderGemini)
	require.NotNil(t, config)

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierFlash))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierPro))
	assert.Empty(t, config.BaseURL)
}

func TestDefaultConfig_OpenAICompatibleProvidersHaveBaseURL(t *testing.T) {
	for _, p := range []Provider{ProviderGroq, ProviderOpenAI, ProviderAnthropic} {
		config := DefaultConfig(p)
		require.NotNil(t, config, p)
		assert.NotEmpty(t, config.BaseURL, p)
	}
}

func TestDefaultConfig_Unknown(t *testing.T) {
	assert.Nil(t, DefaultConfig("mistral"))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGroq,
		Models: map[ModelTier]string{
			TierFlash: "fallback-model",
		},
	}

	assert.Equal(t, "fallback-model", config.GetModel(TierPro))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{Provider: ProviderGroq, Models: map[ModelTier]string{}}
	assert.Equal(t, "", config.GetModel(TierPro))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig(ProviderOpenAI)
	newConfig := config.WithModel(TierPro, "custom-model")

	// Original should be unchanged
	assert.Equal(t, "gpt-4o", config.GetModel(TierPro))
	assert.Equal(t, "custom-model", newConfig.GetModel(TierPro))
	assert.Equal(t, "gpt-4o-mini", newConfig.GetModel(TierFlash))
	assert.Equal(t, config.BaseURL, newConfig.BaseURL)
}

func TestDefaultConfig_DoesNotShareCatalogMaps(t *testing.T) {
	config := DefaultConfig(ProviderGroq)
	config.Models[TierFlash] = "mutated"

	assert.Equal(t, "llama-3.1-8b-instant", Catalog[ProviderGroq].Models[TierFlash])
}

func TestAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	assert.Equal(t, "gsk-test", APIKey(ProviderGroq))
	assert.Equal(t, "", APIKey("unknown"))
}

func TestAPIKey_GeminiFallback(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gm-test")
	assert.Equal(t, "gm-test", APIKey(ProviderGemini))
}
