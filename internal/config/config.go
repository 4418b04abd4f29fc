// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/b2b-content-agent/internal/schemas"
)

// Defaults applied by MergeWithDefaults.
const (
	DefaultSessionDir   = "sessions"
	DefaultMaxAPICalls  = 100
	DefaultMaxParallel  = 4
	DefaultPersonaCount = 3
)

// Duration is a time.Duration that reads and writes Go duration strings
// ("3s", "1m30s") in JSON.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ProviderLimit overrides the request rate for one provider.
type ProviderLimit struct {
	RPM    int      `json:"rpm,omitempty" validate:"omitempty,min=1"`
	MinGap Duration `json:"min_gap,omitempty" validate:"min=0"`
}

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; zero values are filled by MergeWithDefaults.
type Config struct {
	// Storage
	SessionDir  string `json:"session_dir,omitempty"`
	DatabaseURL string `json:"database_url,omitempty" validate:"omitempty,startswith=postgres"`

	// Budget and providers
	MaxAPICalls    int                      `json:"max_api_calls,omitempty" validate:"min=0"`
	Providers      []string                 `json:"providers,omitempty" validate:"unique,dive,oneof=groq gemini openai anthropic"`
	ProviderLimits map[string]ProviderLimit `json:"provider_limits,omitempty" validate:"dive,keys,oneof=groq gemini openai anthropic,endkeys"`

	// Retry tuning; zero means the gateway default
	MaxRetries      int      `json:"max_retries,omitempty" validate:"min=0,max=10"`
	InitialBackoff  Duration `json:"initial_backoff,omitempty" validate:"min=0"`
	MaxBackoff      Duration `json:"max_backoff,omitempty" validate:"min=0"`
	MaxQuotaWait    Duration `json:"max_quota_wait,omitempty" validate:"min=0"`
	InitialCooldown Duration `json:"initial_cooldown,omitempty" validate:"min=0"`
	MaxCooldown     Duration `json:"max_cooldown,omitempty" validate:"min=0"`

	// Stages and review
	MaxParallel    int            `json:"max_parallel,omitempty" validate:"min=0"`
	CheckpointMode string         `json:"checkpoint_mode,omitempty" validate:"omitempty,oneof=per_track combined"`
	TrackCounts    map[string]int `json:"track_counts,omitempty" validate:"dive,keys,oneof=case_study white_paper pitch_deck social_post,endkeys,min=1"`
	PersonaCount   int            `json:"persona_count,omitempty" validate:"min=0"`

	// Behavior
	AutoApprove  bool `json:"auto_approve,omitempty"`
	HaltOnReject bool `json:"halt_on_reject,omitempty"`
	UseBrowser   bool `json:"use_browser,omitempty"` // Use headless browser for SPA product pages
	Verbose      bool `json:"verbose,omitempty"`     // Print detailed debug information
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig loads configuration from a JSON file. The document is checked
// against the embedded config schema before it is decoded.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}
	if err := schemas.ValidateConfig(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// Validate checks field values and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff {
		return fmt.Errorf("config error: 'initial_backoff' (%s) exceeds 'max_backoff' (%s)", c.InitialBackoff.D(), c.MaxBackoff.D())
	}
	if c.MaxCooldown > 0 && c.InitialCooldown > c.MaxCooldown {
		return fmt.Errorf("config error: 'initial_cooldown' (%s) exceeds 'max_cooldown' (%s)", c.InitialCooldown.D(), c.MaxCooldown.D())
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from
// defaults. Booleans are never merged: an unset bool is indistinguishable
// from false, so callers apply bool flags directly.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.SessionDir == "" {
		result.SessionDir = defaults.SessionDir
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.CheckpointMode == "" {
		result.CheckpointMode = defaults.CheckpointMode
	}
	if len(result.Providers) == 0 {
		result.Providers = defaults.Providers
	}
	if len(result.ProviderLimits) == 0 {
		result.ProviderLimits = defaults.ProviderLimits
	}
	if len(result.TrackCounts) == 0 {
		result.TrackCounts = defaults.TrackCounts
	}

	if result.MaxAPICalls == 0 {
		result.MaxAPICalls = defaults.MaxAPICalls
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.MaxParallel == 0 {
		result.MaxParallel = defaults.MaxParallel
	}
	if result.PersonaCount == 0 {
		result.PersonaCount = defaults.PersonaCount
	}

	if result.InitialBackoff == 0 {
		result.InitialBackoff = defaults.InitialBackoff
	}
	if result.MaxBackoff == 0 {
		result.MaxBackoff = defaults.MaxBackoff
	}
	if result.MaxQuotaWait == 0 {
		result.MaxQuotaWait = defaults.MaxQuotaWait
	}
	if result.InitialCooldown == 0 {
		result.InitialCooldown = defaults.InitialCooldown
	}
	if result.MaxCooldown == 0 {
		result.MaxCooldown = defaults.MaxCooldown
	}

	return result
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		SessionDir:     DefaultSessionDir,
		MaxAPICalls:    DefaultMaxAPICalls,
		MaxParallel:    DefaultMaxParallel,
		PersonaCount:   DefaultPersonaCount,
		CheckpointMode: "per_track",
	}
}

// ApplyEnv fills storage settings from the environment when neither the
// config file nor flags set them: DATABASE_URL and CONTENT_AGENT_SESSION_DIR.
func (c *Config) ApplyEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.SessionDir == "" {
		c.SessionDir = os.Getenv("CONTENT_AGENT_SESSION_DIR")
	}
}
