package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/b2b-content-agent/internal/config"
	"github.com/jonathan/b2b-content-agent/internal/db"
	"github.com/jonathan/b2b-content-agent/internal/session"
	"github.com/spf13/cobra"
)

// Flags shared by every subcommand
var (
	configPath  string
	sessionDir  string
	databaseURL string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", "", "Directory for session files (default \"sessions\")")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
}

// loadConfig resolves the effective configuration: config file, then flags
// that were explicitly set, then environment, then defaults.
func loadConfig(cmd *cobra.Command, overrides func(cfg *config.Config)) (config.Config, error) {
	// Step 1: Load config file if provided
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}

	// Step 2: Apply CLI overrides, only for flags that were explicitly set
	if cmd.Flags().Changed("session-dir") {
		cfg.SessionDir = sessionDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = databaseURL
	}
	if overrides != nil {
		overrides(&cfg)
	}

	// Step 3: Environment, then defaults for anything still unset
	cfg.ApplyEnv()
	merged := cfg.MergeWithDefaults(config.Defaults())

	// Step 4: Validate the merged result
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	if merged.Verbose && configPath != "" {
		_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", configPath)
	}
	return merged, nil
}

// openStore returns the PostgreSQL store when a database URL is configured
// and the file store otherwise. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := session.NewPGStore(ctx, database)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		return store, database.Close, nil
	}

	store, err := session.NewFileStore(cfg.SessionDir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}
