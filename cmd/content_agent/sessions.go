package main

import (
	"context"
	"os"

	"github.com/jonathan/b2b-content-agent/internal/observability"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	list, err := store.List(ctx)
	if err != nil {
		return err
	}
	observability.NewPrinter(os.Stdout).PrintSessions(list)
	return nil
}
