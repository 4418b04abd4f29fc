package main

import (
	"context"
	"os"

	"github.com/jonathan/b2b-content-agent/internal/observability"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status SESSION_ID",
	Short: "Show a session's progress, checkpoints and quota state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	sess, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintSession(sess)
	printer.PrintCheckpoints(sess)
	printer.PrintQuotas(sess.Quotas)
	return nil
}
