package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/b2b-content-agent/internal/checkpoint"
	"github.com/jonathan/b2b-content-agent/internal/types"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review SESSION_ID",
	Short: "Resolve a pending checkpoint without running the pipeline",
	Long: `Records a decision on a checkpoint of a stored session. Without --checkpoint
the earliest pending checkpoint is resolved. Continue the session afterwards
with "run --resume".`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

var (
	reviewDecision   string
	reviewFeedback   string
	reviewCheckpoint string
)

func init() {
	reviewCmd.Flags().StringVarP(&reviewDecision, "decision", "d", "", "Decision: approve, revise or reject (required)")
	reviewCmd.Flags().StringVarP(&reviewFeedback, "feedback", "f", "", "Feedback for the revision or rejection")
	reviewCmd.Flags().StringVar(&reviewCheckpoint, "checkpoint", "", "Checkpoint ID (defaults to the first pending one)")
	_ = reviewCmd.MarkFlagRequired("decision")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	decision, err := parseDecision(reviewDecision)
	if err != nil {
		return err
	}

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

	sess, cp, err := checkpoint.ResolveStored(ctx, store, args[0], reviewCheckpoint, decision, reviewFeedback, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Checkpoint %s (%s) resolved: %s\n", cp.ID, cp.StageName, cp.Decision)
	if next := sess.FirstPending(); next != nil {
		fmt.Printf("Next pending checkpoint: %s\n", next.ID)
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "Resume with: content_agent run --resume %s\n", sess.ID)
	}
	return nil
}

// parseDecision accepts the decisions an operator can record.
func parseDecision(s string) (types.Decision, error) {
	d := types.Decision(s)
	if d == types.DecisionPending || !d.Valid() {
		return "", fmt.Errorf("invalid decision %q: must be approve, revise or reject", s)
	}
	return d, nil
}
