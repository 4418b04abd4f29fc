package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/checkpoint"
	"github.com/jonathan/b2b-content-agent/internal/config"
	"github.com/jonathan/b2b-content-agent/internal/fetch"
	"github.com/jonathan/b2b-content-agent/internal/ingestion"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/observability"
	"github.com/jonathan/b2b-content-agent/internal/pipeline"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the content pipeline for a product description",
	Long: `Creates a session from a product description and drives it through
persona research, messaging, per-track content generation and final review.
Each stage stops at a review checkpoint.

Use --resume to continue a paused, interrupted or failed session. The API call
budget is fixed when a session is created and cannot be changed on resume.`,
	RunE: runPipelineCmd,
}

var (
	runInput          string
	runURL            string
	runResume         string
	runMaxAPICalls    int
	runMaxParallel    int
	runPersonas       int
	runCheckpointMode string
	runAutoApprove    bool
	runHaltOnReject   bool
	runUseBrowser     bool
	runVerbose        bool
)

func init() {
	runCommand.Flags().StringVarP(&runInput, "input", "i", "", "Path to product description file (mutually exclusive with --url)")
	runCommand.Flags().StringVar(&runURL, "url", "", "URL of a product page to fetch (mutually exclusive with --input)")
	runCommand.Flags().StringVar(&runResume, "resume", "", "Resume an existing session by ID")
	runCommand.Flags().IntVar(&runMaxAPICalls, "max-api-calls", 0, "API call budget for a new session (default 100)")
	runCommand.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Maximum concurrent generation tasks (default 4)")
	runCommand.Flags().IntVar(&runPersonas, "personas", 0, "Number of buyer personas to research (default 3)")
	runCommand.Flags().StringVar(&runCheckpointMode, "checkpoint-mode", "", "Content review granularity: per_track or combined")
	runCommand.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve every checkpoint without prompting")
	runCommand.Flags().BoolVar(&runHaltOnReject, "halt-on-reject", false, "Fail the session when a checkpoint is rejected")
	runCommand.Flags().BoolVar(&runUseBrowser, "use-browser", false, "Use headless browser for SPA product pages (requires Chrome)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	if err := checkRunSources(runInput, runURL, runResume); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, runOverrides(cmd))
	if err != nil {
		return err
	}
	if runResume != "" && cmd.Flags().Changed("max-api-calls") {
		log.Printf("[CLI] --max-api-calls ignored: session %s keeps the budget it was created with", runResume)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	clients, err := llm.NewClientsFromEnv(ctx, cfg.ProviderOrder())
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	opts := runOptions(cfg)
	opts.Sessions = store
	opts.Clients = clients

	var outcome *pipeline.Outcome
	if runResume != "" {
		outcome, err = pipeline.Resume(ctx, opts, runResume)
	} else {
		var input pipeline.Input
		input, err = readInput(ctx, cfg)
		if err != nil {
			return err
		}
		outcome, err = pipeline.Start(ctx, opts, input, cfg.MaxAPICalls)
	}

	if outcome != nil {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintUsage(outcome.Usage)
		if len(outcome.Exported) > 0 {
			fmt.Printf("Exported %d artifacts to %s\n", len(outcome.Exported), cfg.SessionDir)
		}
	}

	// A pause or a deferred review is a clean stop; the session is saved.
	if errors.Is(err, pipeline.ErrPaused) || errors.Is(err, pipeline.ErrAwaitingReview) {
		return nil
	}
	return err
}

// checkRunSources rejects flag combinations that do not name exactly one
// session source.
func checkRunSources(input, url, resume string) error {
	switch {
	case resume != "" && (input != "" || url != ""):
		return fmt.Errorf("--resume cannot be combined with --input or --url")
	case input != "" && url != "":
		return fmt.Errorf("--input and --url are mutually exclusive")
	case resume == "" && input == "" && url == "":
		return fmt.Errorf("either --input, --url or --resume must be provided")
	}
	return nil
}

func runOverrides(cmd *cobra.Command) func(cfg *config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("max-api-calls") {
			cfg.MaxAPICalls = runMaxAPICalls
		}
		if cmd.Flags().Changed("max-parallel") {
			cfg.MaxParallel = runMaxParallel
		}
		if cmd.Flags().Changed("personas") {
			cfg.PersonaCount = runPersonas
		}
		if cmd.Flags().Changed("checkpoint-mode") {
			cfg.CheckpointMode = runCheckpointMode
		}
		if cmd.Flags().Changed("auto-approve") {
			cfg.AutoApprove = runAutoApprove
		}
		if cmd.Flags().Changed("halt-on-reject") {
			cfg.HaltOnReject = runHaltOnReject
		}
		if cmd.Flags().Changed("use-browser") {
			cfg.UseBrowser = runUseBrowser
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = runVerbose
		}
	}
}

// runOptions maps the effective configuration onto pipeline options. Store
// and clients are filled in by the caller.
func runOptions(cfg config.Config) pipeline.RunOptions {
	opts := pipeline.RunOptions{
		QuotaLimits:     cfg.QuotaLimits(),
		Gateway:         cfg.GatewayConfig(),
		InitialCooldown: cfg.InitialCooldown.D(),
		MaxCooldown:     cfg.MaxCooldown.D(),
		TrackCounts:     cfg.TrackCounts,
		PersonaCount:    cfg.PersonaCount,
		MaxParallel:     cfg.MaxParallel,
		CheckpointMode:  pipeline.CheckpointMode(cfg.CheckpointMode),
		HaltOnReject:    cfg.HaltOnReject,
		ExportDir:       cfg.SessionDir,
		Out:             os.Stdout,
	}
	if cfg.AutoApprove {
		opts.Reviewer = checkpoint.AutoApprover{}
	} else {
		opts.Reviewer = &checkpoint.ConsoleReviewer{In: os.Stdin, Out: os.Stdout, ExportDir: cfg.SessionDir}
	}
	if cfg.Verbose {
		opts.OnProgress = func(e pipeline.ProgressEvent) {
			log.Printf("[PIPELINE] %s %s %s", e.Step, e.Category, e.Message)
		}
	}
	return opts
}

func readInput(ctx context.Context, cfg config.Config) (pipeline.Input, error) {
	var (
		product *ingestion.Product
		err     error
	)
	if runURL != "" {
		product, err = ingestion.FromURL(ctx, runURL, ingestion.Options{
			UseBrowser: cfg.UseBrowser,
			Verbose:    cfg.Verbose,
			Fetch:      fetch.DefaultOptions(),
		})
	} else {
		product, err = ingestion.FromFile(runInput, time.Now())
	}
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("failed to read product description: %w", err)
	}
	if cfg.Verbose {
		log.Printf("[CLI] product description %s: %d chars, hash %s", product.Metadata.Location, product.Metadata.Chars, product.Metadata.ShortHash())
	}
	return pipeline.Input{Text: product.Text, Source: product.Metadata.Location}, nil
}
