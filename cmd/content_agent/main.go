// Package main provides the content_agent command line: running, reviewing
// and inspecting B2B content sessions.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "content_agent",
	Short: "B2B content pipeline with review checkpoints",
	Long: `content_agent turns a product description into personas, messaging and
per-track content (case studies, white papers, pitch decks, social posts).
Every stage stops at a review checkpoint, and sessions can be resumed after
a pause, a quota stop or a crash.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
