// Package cmd implements the bookrag command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bookrag",
	Short: "bookrag - question answering over book content",
	Long: `bookrag ingests book content into a vector index and answers
natural-language questions about it, with source attribution.

Commands:
  serve    start the HTTP API
  ingest   ingest a markdown file as book content
  ask      ask a one-shot question from the terminal
  version  show version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
