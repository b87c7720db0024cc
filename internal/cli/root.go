// Package cli implements the hlsdl command-line front end over
// internal/engine: a download subcommand for one-shot runs and a serve
// subcommand exposing the same core over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rivermist/hlsdl/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "hlsdl",
	Short: "Resumable, parallel HLS segment downloader",
}

func init() {
	if err := logging.CleanOld(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cleaning old logs: %v\n", err)
	}
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
