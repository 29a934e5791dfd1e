// Package cmd implements the spacenotes-sync command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "spacenotes-sync",
	Short:   "spacenotes-sync - bidirectional sync between a Markdown vault and a replicated table store",
	Version: "v0.1.0",
	Long:    "spacenotes-sync - bidirectional sync between a Markdown vault and a replicated table store",
}

// Execute runs the CLI, exiting the process with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spacenotes-sync: %v\n", err)
		os.Exit(1)
	}
}
