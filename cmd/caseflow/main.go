package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// configDir is the directory searched for caseflow.yml
var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "caseflow",
		Short: "Test case management service",
		Long: `Caseflow stores test plans, runs, cases and executions, serves a
JSON-RPC API for querying and reporting on them, and integrates with
external issue trackers.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".",
		"directory containing caseflow.yml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
