// Package main provides the entry point for the stinet CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version        = "0.1.0-dev"
	globalDir      string
	globalScenario string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "stinet",
		Short:   "STI relationship network simulator",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&globalDir, "dir", "d", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&globalScenario, "scenario", "s", "", "Scenario to operate on (default: "+defaultScenario+")")

	rootCmd.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newImportCmd(),
		newRunsCmd(),
		newRelationshipsCmd(),
		newEventsCmd(),
		newExportCmd(),
		newScenariosCmd(),
	)

	return rootCmd
}
