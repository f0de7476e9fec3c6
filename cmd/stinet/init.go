package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/application/handlers"
	"github.com/ersonp/stinet/internal/infrastructure/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new stinet project",
		Long:  "Creates a .stinet directory with default configuration and prepares the run database.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	base, err := basePath()
	if err != nil {
		return err
	}

	if config.Exists(base) {
		return fmt.Errorf("stinet already initialized in %s", base)
	}

	store, err := openStore(ctx, config.SQLitePathForScenario(base, defaultScenario))
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := handlers.NewInitHandler(store).Handle(ctx, base)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", result.ConfigPath)
	fmt.Fprintf(out, "Created database %s\n", result.DatabasePath)
	fmt.Fprintln(out, "stinet initialized successfully!")

	return nil
}
