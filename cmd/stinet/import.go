package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/application/handlers"
)

func newImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a population file",
		Long: "Validates individuals from a JSON or CSV file against the configured network without\n" +
			"running it. Pass the same file to 'stinet run --population' to simulate it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "auto", "File format (json, csv, auto)")

	return cmd
}

func runImport(cmd *cobra.Command, filePath, format string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checking %s...\n", filePath)

		result, err := d.SimulationHandler.CheckPopulation(ctx, filePath, format)
		if err != nil {
			return fmt.Errorf("checking file: %w", err)
		}

		writeImportResult(out, result)
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d invalid rows", len(result.Errors))
		}
		return nil
	})
}

func writeImportResult(w io.Writer, result *handlers.ImportResult) {
	// Display errors
	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nValidation errors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}

	// Display summary
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Valid: %d individuals, %d infected", result.Imported, result.Infected)

	if result.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped (duplicate ids)", result.Skipped)
	}

	if result.Foreign > 0 {
		fmt.Fprintf(w, ", %d on other ranks", result.Foreign)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, ", %d errors", len(result.Errors))
	}

	fmt.Fprintln(w)
}
