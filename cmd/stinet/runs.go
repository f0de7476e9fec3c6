package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/application/handlers"
	"github.com/ersonp/stinet/internal/infrastructure/relationaldb/sqlite"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultRunsLimit, "Maximum number of runs to display")

	cmd.AddCommand(newRunsDeleteCmd())

	return cmd
}

func runRunsList(cmd *cobra.Command, limit int) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		runs, err := d.InspectHandler.Runs(ctx, limit)
		if err != nil {
			return err
		}
		writeRuns(cmd.OutOrStdout(), runs)
		return nil
	})
}

func writeRuns(w io.Writer, runs []handlers.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		fmt.Fprintln(w, "Use 'stinet run' to start one.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-20s  %6s  %5s  %s\n", "RUN", "CREATED", "STEPS", "NODES", "CHECKPOINTS")
	for _, s := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %6d  %5d  %d\n",
			s.Run.ID,
			s.Run.CreatedAt.Format("2006-01-02 15:04:05"),
			s.Run.Steps,
			s.Run.Nodes,
			len(s.CheckpointSteps),
		)
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete a run with its checkpoints and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(store *sqlite.Repository) error {
				if err := store.DeleteRun(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}
