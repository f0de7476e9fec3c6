package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/application/handlers"
	"github.com/ersonp/stinet/internal/domain/entities"
)

func newEventsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events RUN_ID",
		Short: "List recorded relationship events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultEventsLimit, "Maximum number of events to display")

	return cmd
}

func runEvents(cmd *cobra.Command, runID string, limit int) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		result, err := d.InspectHandler.Events(ctx, runID, limit)
		if err != nil {
			return err
		}
		writeEvents(cmd.OutOrStdout(), result)
		return nil
	})
}

func writeEvents(w io.Writer, result *handlers.EventsResult) {
	if len(result.Counts) == 0 {
		fmt.Fprintf(w, "No events recorded for run %s.\n", result.RunID)
		return
	}

	kinds := make([]string, 0, len(result.Counts))
	for k := range result.Counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "Run %s event totals:\n", result.RunID)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-24s %d\n", k, result.Counts[entities.EventKind(k)])
	}

	fmt.Fprintf(w, "\nMost recent %d events:\n", len(result.Events))
	for _, ev := range result.Events {
		line := fmt.Sprintf("  [step %d] node %s %s rel %s %s %s-%s",
			ev.Step, ev.NodeID, ev.Kind, ev.RelationshipID, ev.Type, ev.MaleID, ev.FemaleID)
		if ev.Kind == entities.EventRelationshipTerminated {
			line += " (" + ev.Reason.String() + ")"
		}
		fmt.Fprintln(w, line)
	}
}
