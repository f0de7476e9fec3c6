package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/application/handlers"
	"github.com/ersonp/stinet/internal/domain/entities"
)

type relationshipsFlags struct {
	step    int64
	relType string
	limit   int
}

func newRelationshipsCmd() *cobra.Command {
	var flags relationshipsFlags

	cmd := &cobra.Command{
		Use:     "relationships RUN_ID",
		Aliases: []string{"rels"},
		Short:   "List checkpointed relationships of a run",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelationships(cmd, args[0], flags)
		},
	}

	cmd.Flags().Int64Var(&flags.step, "step", -1, "Checkpoint step (default: latest)")
	cmd.Flags().StringVarP(&flags.relType, "type", "t", "", "Filter by type (transitory, informal, marital, commercial)")
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", DefaultRelationshipsLimit, "Maximum number of relationships to display")

	return cmd
}

func runRelationships(cmd *cobra.Command, runID string, flags relationshipsFlags) error {
	var filter *entities.RelationshipType
	if flags.relType != "" {
		t, err := entities.ParseRelationshipType(flags.relType)
		if err != nil {
			return err
		}
		filter = &t
	}

	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		result, err := d.InspectHandler.Relationships(ctx, runID, flags.step, filter)
		if err != nil {
			return err
		}
		writeRelationships(cmd.OutOrStdout(), result, flags.limit)
		return nil
	})
}

func writeRelationships(w io.Writer, result *handlers.RelationshipsResult, limit int) {
	fmt.Fprintf(w, "Run %s, step %d: %d individuals, %d relationships\n",
		result.RunID, result.Step, result.Individuals, len(result.Relationships))

	for _, t := range entities.RelationshipTypes {
		if n := result.ByType[t]; n > 0 {
			fmt.Fprintf(w, "  %-11s %d\n", t.String(), n)
		}
	}

	if len(result.Relationships) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-12s  %-11s  %-10s  %-10s  %-10s  %10s  %10s  %5s\n",
		"ID", "TYPE", "STATE", "MALE", "FEMALE", "START", "REMAINING", "ACTS")

	shown := result.Relationships
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, rel := range shown {
		fmt.Fprintf(w, "%-12s  %-11s  %-10s  %-10s  %-10s  %10.1f  %10.1f  %5d\n",
			rel.ID, rel.Type, rel.State, rel.MaleID, rel.FemaleID, rel.StartTime, rel.Timer, rel.TotalCoitalActs)
	}

	if hidden := len(result.Relationships) - len(shown); hidden > 0 {
		fmt.Fprintf(w, "... %d more (use --limit)\n", hidden)
	}
}
