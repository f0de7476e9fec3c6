package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/application/handlers"
	"github.com/ersonp/stinet/internal/infrastructure/config"
)

type runFlags struct {
	steps      int
	seed       uint64
	population string
	format     string
	runID      string
	resume     string
	fromStep   int64
	recordActs bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relationship network simulation",
		Long: "Runs the simulation, checkpointing the network and recording relationship events.\n" +
			"Use --resume to continue a stored run from its latest (or --from-step) checkpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.steps, "steps", "n", 0, "Number of steps (default: simulation.steps)")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "Random seed (default: simulation.seed)")
	cmd.Flags().StringVarP(&flags.population, "population", "p", "", "Population file to import (json or csv)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "Population file format (json, csv, auto)")
	cmd.Flags().StringVar(&flags.runID, "run-id", "", "Id of a new run, shared by cooperating ranks (default: simulation.run_id or random)")
	cmd.Flags().StringVar(&flags.resume, "resume", "", "Run id to resume")
	cmd.Flags().Int64Var(&flags.fromStep, "from-step", -1, "Checkpoint step to resume from (default: latest)")
	cmd.Flags().BoolVar(&flags.recordActs, "record-acts", false, "Record every coital act as an event")

	return cmd
}

func runSimulation(cmd *cobra.Command, flags runFlags) error {
	ctx := cmd.Context()

	override := func(cfg *config.Config) {
		if flags.seed != 0 {
			cfg.Simulation.Seed = flags.seed
		}
		if flags.recordActs {
			cfg.Simulation.RecordCoitalActs = true
		}
		if flags.runID != "" {
			cfg.Simulation.RunID = flags.runID
		}
	}

	return withDeps(ctx, func(d *Deps) error {
		population := flags.population
		if population == "" && flags.resume == "" && d.Scenario != nil {
			population = d.Scenario.Population
		}

		result, err := d.SimulationHandler.Handle(ctx, handlers.RunOptions{
			Steps:          flags.steps,
			PopulationFile: population,
			Format:         flags.format,
			RunID:          flags.runID,
			ResumeRunID:    flags.resume,
			ResumeStep:     flags.fromStep,
		})
		if err != nil {
			return err
		}

		return writeRunSummary(cmd.OutOrStdout(), result)
	}, override)
}

func writeRunSummary(w io.Writer, result *handlers.RunResult) error {
	verb := "Completed"
	if result.Resumed {
		verb = "Resumed"
	}
	if _, err := fmt.Fprintf(w, "%s run %s (steps %d-%d)\n", verb, result.RunID, result.StartStep, result.EndStep); err != nil {
		return err
	}
	if result.Import != nil {
		fmt.Fprintf(w, "  imported:      %d individuals (%d infected)\n", result.Import.Imported, result.Import.Infected)
		if result.Import.Foreign > 0 {
			fmt.Fprintf(w, "  other ranks:   %d individuals\n", result.Import.Foreign)
		}
	}
	fmt.Fprintf(w, "  individuals:   %d\n", result.Individuals)
	fmt.Fprintf(w, "  infected:      %d\n", result.Infected)
	fmt.Fprintf(w, "  relationships: %d active, %d formed\n", result.Relationships, result.Formed)
	fmt.Fprintf(w, "  infections:    %d\n", result.Infections)
	fmt.Fprintf(w, "  migrations:    %d\n", result.Migrations)

	steps := append([]int64(nil), result.Checkpoints...)
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	_, err := fmt.Fprintf(w, "  checkpoints:   %v\n", steps)
	return err
}
