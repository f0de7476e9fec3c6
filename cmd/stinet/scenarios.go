package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/stinet/internal/infrastructure/config"
)

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Manage scenarios",
		RunE:  runScenariosList,
	}

	cmd.AddCommand(
		newScenariosListCmd(),
		newScenariosCreateCmd(),
		newScenariosDeleteCmd(),
	)

	return cmd
}

func newScenariosListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all scenarios",
		RunE:  runScenariosList,
	}
}

func runScenariosList(cmd *cobra.Command, args []string) error {
	base, err := basePath()
	if err != nil {
		return err
	}

	scenarios, err := config.LoadScenarios(base)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	writeScenarios(cmd.OutOrStdout(), scenarios)
	return nil
}

func writeScenarios(w io.Writer, scenarios *config.ScenariosConfig) {
	if len(scenarios.Scenarios) == 0 {
		fmt.Fprintln(w, "No scenarios configured.")
		fmt.Fprintln(w, "Use 'stinet scenarios create NAME' to create a scenario.")
		return
	}

	fmt.Fprintf(w, "%-20s %-8s %-6s %-10s %s\n", "NAME", "STEPS", "NODES", "SEED", "DESCRIPTION")
	fmt.Fprintf(w, "%-20s %-8s %-6s %-10s %s\n", "----", "-----", "-----", "----", "-----------")

	for _, name := range scenarios.Names() {
		s := scenarios.Scenarios[name]
		fmt.Fprintf(w, "%-20s %-8s %-6s %-10s %s\n", name, orDash(s.Steps), orDash(s.Nodes), orDash(s.Seed), s.Description)
	}
}

func orDash[T int | uint64](v T) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprint(v)
}

func newScenariosCreateCmd() *cobra.Command {
	var entry config.ScenarioEntry

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenariosCreate(cmd, args[0], entry)
		},
	}

	cmd.Flags().StringVarP(&entry.Description, "description", "D", "", "Scenario description")
	cmd.Flags().Uint64Var(&entry.Seed, "seed", 0, "Random seed")
	cmd.Flags().IntVar(&entry.Steps, "steps", 0, "Number of steps")
	cmd.Flags().IntVar(&entry.Nodes, "nodes", 0, "Number of nodes")
	cmd.Flags().IntVar(&entry.IndividualsPerNode, "individuals", 0, "Generated individuals per node")
	cmd.Flags().Float64Var(&entry.InitialPrevalence, "prevalence", 0, "Initial prevalence of generated individuals")
	cmd.Flags().StringVar(&entry.Population, "population", "", "Population file imported by default")

	return cmd
}

func runScenariosCreate(cmd *cobra.Command, name string, entry config.ScenarioEntry) error {
	base, err := basePath()
	if err != nil {
		return err
	}

	if !config.Exists(base) {
		return fmt.Errorf("no stinet project in %s (run 'stinet init' first)", base)
	}

	if config.SanitizeScenarioName(name) == defaultScenario {
		return fmt.Errorf("scenario name %q is reserved", name)
	}

	scenarios, err := config.LoadScenarios(base)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	if scenarios.Exists(name) {
		return fmt.Errorf("scenario %q already exists", name)
	}

	scenarios.Add(name, entry)
	if err := scenarios.Save(base); err != nil {
		return fmt.Errorf("saving scenarios: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created scenario %q (database %s)\n", name, config.SQLitePathForScenario(base, name))

	return nil
}

func newScenariosDeleteCmd() *cobra.Command {
	var keepData bool

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenariosDelete(cmd, args[0], keepData)
		},
	}

	cmd.Flags().BoolVar(&keepData, "keep-data", false, "Keep the scenario's run database")

	return cmd
}

func runScenariosDelete(cmd *cobra.Command, name string, keepData bool) error {
	base, err := basePath()
	if err != nil {
		return err
	}

	scenarios, err := config.LoadScenarios(base)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	if !scenarios.Exists(name) {
		return fmt.Errorf("scenario %q not found", name)
	}

	scenarios.Remove(name)
	if err := scenarios.Save(base); err != nil {
		return fmt.Errorf("saving scenarios: %w", err)
	}

	if !keepData {
		if err := os.RemoveAll(config.ScenarioDir(base, name)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not delete scenario data: %v\n", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted scenario %q\n", name)

	return nil
}
