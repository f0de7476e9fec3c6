package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScenariosConfig holds named run presets (read/write).
type ScenariosConfig struct {
	Scenarios map[string]ScenarioEntry `yaml:"scenarios,omitempty"`
}

// ScenarioEntry overrides simulation settings for one scenario. Zero fields keep the config value.
type ScenarioEntry struct {
	Description        string  `yaml:"description,omitempty"`
	Seed               uint64  `yaml:"seed,omitempty"`
	Steps              int     `yaml:"steps,omitempty"`
	Nodes              int     `yaml:"nodes,omitempty"`
	IndividualsPerNode int     `yaml:"individuals_per_node,omitempty"`
	InitialPrevalence  float64 `yaml:"initial_prevalence,omitempty"`
	Population         string  `yaml:"population,omitempty"`
}

// Apply copies the non-zero overrides into cfg.
func (e ScenarioEntry) Apply(cfg *Config) {
	if e.Seed != 0 {
		cfg.Simulation.Seed = e.Seed
	}
	if e.Steps != 0 {
		cfg.Simulation.Steps = e.Steps
	}
	if e.Nodes != 0 {
		cfg.Simulation.Nodes = e.Nodes
	}
	if e.IndividualsPerNode != 0 {
		cfg.Simulation.IndividualsPerNode = e.IndividualsPerNode
	}
	if e.InitialPrevalence != 0 {
		cfg.Simulation.InitialPrevalence = e.InitialPrevalence
	}
}

// LoadScenarios loads scenario configuration from the .stinet directory.
func LoadScenarios(basePath string) (*ScenariosConfig, error) {
	scenariosFile := filepath.Join(basePath, DefaultConfigDir, DefaultScenariosFile)

	data, err := os.ReadFile(scenariosFile)
	if os.IsNotExist(err) {
		// Return empty config if file doesn't exist
		return &ScenariosConfig{
			Scenarios: make(map[string]ScenarioEntry),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scenarios file: %w", err)
	}

	var cfg ScenariosConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing scenarios file: %w", err)
	}

	if cfg.Scenarios == nil {
		cfg.Scenarios = make(map[string]ScenarioEntry)
	}

	return &cfg, nil
}

// Save writes the scenarios configuration to the scenarios file.
func (s *ScenariosConfig) Save(basePath string) error {
	configDir := filepath.Join(basePath, DefaultConfigDir)
	scenariosFile := filepath.Join(configDir, DefaultScenariosFile)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling scenarios config: %w", err)
	}

	if err := os.WriteFile(scenariosFile, data, 0600); err != nil {
		return fmt.Errorf("writing scenarios file: %w", err)
	}

	return nil
}

// Add adds a scenario to the configuration.
func (s *ScenariosConfig) Add(name string, entry ScenarioEntry) {
	if s.Scenarios == nil {
		s.Scenarios = make(map[string]ScenarioEntry)
	}
	s.Scenarios[name] = entry
}

// Remove removes a scenario from the configuration.
func (s *ScenariosConfig) Remove(name string) {
	if s.Scenarios != nil {
		delete(s.Scenarios, name)
	}
}

// Get returns the configuration for a specific scenario.
func (s *ScenariosConfig) Get(name string) (*ScenarioEntry, error) {
	if len(s.Scenarios) == 0 {
		return nil, errors.New("no scenarios configured")
	}

	entry, ok := s.Scenarios[name]
	if !ok {
		var b strings.Builder
		count := 0
		for _, k := range sortedKeys(s.Scenarios) {
			if count > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			count++
			if count >= 5 {
				b.WriteString(", ...")
				break
			}
		}
		return nil, fmt.Errorf("scenario %q not found (available: %s)", name, b.String())
	}

	return &entry, nil
}

// Exists checks if a scenario exists in the configuration.
func (s *ScenariosConfig) Exists(name string) bool {
	if s.Scenarios == nil {
		return false
	}
	_, ok := s.Scenarios[name]
	return ok
}

// Names returns the scenario names in sorted order.
func (s *ScenariosConfig) Names() []string {
	return sortedKeys(s.Scenarios)
}

// ScenariosExists checks if a scenarios file exists in the given path.
func ScenariosExists(basePath string) bool {
	scenariosFile := filepath.Join(basePath, DefaultConfigDir, DefaultScenariosFile)
	_, err := os.Stat(scenariosFile)
	return err == nil
}
