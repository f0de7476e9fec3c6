package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML is the default configuration content.
const DefaultConfigYAML = `# stinet configuration

simulation:
  steps: 365
  dt: 1
  start_year: 2000
  seed: 1
  nodes: 1
  individuals_per_node: 1000
  initial_prevalence: 0.05
  migration_probability: 0
  checkpoint_interval: 30
  rank: 0
  num_tasks: 1
  record_coital_acts: false

network:
  coital_dilution:
    enabled: true
    two_partners: 0.75
    three_partners: 0.6
    four_plus_partners: 0.45
  condom_transmission_blocking_probability: 0.9
  co_infection_acquisition_multiplier: 10
  co_infection_transmission_multiplier: 10
  min_days_between_adding_relationships: 60
  debut_age:
    male_scale: 16
    male_heterogeneity: 0.2
    female_scale: 15
    female_heterogeneity: 0.2
    minimum_age_years: 13
  relationships:
    transitory:
      duration_scale: 0.5
      duration_heterogeneity: 1.0
      coital_act_rate: 0.33
      condom_usage: {early: 0.6, late: 0.6, mid_year: 2000, rate: 1}
      formation_rate: 0.002
      migration_actions:
        - {action: pause, probability: 1}
    informal:
      duration_scale: 2.0
      duration_heterogeneity: 0.75
      coital_act_rate: 0.33
      condom_usage: {early: 0.4, late: 0.4, mid_year: 2000, rate: 1}
      formation_rate: 0.001
      migration_actions:
        - {action: pause, probability: 1}
    marital:
      duration_scale: 15
      duration_heterogeneity: 0.5
      coital_act_rate: 0.33
      condom_usage: {early: 0.1, late: 0.1, mid_year: 2000, rate: 1}
      formation_rate: 0.0003
      migration_actions:
        - {action: migrate, probability: 1}
    commercial:
      duration_scale: 0.01
      duration_heterogeneity: 1.0
      coital_act_rate: 0.01
      condom_usage: {early: 0.8, late: 0.8, mid_year: 2000, rate: 1}
      formation_rate: 0.0005
      migration_actions:
        - {action: terminate, probability: 1}

concurrency:
  # property_name: Risk
  prob_super_spreader: 0.01
  values:
    NONE:
      flag_type: independent
      types:
        transitory: {prob_extra_male: 0.2, prob_extra_female: 0.1, max_male: 3, max_female: 2}
        informal: {prob_extra_male: 0.2, prob_extra_female: 0.1, max_male: 2, max_female: 1}
        marital: {prob_extra_male: 0.2, prob_extra_female: 0.05, max_male: 2, max_female: 1}
        commercial: {prob_extra_male: 0.1, prob_extra_female: 0.5, max_male: 1, max_female: 20}

infection:
  infectiousness: 0.001
  transmission_reduction: 0
  co_infection_prevalence: 0

terminated_set:
  backend: memory
  redis:
    addr: localhost:6379
    prefix: stinet
    ttl_seconds: 3600
    # password: your-password (or set STINET_REDIS_PASSWORD env var)

logging:
  level: info
  format: console
`

// WriteDefault creates the .stinet directory and writes a default config file.
func WriteDefault(basePath string) error {
	configDir := filepath.Join(basePath, DefaultConfigDir)
	configFile := filepath.Join(configDir, DefaultConfigFile)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists: %s", configFile)
	}

	if err := os.WriteFile(configFile, []byte(DefaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Write writes the given config to the config file.
func Write(basePath string, cfg *Config) error {
	configDir := filepath.Join(basePath, DefaultConfigDir)
	configFile := filepath.Join(configDir, DefaultConfigFile)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Exists checks if a stinet config exists in the given path.
func Exists(basePath string) bool {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
	_, err := os.Stat(configFile)
	return err == nil
}
