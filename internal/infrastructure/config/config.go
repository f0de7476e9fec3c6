// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ersonp/stinet/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for stinet configuration.
	DefaultConfigDir = ".stinet"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultScenariosFile is the default scenarios file name.
	DefaultScenariosFile = "scenarios.yaml"
	// DefaultScenario is used when no scenario is selected.
	DefaultScenario = "default"
)

const (
	// BackendMemory keeps the terminated set in process.
	BackendMemory = "memory"
	// BackendRedis shares the terminated set between processes.
	BackendRedis = "redis"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the model and infrastructure configuration (read-only after init).
type Config struct {
	Simulation    SimulationConfig    `yaml:"simulation"`
	Network       NetworkConfig       `yaml:"network"`
	Concurrency   ConcurrencyConfig   `yaml:"concurrency"`
	Infection     InfectionConfig     `yaml:"infection"`
	TerminatedSet TerminatedSetConfig `yaml:"terminated_set"`
	SQLite        SQLiteConfig        `yaml:"sqlite,omitempty"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// SimulationConfig controls the run loop.
type SimulationConfig struct {
	Steps                int     `yaml:"steps"`
	Dt                   float64 `yaml:"dt"`
	StartYear            float64 `yaml:"start_year"`
	Seed                 uint64  `yaml:"seed"`
	Nodes                int     `yaml:"nodes"`
	IndividualsPerNode   int     `yaml:"individuals_per_node"`
	InitialPrevalence    float64 `yaml:"initial_prevalence"`
	MigrationProbability float64 `yaml:"migration_probability"`
	CheckpointInterval   int     `yaml:"checkpoint_interval"`
	// Rank and NumTasks stride relationship ids and nodes across cooperating
	// processes. Processes of one run share RunID so they share a terminated set.
	Rank             int    `yaml:"rank"`
	NumTasks         int    `yaml:"num_tasks"`
	RunID            string `yaml:"run_id,omitempty"`
	RecordCoitalActs bool   `yaml:"record_coital_acts"`
	EventFlushSize   int    `yaml:"event_flush_size,omitempty"`
}

// OwnsNode reports whether node id (1-based) is simulated by this rank.
// Nodes are dealt round robin across the cooperating processes.
func (s SimulationConfig) OwnsNode(id uint64) bool {
	if s.NumTasks <= 1 {
		return true
	}
	return id > 0 && int((id-1)%uint64(s.NumTasks)) == s.Rank
}

// NetworkConfig holds the parameters shared by every relationship.
type NetworkConfig struct {
	CoitalDilution                        CoitalDilutionConfig          `yaml:"coital_dilution"`
	CondomTransmissionBlockingProbability float64                       `yaml:"condom_transmission_blocking_probability"`
	CoInfectionAcquisitionMultiplier      float64                       `yaml:"co_infection_acquisition_multiplier"`
	CoInfectionTransmissionMultiplier     float64                       `yaml:"co_infection_transmission_multiplier"`
	MinDaysBetweenAddingRelationships     float64                       `yaml:"min_days_between_adding_relationships"`
	DebutAge                              DebutAgeConfig                `yaml:"debut_age"`
	Relationships                         map[string]RelationshipConfig `yaml:"relationships"`
}

// CoitalDilutionConfig attenuates coital frequency for concurrent partners.
type CoitalDilutionConfig struct {
	Enabled          bool    `yaml:"enabled"`
	TwoPartners      float64 `yaml:"two_partners"`
	ThreePartners    float64 `yaml:"three_partners"`
	FourPlusPartners float64 `yaml:"four_plus_partners"`
}

// DebutAgeConfig parameterises the sexual debut age, in years.
type DebutAgeConfig struct {
	MaleScale           float64 `yaml:"male_scale"`
	MaleHeterogeneity   float64 `yaml:"male_heterogeneity"`
	FemaleScale         float64 `yaml:"female_scale"`
	FemaleHeterogeneity float64 `yaml:"female_heterogeneity"`
	MinimumAgeYears     float64 `yaml:"minimum_age_years"`
}

// RelationshipConfig holds the parameters of one relationship type.
type RelationshipConfig struct {
	DurationScale         float64                 `yaml:"duration_scale"`
	DurationHeterogeneity float64                 `yaml:"duration_heterogeneity"`
	CoitalActRate         float64                 `yaml:"coital_act_rate"`
	CondomUsage           entities.Sigmoid        `yaml:"condom_usage"`
	FormationRate         float64                 `yaml:"formation_rate"`
	MigrationActions      []MigrationActionConfig `yaml:"migration_actions"`
}

// MigrationActionConfig is one row of a migration table.
type MigrationActionConfig struct {
	Action      string  `yaml:"action"`
	Probability float64 `yaml:"probability"`
}

// ConcurrencyConfig holds the concurrency limits keyed by an individual property.
type ConcurrencyConfig struct {
	// PropertyName is empty when every individual shares the NONE limits.
	PropertyName      string                            `yaml:"property_name,omitempty"`
	ProbSuperSpreader float64                           `yaml:"prob_super_spreader"`
	Values            map[string]ConcurrencyValueConfig `yaml:"values"`
}

// ConcurrencyValueConfig holds the limits for one property value.
type ConcurrencyValueConfig struct {
	// FlagType is "independent" or "correlated".
	FlagType  string                           `yaml:"flag_type"`
	TypeOrder []string                         `yaml:"type_order,omitempty"`
	Types     map[string]TypeConcurrencyConfig `yaml:"types"`
}

// TypeConcurrencyConfig holds the limits of one relationship type.
type TypeConcurrencyConfig struct {
	ProbExtraMale   float64 `yaml:"prob_extra_male"`
	ProbExtraFemale float64 `yaml:"prob_extra_female"`
	MaxMale         float64 `yaml:"max_male"`
	MaxFemale       float64 `yaml:"max_female"`
}

// InfectionConfig configures the act-probability infection model.
type InfectionConfig struct {
	Infectiousness        float64 `yaml:"infectiousness"`
	TransmissionReduction float64 `yaml:"transmission_reduction"`
	CoInfectionPrevalence float64 `yaml:"co_infection_prevalence"`
}

// TerminatedSetConfig selects the backend of the cross-node terminated set.
type TerminatedSetConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds configuration for the redis terminated set.
type RedisConfig struct {
	Addr       string `yaml:"addr,omitempty"`
	Password   string `yaml:"password,omitempty"`
	DB         int    `yaml:"db,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
	TTLSeconds int    `yaml:"ttl_seconds,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database.
	// When empty, the path is computed per scenario using SQLitePathForScenario.
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Steps:                365,
			Dt:                   1,
			StartYear:            2000,
			Seed:                 1,
			Nodes:                1,
			IndividualsPerNode:   1000,
			InitialPrevalence:    0.05,
			MigrationProbability: 0,
			CheckpointInterval:   30,
			Rank:                 0,
			NumTasks:             1,
			EventFlushSize:       1000,
		},
		Network: NetworkConfig{
			CoitalDilution: CoitalDilutionConfig{
				Enabled:          true,
				TwoPartners:      0.75,
				ThreePartners:    0.6,
				FourPlusPartners: 0.45,
			},
			CondomTransmissionBlockingProbability: 0.9,
			CoInfectionAcquisitionMultiplier:      10,
			CoInfectionTransmissionMultiplier:     10,
			MinDaysBetweenAddingRelationships:     60,
			DebutAge: DebutAgeConfig{
				MaleScale:           16,
				MaleHeterogeneity:   0.2,
				FemaleScale:         15,
				FemaleHeterogeneity: 0.2,
				MinimumAgeYears:     13,
			},
			Relationships: map[string]RelationshipConfig{
				"transitory": defaultRelationship(0.5, 1.0, 0.33, 0.6, 0.002, "pause"),
				"informal":   defaultRelationship(2.0, 0.75, 0.33, 0.4, 0.001, "pause"),
				"marital":    defaultRelationship(15, 0.5, 0.33, 0.1, 0.0003, "migrate"),
				"commercial": defaultRelationship(0.01, 1.0, 0.01, 0.8, 0.0005, "terminate"),
			},
		},
		Concurrency: ConcurrencyConfig{
			ProbSuperSpreader: 0.01,
			Values: map[string]ConcurrencyValueConfig{
				"NONE": {
					FlagType: "independent",
					Types: map[string]TypeConcurrencyConfig{
						"transitory": {ProbExtraMale: 0.2, ProbExtraFemale: 0.1, MaxMale: 3, MaxFemale: 2},
						"informal":   {ProbExtraMale: 0.2, ProbExtraFemale: 0.1, MaxMale: 2, MaxFemale: 1},
						"marital":    {ProbExtraMale: 0.2, ProbExtraFemale: 0.05, MaxMale: 2, MaxFemale: 1},
						"commercial": {ProbExtraMale: 0.1, ProbExtraFemale: 0.5, MaxMale: 1, MaxFemale: 20},
					},
				},
			},
		},
		Infection: InfectionConfig{
			Infectiousness:        0.001,
			TransmissionReduction: 0,
			CoInfectionPrevalence: 0,
		},
		TerminatedSet: TerminatedSetConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				Prefix:     "stinet",
				TTLSeconds: 3600,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultRelationship(scale, het, acts, condom, formation float64, action string) RelationshipConfig {
	return RelationshipConfig{
		DurationScale:         scale,
		DurationHeterogeneity: het,
		CoitalActRate:         acts,
		CondomUsage:           entities.Sigmoid{Early: condom, Late: condom, MidYear: 2000, Rate: 1},
		FormationRate:         formation,
		MigrationActions:      []MigrationActionConfig{{Action: action, Probability: 1}},
	}
}

// Load loads configuration from the .stinet directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'stinet init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("STINET_REDIS_ADDR"); addr != "" {
		c.TerminatedSet.Redis.Addr = addr
		c.TerminatedSet.Backend = BackendRedis
	}
	if password := os.Getenv("STINET_REDIS_PASSWORD"); password != "" {
		if c.TerminatedSet.Redis.Password == "" {
			c.TerminatedSet.Redis.Password = password
		}
	}
	if level := os.Getenv("STINET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if rank := os.Getenv("STINET_RANK"); rank != "" {
		if n, err := strconv.Atoi(rank); err == nil {
			c.Simulation.Rank = n
		}
	}
	if tasks := os.Getenv("STINET_NUM_TASKS"); tasks != "" {
		if n, err := strconv.Atoi(tasks); err == nil {
			c.Simulation.NumTasks = n
		}
	}
	if runID := os.Getenv("STINET_RUN_ID"); runID != "" {
		c.Simulation.RunID = runID
	}
}

// Validate checks the configuration and the model parameters derived from it.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Dt <= 0 {
		return fmt.Errorf("%w: simulation.dt must be positive", ErrInvalidConfig)
	}
	if s.Nodes < 1 {
		return fmt.Errorf("%w: simulation.nodes must be at least 1", ErrInvalidConfig)
	}
	if s.NumTasks < 1 || s.Rank < 0 || s.Rank >= s.NumTasks {
		return fmt.Errorf("%w: simulation.rank %d outside [0,%d)", ErrInvalidConfig, s.Rank, s.NumTasks)
	}
	if s.InitialPrevalence < 0 || s.InitialPrevalence > 1 {
		return fmt.Errorf("%w: simulation.initial_prevalence outside [0,1]", ErrInvalidConfig)
	}
	if s.MigrationProbability < 0 || s.MigrationProbability > 1 {
		return fmt.Errorf("%w: simulation.migration_probability outside [0,1]", ErrInvalidConfig)
	}
	if r := c.Infection.TransmissionReduction; r < 0 || r > 1 {
		return fmt.Errorf("%w: infection.transmission_reduction outside [0,1]", ErrInvalidConfig)
	}
	if p := c.Infection.CoInfectionPrevalence; p < 0 || p > 1 {
		return fmt.Errorf("%w: infection.co_infection_prevalence outside [0,1]", ErrInvalidConfig)
	}
	switch c.TerminatedSet.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown terminated_set.backend %q", ErrInvalidConfig, c.TerminatedSet.Backend)
	}
	if _, err := c.NetworkParameters(); err != nil {
		return err
	}
	if _, err := c.ConcurrencyByValue(); err != nil {
		return err
	}
	return nil
}

// NetworkParameters builds the immutable model parameters.
func (c *Config) NetworkParameters() (*entities.NetworkParameters, error) {
	n := c.Network
	params := &entities.NetworkParameters{
		CoitalDilution: entities.CoitalDilution{
			Enabled:          n.CoitalDilution.Enabled,
			TwoPartners:      n.CoitalDilution.TwoPartners,
			ThreePartners:    n.CoitalDilution.ThreePartners,
			FourPlusPartners: n.CoitalDilution.FourPlusPartners,
		},
		CondomTransmissionBlockingProbability: n.CondomTransmissionBlockingProbability,
		CoInfectionAcquisitionMultiplier:      n.CoInfectionAcquisitionMultiplier,
		CoInfectionTransmissionMultiplier:     n.CoInfectionTransmissionMultiplier,
		MinDaysBetweenAddingRelationships:     n.MinDaysBetweenAddingRelationships,
		DebutAge: entities.DebutAge{
			MaleScale:           n.DebutAge.MaleScale,
			MaleHeterogeneity:   n.DebutAge.MaleHeterogeneity,
			FemaleScale:         n.DebutAge.FemaleScale,
			FemaleHeterogeneity: n.DebutAge.FemaleHeterogeneity,
			MinimumAgeYears:     n.DebutAge.MinimumAgeYears,
		},
	}

	var seen [entities.RelationshipTypeCount]bool
	for _, name := range sortedKeys(n.Relationships) {
		t, err := entities.ParseRelationshipType(name)
		if err != nil {
			return nil, fmt.Errorf("%w: network.relationships: %v", ErrInvalidConfig, err)
		}
		rc := n.Relationships[name]
		p := entities.RelationshipParameters{
			Type:                  t,
			DurationScale:         rc.DurationScale,
			DurationHeterogeneity: rc.DurationHeterogeneity,
			CoitalActRate:         rc.CoitalActRate,
			CondomUsage:           rc.CondomUsage,
			FormationRate:         rc.FormationRate,
		}
		cumulative := 0.0
		for _, row := range rc.MigrationActions {
			action, err := entities.ParseMigrationAction(row.Action)
			if err != nil {
				return nil, fmt.Errorf("%s: %w: %v", t, entities.ErrMigrationTable, err)
			}
			cumulative += row.Probability
			if math.Abs(cumulative-1) < 1e-9 {
				cumulative = 1
			}
			p.MigrationActions = append(p.MigrationActions, action)
			p.MigrationActionsCDF = append(p.MigrationActionsCDF, cumulative)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params.Relationships[t] = p
		seen[t] = true
	}
	for _, t := range entities.RelationshipTypes {
		if !seen[t] {
			return nil, fmt.Errorf("%w: network.relationships is missing %s", ErrInvalidConfig, strings.ToLower(t.String()))
		}
	}

	return params, nil
}

// ConcurrencyByValue builds the concurrency parameters for every property value.
func (c *Config) ConcurrencyByValue() (map[string]*entities.ConcurrencyParameters, error) {
	if len(c.Concurrency.Values) == 0 {
		return nil, fmt.Errorf("%w: concurrency.values is empty", entities.ErrConcurrencyRange)
	}

	byValue := make(map[string]*entities.ConcurrencyParameters, len(c.Concurrency.Values))
	for value, vc := range c.Concurrency.Values {
		params := &entities.ConcurrencyParameters{}
		switch strings.ToLower(vc.FlagType) {
		case "", "independent":
			params.FlagType = entities.FlagsIndependent
		case "correlated":
			params.FlagType = entities.FlagsCorrelated
		default:
			return nil, fmt.Errorf("concurrency %s: %w: unknown flag type %q", value, entities.ErrConcurrencyRange, vc.FlagType)
		}
		for _, name := range vc.TypeOrder {
			t, err := entities.ParseRelationshipType(name)
			if err != nil {
				return nil, fmt.Errorf("concurrency %s: %w", value, err)
			}
			params.TypeOrder = append(params.TypeOrder, t)
		}
		for name, tc := range vc.Types {
			t, err := entities.ParseRelationshipType(name)
			if err != nil {
				return nil, fmt.Errorf("concurrency %s: %w", value, err)
			}
			params.Types[t] = entities.TypeConcurrency{
				ProbExtraMale:   tc.ProbExtraMale,
				ProbExtraFemale: tc.ProbExtraFemale,
				MaxMale:         tc.MaxMale,
				MaxFemale:       tc.MaxFemale,
			}
		}
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("concurrency %s: %w", value, err)
		}
		byValue[value] = params
	}

	return byValue, nil
}

// FormationRates returns the per-type formation rates indexed by relationship type.
func (c *Config) FormationRates() [entities.RelationshipTypeCount]float64 {
	var rates [entities.RelationshipTypeCount]float64
	for name, rc := range c.Network.Relationships {
		if t, err := entities.ParseRelationshipType(name); err == nil {
			rates[t] = rc.FormationRate
		}
	}
	return rates
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ConfigDir returns the path to the .stinet config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// ScenariosFilePath returns the path to the scenarios file.
func ScenariosFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultScenariosFile)
}

// SanitizeScenarioName converts a scenario name to a valid directory name.
func SanitizeScenarioName(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonAlphanumeric.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	// Trim leading/trailing underscores
	name = strings.Trim(name, "_")

	if name == "" {
		return DefaultScenario
	}

	return name
}

// SQLitePathForScenario returns the SQLite database path for a given scenario.
func SQLitePathForScenario(basePath, scenario string) string {
	return filepath.Join(ScenarioDir(basePath, scenario), "stinet.db")
}

// ScenarioDir returns the directory path for a given scenario.
func ScenarioDir(basePath, scenario string) string {
	return filepath.Join(basePath, DefaultConfigDir, "scenarios", SanitizeScenarioName(scenario))
}

// SQLitePath returns the configured database path, or the scenario's database.
// Each rank of a multi-process run gets its own scenario database.
func (c *Config) SQLitePath(basePath, scenario string) string {
	if c.SQLite.Path != "" {
		return c.SQLite.Path
	}
	if c.Simulation.NumTasks > 1 {
		return filepath.Join(ScenarioDir(basePath, scenario), fmt.Sprintf("stinet.rank%d.db", c.Simulation.Rank))
	}
	return SQLitePathForScenario(basePath, scenario)
}
