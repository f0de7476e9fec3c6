package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ersonp/stinet/internal/application/handlers"
	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"github.com/ersonp/stinet/internal/domain/services"
	"github.com/ersonp/stinet/internal/infrastructure/config"
	"github.com/ersonp/stinet/internal/infrastructure/logging"
	"github.com/ersonp/stinet/internal/infrastructure/random"
	"github.com/ersonp/stinet/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/stinet/internal/infrastructure/society"
	"github.com/ersonp/stinet/internal/infrastructure/terminated"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config            *config.Config
	Scenario          *config.ScenarioEntry
	SimulationHandler *handlers.SimulationHandler
	InspectHandler    *handlers.InspectHandler
}

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Deps
	basePath string
	store    *sqlite.Repository
	logger   *zap.Logger
}

// configOverride adjusts the loaded configuration before dependencies are built.
type configOverride func(*config.Config)

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error, overrides ...configOverride) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	}, overrides...)
}

// withInternalDeps provides access to all dependencies including low-level components.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error, overrides ...configOverride) error {
	base, err := basePath()
	if err != nil {
		return err
	}

	cfg, scenario, err := loadConfig(base, overrides...)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync() //nolint:errcheck // stderr sync fails on some terminals

	store, err := openStore(ctx, cfg.SQLitePath(base, scenarioName()))
	if err != nil {
		return err
	}
	defer store.Close()

	var client *redis.Client
	if cfg.TerminatedSet.Backend == config.BackendRedis {
		client = terminated.NewRedisClient(cfg.TerminatedSet.Redis)
		defer client.Close()
	}

	rates := cfg.FormationRates()
	rng := random.New(cfg.Simulation.Seed, uint64(cfg.Simulation.Rank))

	simulationHandler := handlers.NewSimulationHandler(cfg, handlers.SimulationDeps{
		Store:            store,
		Events:           store,
		Random:           rng,
		NewTerminatedSet: terminatedSetFactory(ctx, cfg, client, logger),
		NewSociety: func(entities.Suid) ports.Society {
			return society.NewFIFO(rates, logger)
		},
		Importer: handlers.NewImportHandler(services.NewImportService(logger)),
		Logger:   logger,
	})

	deps := &internalDeps{
		Deps: Deps{
			Config:            cfg,
			Scenario:          scenario,
			SimulationHandler: simulationHandler,
			InspectHandler:    handlers.NewInspectHandler(store, store, store),
		},
		basePath: base,
		store:    store,
		logger:   logger,
	}

	return fn(deps)
}

// withStore provides direct repository access for commands that need it.
func withStore(ctx context.Context, fn func(*sqlite.Repository) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(d.store)
	})
}

// basePath returns the project directory selected by --dir.
func basePath() (string, error) {
	if globalDir != "" {
		return globalDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

// scenarioName returns the scenario selected by --scenario.
func scenarioName() string {
	if globalScenario == "" {
		return defaultScenario
	}
	return globalScenario
}

// loadConfig loads the project config, applies the selected scenario and the
// overrides, and validates the result.
func loadConfig(base string, overrides ...configOverride) (*config.Config, *config.ScenarioEntry, error) {
	cfg, err := config.Load(base)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	var scenario *config.ScenarioEntry
	if name := scenarioName(); name != defaultScenario {
		scenarios, err := config.LoadScenarios(base)
		if err != nil {
			return nil, nil, fmt.Errorf("loading scenarios: %w", err)
		}
		scenario, err = scenarios.Get(name)
		if err != nil {
			return nil, nil, err
		}
		scenario.Apply(cfg)
	}

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, scenario, nil
}

// openStore opens the SQLite store, creating its directory and schema.
func openStore(ctx context.Context, path string) (*sqlite.Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	store, err := sqlite.NewRepository(config.SQLiteConfig{Path: path})
	if err != nil {
		return nil, fmt.Errorf("creating sqlite repository: %w", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensuring sqlite schema: %w", err)
	}
	return store, nil
}

// terminatedSetFactory returns the constructor of the per-run terminated set
// for the configured backend.
func terminatedSetFactory(ctx context.Context, cfg *config.Config, client *redis.Client, logger *zap.Logger) func(string) (ports.TerminatedSet, error) {
	if cfg.TerminatedSet.Backend != config.BackendRedis {
		return func(string) (ports.TerminatedSet, error) {
			return terminated.NewMemorySet(), nil
		}
	}
	return func(runID string) (ports.TerminatedSet, error) {
		set := terminated.NewRedisSet(client, cfg.TerminatedSet.Redis, runID, logger)
		if err := set.Ping(ctx); err != nil {
			return nil, err
		}
		return set, nil
	}
}
