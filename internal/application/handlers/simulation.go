package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"github.com/ersonp/stinet/internal/domain/services"
	"github.com/ersonp/stinet/internal/infrastructure/config"
	"github.com/ersonp/stinet/internal/infrastructure/terminated"
)

var (
	// ErrRunNotFound is returned when resuming a run that was never stored.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a new run reuses a stored run id.
	ErrRunExists = errors.New("run already exists")
)

// SimulationDeps are the collaborators of the simulation handler.
type SimulationDeps struct {
	Store  ports.CheckpointStore
	Events ports.EventSink
	Random ports.Random

	// NewTerminatedSet returns the terminated-last-step set shared by the run.
	NewTerminatedSet func(runID string) (ports.TerminatedSet, error)

	// NewSociety builds the pair-formation collaborator of a node.
	NewSociety func(nodeID entities.Suid) ports.Society

	Importer *ImportHandler
	Logger   *zap.Logger
}

// SimulationHandler runs the relationship network and persists its progress.
type SimulationHandler struct {
	cfg         *config.Config
	deps        SimulationDeps
	checkpoints *services.CheckpointService
	logger      *zap.Logger
}

// NewSimulationHandler creates a new simulation handler.
func NewSimulationHandler(cfg *config.Config, deps SimulationDeps) *SimulationHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &SimulationHandler{
		cfg:         cfg,
		deps:        deps,
		checkpoints: services.NewCheckpointService(deps.Store, deps.Logger),
		logger:      deps.Logger,
	}
}

// RunOptions controls a simulation run.
type RunOptions struct {
	Steps          int    // Overrides simulation.steps when positive
	RunID          string // Names a new run; overrides simulation.run_id
	PopulationFile string // Import individuals instead of generating them
	Format         string // Population file format: "json", "csv", or "auto"
	ResumeRunID    string // Continue a stored run from a checkpoint
	ResumeStep     int64  // Checkpoint step to resume from, negative for the latest
}

// RunResult summarizes a simulation run.
type RunResult struct {
	RunID         string
	Resumed       bool
	StartStep     int64
	EndStep       int64
	Individuals   int
	Infected      int
	Relationships int
	Formed        int
	Infections    int
	Migrations    int
	Checkpoints   []int64
	Import        *ImportResult
}

// Handle runs the simulation for the requested number of steps.
func (h *SimulationHandler) Handle(ctx context.Context, opts RunOptions) (*RunResult, error) {
	steps := opts.Steps
	if steps <= 0 {
		steps = h.cfg.Simulation.Steps
	}

	run, resumed, err := h.prepareRun(ctx, opts)
	if err != nil {
		return nil, err
	}

	termSet, err := h.deps.NewTerminatedSet(run.ID)
	if err != nil {
		return nil, fmt.Errorf("creating terminated set: %w", err)
	}

	sim, infection, err := h.build(termSet)
	if err != nil {
		return nil, err
	}

	result := &RunResult{RunID: run.ID, Resumed: resumed}
	if resumed {
		if _, err := h.checkpoints.Restore(ctx, sim, run.ID, opts.ResumeStep); err != nil {
			return nil, err
		}
	} else {
		imported, err := h.populate(ctx, sim, opts)
		if err != nil {
			return nil, err
		}
		result.Import = imported
		h.applyInfectionSettings(sim)
	}
	result.StartStep = sim.CurrentStep()

	var recorder *services.EventRecorder
	if h.deps.Events != nil {
		recorder = services.NewEventRecorder(h.deps.Events, run.ID, h.cfg.Simulation.RecordCoitalActs, h.cfg.Simulation.EventFlushSize, h.logger)
		recorder.Attach(sim, infection)
	}

	interval := int64(h.cfg.Simulation.CheckpointInterval)
	runErr := sim.Run(ctx, steps, func(stats services.StepStats) error {
		if recorder != nil {
			if err := recorder.Flush(ctx); err != nil {
				return err
			}
		}
		result.Formed += stats.Formed
		result.Infections += stats.Infections
		result.Migrations += stats.Migrations
		result.Relationships = stats.Relationships

		if interval > 0 && sim.CurrentStep()%interval == 0 {
			if _, err := h.checkpoints.Save(ctx, sim, run.ID); err != nil {
				return err
			}
			result.Checkpoints = append(result.Checkpoints, sim.CurrentStep())
		}
		return nil
	})
	if runErr != nil {
		if recorder != nil {
			if err := recorder.Flush(ctx); err != nil {
				h.logger.Warn("dropping buffered events", zap.Int("events", recorder.Pending()), zap.Error(err))
			}
		}
		return nil, fmt.Errorf("running simulation %s: %w", run.ID, runErr)
	}

	end := sim.CurrentStep()
	if n := len(result.Checkpoints); n == 0 || result.Checkpoints[n-1] != end {
		if _, err := h.checkpoints.Save(ctx, sim, run.ID); err != nil {
			return nil, err
		}
		result.Checkpoints = append(result.Checkpoints, end)
	}

	run.Steps = int(end)
	if err := h.deps.Store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	result.EndStep = end
	result.Individuals = sim.Population().Len()
	result.Infected = sim.Population().CountInfected()

	h.logger.Info("simulation finished",
		zap.String("run_id", run.ID),
		zap.Int64("start_step", result.StartStep),
		zap.Int64("end_step", end),
		zap.Int("individuals", result.Individuals),
		zap.Int("infected", result.Infected),
		zap.Int("relationships", result.Relationships),
		zap.Int("formed", result.Formed),
		zap.Int("infections", result.Infections),
	)
	return result, nil
}

// CheckPopulation validates a population file against the configured nodes
// without storing anything.
func (h *SimulationHandler) CheckPopulation(ctx context.Context, filePath, format string) (*ImportResult, error) {
	if h.deps.Importer == nil {
		return nil, errors.New("population import is not configured")
	}
	sim, _, err := h.build(terminated.NewMemorySet())
	if err != nil {
		return nil, err
	}
	h.addNodes(sim)
	return h.deps.Importer.Handle(ctx, sim, filePath, ImportOptions{
		Format:         format,
		DryRun:         true,
		CreateNodes:    true,
		Infectiousness: h.cfg.Infection.Infectiousness,
		OwnsNode:       h.ownsNode,
	})
}

func (h *SimulationHandler) prepareRun(ctx context.Context, opts RunOptions) (*entities.Run, bool, error) {
	if opts.ResumeRunID != "" {
		run, err := h.deps.Store.FindRun(ctx, opts.ResumeRunID)
		if err != nil {
			return nil, false, fmt.Errorf("finding run: %w", err)
		}
		if run == nil {
			return nil, false, fmt.Errorf("%s: %w", opts.ResumeRunID, ErrRunNotFound)
		}
		return run, true, nil
	}

	id := opts.RunID
	if id == "" {
		id = h.cfg.Simulation.RunID
	}
	if id == "" {
		id = uuid.NewString()
	} else {
		existing, err := h.deps.Store.FindRun(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("finding run: %w", err)
		}
		if existing != nil {
			return nil, false, fmt.Errorf("%w: %s (use --resume to continue it)", ErrRunExists, id)
		}
	}

	run := &entities.Run{
		ID:        id,
		Seed:      h.cfg.Simulation.Seed,
		Nodes:     h.cfg.Simulation.Nodes,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.deps.Store.SaveRun(ctx, run); err != nil {
		return nil, false, fmt.Errorf("saving run: %w", err)
	}
	return run, false, nil
}

// build wires a simulation without nodes from the configuration.
func (h *SimulationHandler) build(termSet ports.TerminatedSet) (*services.Simulation, *services.ActProbabilityInfection, error) {
	params, err := h.cfg.NetworkParameters()
	if err != nil {
		return nil, nil, fmt.Errorf("building network parameters: %w", err)
	}
	byValue, err := h.cfg.ConcurrencyByValue()
	if err != nil {
		return nil, nil, fmt.Errorf("building concurrency parameters: %w", err)
	}
	concurrency, err := services.NewConcurrencyConfiguration(
		h.cfg.Concurrency.PropertyName,
		h.cfg.Concurrency.ProbSuperSpreader,
		byValue,
		h.deps.Random,
	)
	if err != nil {
		return nil, nil, err
	}

	infection := services.NewActProbabilityInfection(h.deps.Random, h.cfg.Infection.Infectiousness)
	sim := services.NewSimulation(services.SimulationConfig{
		Dt:                   h.cfg.Simulation.Dt,
		StartYear:            h.cfg.Simulation.StartYear,
		MigrationProbability: h.cfg.Simulation.MigrationProbability,
	}, services.SimulationDeps{
		Params:      params,
		Random:      h.deps.Random,
		Terminated:  termSet,
		Concurrency: concurrency,
		Infection:   infection,
		IDs:         services.NewSuidGenerator(h.cfg.Simulation.Rank, h.cfg.Simulation.NumTasks),
		NewSociety:  h.deps.NewSociety,
		Logger:      h.logger,
	})
	return sim, infection, nil
}

// addNodes adds the configured nodes owned by this rank.
func (h *SimulationHandler) addNodes(sim *services.Simulation) {
	for i := 1; i <= h.cfg.Simulation.Nodes; i++ {
		if h.cfg.Simulation.OwnsNode(uint64(i)) {
			sim.AddNode(entities.Suid(i))
		}
	}
}

func (h *SimulationHandler) ownsNode(id entities.Suid) bool {
	return h.cfg.Simulation.OwnsNode(uint64(id))
}

func (h *SimulationHandler) populate(ctx context.Context, sim *services.Simulation, opts RunOptions) (*ImportResult, error) {
	h.addNodes(sim)

	if opts.PopulationFile == "" {
		s := h.cfg.Simulation
		if err := sim.Populate(s.IndividualsPerNode, s.InitialPrevalence, h.cfg.Infection.Infectiousness); err != nil {
			return nil, fmt.Errorf("generating population: %w", err)
		}
		return nil, nil
	}

	if h.deps.Importer == nil {
		return nil, errors.New("population import is not configured")
	}
	result, err := h.deps.Importer.Handle(ctx, sim, opts.PopulationFile, ImportOptions{
		Format:         opts.Format,
		CreateNodes:    true,
		Infectiousness: h.cfg.Infection.Infectiousness,
		OwnsNode:       h.ownsNode,
	})
	if err != nil {
		return nil, fmt.Errorf("importing population: %w", err)
	}
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("population file has %d invalid rows, first: %w", len(result.Errors), result.Errors[0])
	}
	return result, nil
}

// applyInfectionSettings sets the per-individual transmission multiplier and
// draws the co-infection status of every individual.
func (h *SimulationHandler) applyInfectionSettings(sim *services.Simulation) {
	multiplier := 1 - h.cfg.Infection.TransmissionReduction
	prevalence := h.cfg.Infection.CoInfectionPrevalence
	for _, ind := range sim.Population().All() {
		ind.TransmissionReduction = multiplier
		if prevalence > 0 && !ind.HasCoInfection {
			ind.HasCoInfection = h.deps.Random.Bernoulli(prevalence)
		}
	}
}
