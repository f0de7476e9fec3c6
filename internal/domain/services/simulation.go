package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"go.uber.org/zap"
)

// ErrUnknownNode is returned when a node id is not part of the simulation.
var ErrUnknownNode = errors.New("unknown node")

// ErrUnknownIndividual is returned when an individual id is not part of the simulation.
var ErrUnknownIndividual = errors.New("unknown individual")

// SimulationConfig holds the clock and migration settings of a simulation.
type SimulationConfig struct {
	// Dt is the step length in days.
	Dt float64

	// StartYear is the calendar year at time zero.
	StartYear float64

	// MigrationProbability is the per-step probability that an individual moves
	// to a uniformly chosen other node.
	MigrationProbability float64
}

// SimulationDeps are the collaborators shared by every node.
type SimulationDeps struct {
	Params      *entities.NetworkParameters
	Random      ports.Random
	Terminated  ports.TerminatedSet
	Concurrency ports.ConcurrencyConfig
	Infection   ports.InfectionModel
	IDs         *SuidGenerator

	// NewSociety builds the pair-formation collaborator of a node.
	NewSociety func(nodeID entities.Suid) ports.Society

	Logger *zap.Logger
}

// StepStats summarizes one simulation step.
type StepStats struct {
	Step          int64
	Time          float64
	Formed        int
	Relationships int
	Infections    int
	Infected      int
	Migrations    int
}

// Simulation advances every node of a process in lock-step and moves
// individuals between nodes.
type Simulation struct {
	cfg  SimulationConfig
	deps SimulationDeps

	arena      *Arena
	population *Population
	factory    *RelationshipFactory
	nodes      []*Node
	nodeByID   map[entities.Suid]*Node

	step   int64
	time   float64
	logger *zap.Logger
}

// NewSimulation creates a simulation without nodes.
func NewSimulation(cfg SimulationConfig, deps SimulationDeps) *Simulation {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.IDs == nil {
		deps.IDs = NewSuidGenerator(0, 1)
	}
	if cfg.Dt <= 0 {
		cfg.Dt = 1
	}
	arena := NewArena()
	return &Simulation{
		cfg:        cfg,
		deps:       deps,
		arena:      arena,
		population: NewPopulation(),
		factory:    NewRelationshipFactory(deps.Params, deps.IDs, arena, deps.Random),
		nodeByID:   make(map[entities.Suid]*Node),
		logger:     deps.Logger,
	}
}

func (s *Simulation) Arena() *Arena            { return s.arena }
func (s *Simulation) Population() *Population  { return s.population }
func (s *Simulation) Nodes() []*Node           { return s.nodes }
func (s *Simulation) CurrentStep() int64       { return s.step }
func (s *Simulation) Time() float64            { return s.time }
func (s *Simulation) Config() SimulationConfig { return s.cfg }

// Year returns the calendar year of the current time.
func (s *Simulation) Year() float64 {
	return s.cfg.StartYear + s.time/entities.DaysPerYear
}

// AddNode creates a node. Adding an existing id returns the existing node.
func (s *Simulation) AddNode(id entities.Suid) *Node {
	if n, ok := s.nodeByID[id]; ok {
		return n
	}
	n := NewNode(id, NodeDeps{
		Params:      s.deps.Params,
		Population:  s.population,
		Arena:       s.arena,
		Factory:     s.factory,
		Terminated:  s.deps.Terminated,
		Society:     s.deps.NewSociety(id),
		Concurrency: s.deps.Concurrency,
		Infection:   s.deps.Infection,
		Random:      s.deps.Random,
		Logger:      s.logger,
	})
	s.nodes = append(s.nodes, n)
	s.nodeByID[id] = n
	return n
}

// Node returns a node by id.
func (s *Simulation) Node(id entities.Suid) (*Node, bool) {
	n, ok := s.nodeByID[id]
	return n, ok
}

// AddIndividual places ind in its node. When initialize is set the debut age,
// super-spreader flag and concurrency limits are drawn.
func (s *Simulation) AddIndividual(ind *entities.Individual, initialize bool) error {
	n, ok := s.nodeByID[ind.NodeID]
	if !ok {
		return fmt.Errorf("adding individual %s to node %s: %w", ind.ID, ind.NodeID, ErrUnknownNode)
	}
	if !s.population.Add(ind) {
		return fmt.Errorf("adding individual %s: duplicate id", ind.ID)
	}
	if initialize {
		if err := n.partnership.Initialize(ind); err != nil {
			s.population.Remove(ind.ID)
			return fmt.Errorf("initializing individual %s: %w", ind.ID, err)
		}
	}
	n.addResident(ind)
	return nil
}

// Step advances every node by one step and then applies random migration.
func (s *Simulation) Step(ctx context.Context) (StepStats, error) {
	stats := StepStats{Step: s.step, Time: s.time}

	if err := s.deps.Terminated.Advance(ctx, s.step); err != nil {
		return stats, fmt.Errorf("advancing terminated set: %w", err)
	}

	year := s.Year()
	for _, n := range s.nodes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ns, err := n.Update(ctx, s.step, s.cfg.Dt, s.time, year)
		if err != nil {
			return stats, fmt.Errorf("updating node %s: %w", n.id, err)
		}
		stats.Formed += ns.Formed
		stats.Infections += ns.Infections
	}

	moved, err := s.migrate(ctx)
	if err != nil {
		return stats, err
	}
	stats.Migrations = moved

	s.step++
	s.time += s.cfg.Dt
	stats.Relationships = s.arena.Len()
	stats.Infected = s.population.CountInfected()

	s.logger.Debug("step completed",
		zap.Int64("step", stats.Step),
		zap.Int("formed", stats.Formed),
		zap.Int("relationships", stats.Relationships),
		zap.Int("infections", stats.Infections),
		zap.Int("migrations", stats.Migrations),
	)
	return stats, nil
}

// Run executes steps until n steps have completed or ctx is cancelled. The
// callback, when set, receives the stats of every step.
func (s *Simulation) Run(ctx context.Context, n int, onStep func(StepStats) error) error {
	for i := 0; i < n; i++ {
		stats, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if onStep != nil {
			if err := onStep(stats); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulation) migrate(ctx context.Context) (int, error) {
	if s.cfg.MigrationProbability <= 0 || len(s.nodes) < 2 {
		return 0, nil
	}
	moved := make(map[entities.Suid]bool)
	count := 0
	for _, ind := range s.population.All() {
		if moved[ind.ID] || !s.deps.Random.Bernoulli(s.cfg.MigrationProbability) {
			continue
		}
		dest := s.pickOtherNode(ind.NodeID)
		travellers, err := s.MoveIndividual(ctx, ind.ID, dest)
		if err != nil {
			return count, err
		}
		for _, id := range travellers {
			moved[id] = true
		}
		count += len(travellers)
	}
	return count, nil
}

func (s *Simulation) pickOtherNode(current entities.Suid) entities.Suid {
	i := s.deps.Random.IntN(len(s.nodes) - 1)
	for _, n := range s.nodes {
		if n.id == current {
			continue
		}
		if i == 0 {
			return n.id
		}
		i--
	}
	return current
}

// MoveIndividual moves an individual to dest, applying the migration action of
// every relationship it belongs to. Partners of MIGRATE relationships travel
// along. It returns the ids of everyone who moved.
func (s *Simulation) MoveIndividual(ctx context.Context, id, dest entities.Suid) ([]entities.Suid, error) {
	ind, ok := s.population.Individual(id)
	if !ok {
		return nil, fmt.Errorf("moving %s: %w", id, ErrUnknownIndividual)
	}
	src, ok := s.nodeByID[ind.NodeID]
	if !ok {
		return nil, fmt.Errorf("moving %s from node %s: %w", id, ind.NodeID, ErrUnknownNode)
	}
	dst, ok := s.nodeByID[dest]
	if !ok {
		return nil, fmt.Errorf("moving %s to node %s: %w", id, dest, ErrUnknownNode)
	}
	if src == dst {
		return nil, nil
	}

	var (
		followers []*entities.Individual
		migrating []*entities.Relationship
		paused    []*entities.Relationship
	)
	for _, relID := range append([]entities.Suid(nil), ind.Relationships()...) {
		rel, ok := s.arena.Lookup(relID)
		if !ok || rel.State() == entities.StateTerminated {
			continue
		}
		action, err := rel.MigrationAction(s.deps.Random.Uniform)
		if err != nil {
			return nil, fmt.Errorf("moving %s: %w", id, err)
		}
		partnerID, err := rel.PartnerOf(id)
		if err != nil {
			return nil, err
		}
		partner, ok := s.population.Individual(partnerID)
		if !ok {
			return nil, fmt.Errorf("moving %s: partner %s: %w", id, partnerID, ErrUnknownIndividual)
		}

		switch action {
		case entities.ActionMigrate:
			if err := rel.Migrate(dest); err != nil {
				return nil, err
			}
			src.manager.Leave(rel)
			followers = append(followers, partner)
			migrating = append(migrating, rel)
		case entities.ActionTerminate:
			if err := src.manager.Terminate(ctx, rel, entities.ReasonSelfMigrating); err != nil {
				return nil, err
			}
		case entities.ActionPause:
			if err := rel.Pause(id, dest); err != nil {
				return nil, err
			}
			if partner.NodeID == src.id {
				if err := src.manager.RemoveRelationship(ctx, rel, false); err != nil {
					return nil, err
				}
			} else {
				src.manager.Leave(rel)
			}
			paused = append(paused, rel)
		}
	}

	// Followers give up every relationship that is not travelling with them.
	travelling := make(map[entities.Suid]bool, len(migrating))
	for _, rel := range migrating {
		travelling[rel.ID()] = true
	}
	for _, f := range followers {
		for _, relID := range append([]entities.Suid(nil), f.Relationships()...) {
			if travelling[relID] {
				continue
			}
			rel, ok := s.arena.Lookup(relID)
			if !ok || rel.State() == entities.StateTerminated {
				continue
			}
			owner := src
			if n, ok := s.nodeByID[f.NodeID]; ok {
				owner = n
			}
			if err := owner.manager.Terminate(ctx, rel, entities.ReasonPartnerMigrating); err != nil {
				return nil, err
			}
		}
	}

	movers := append([]*entities.Individual{ind}, followers...)
	ids := make([]entities.Suid, 0, len(movers))
	for _, m := range movers {
		src.removeResident(m)
		m.NodeID = dest
		dst.addResident(m)
		ids = append(ids, m.ID)
	}

	for _, rel := range migrating {
		canonical := dst.manager.Immigrate(src.manager.Emigrate(rel))
		if err := canonical.Resume(canonical.MaleID(), true); err != nil {
			return nil, err
		}
		if err := canonical.Resume(canonical.FemaleID(), true); err != nil {
			return nil, err
		}
		dst.manager.Rejoin(canonical)
	}
	for _, rel := range paused {
		canonical := dst.manager.Immigrate(rel)
		partnerID, _ := canonical.PartnerOf(id)
		partner, _ := s.population.Individual(partnerID)
		if err := canonical.Resume(id, partner != nil && partner.NodeID == dest); err != nil {
			return nil, err
		}
		dst.manager.Rejoin(canonical)
	}

	s.logger.Debug("individual moved",
		zap.Uint64("individual_id", uint64(id)),
		zap.Uint64("from", uint64(src.id)),
		zap.Uint64("to", uint64(dest)),
		zap.Int("followers", len(followers)),
		zap.Int("paused", len(paused)),
	)
	return ids, nil
}

// Die removes an individual from the simulation, terminating every relationship
// it belongs to.
func (s *Simulation) Die(ctx context.Context, id entities.Suid) error {
	ind, ok := s.population.Individual(id)
	if !ok {
		return fmt.Errorf("removing %s: %w", id, ErrUnknownIndividual)
	}
	n, ok := s.nodeByID[ind.NodeID]
	if !ok {
		return fmt.Errorf("removing %s from node %s: %w", id, ind.NodeID, ErrUnknownNode)
	}
	for _, relID := range append([]entities.Suid(nil), ind.Relationships()...) {
		rel, ok := s.arena.Lookup(relID)
		if !ok {
			continue
		}
		if err := n.manager.Terminate(ctx, rel, entities.ReasonSelfDied); err != nil {
			return err
		}
	}
	n.removeResident(ind)
	s.population.Remove(id)
	return nil
}

// SetDebutAge overrides the debut age of an individual, in days. Someone
// already past it is queued for formation on the next step.
func (s *Simulation) SetDebutAge(id entities.Suid, ageDays float64) error {
	ind, ok := s.population.Individual(id)
	if !ok {
		return fmt.Errorf("setting debut age of %s: %w", id, ErrUnknownIndividual)
	}
	if ind.SetDebutAge(ageDays) {
		s.logger.Debug("sexual debut", zap.Uint64("individual_id", uint64(id)))
	}
	return nil
}

// Populate adds perNode synthetic individuals to every node. Ages are uniform
// between the minimum debut age and fifty years; each individual is infected
// with probability prevalence. Ids are derived from the node id, so processes
// simulating disjoint node sets never mint the same individual id.
func (s *Simulation) Populate(perNode int, prevalence, infectiousness float64) error {
	minAge := s.deps.Params.DebutAge.MinimumAgeYears
	for _, n := range s.nodes {
		base := entities.Suid(uint64(max(n.id, 1)-1) * uint64(perNode))
		for i := 0; i < perNode; i++ {
			next := base + entities.Suid(i+1)
			gender := entities.Female
			if s.deps.Random.Bernoulli(0.5) {
				gender = entities.Male
			}
			years := minAge + s.deps.Random.Uniform()*math.Max(50-minAge, 0)
			ind := entities.NewIndividual(next, gender, years*entities.DaysPerYear, n.id)
			if s.deps.Random.Bernoulli(prevalence) {
				ind.Infect(entities.Strain{}, entities.NilSuid, infectiousness)
			}
			if err := s.AddIndividual(ind, true); err != nil {
				return err
			}
		}
	}
	s.logger.Info("population generated",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("individuals", s.population.Len()),
		zap.Int("infected", s.population.CountInfected()),
	)
	return nil
}
