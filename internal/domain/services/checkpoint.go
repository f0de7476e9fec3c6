package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"go.uber.org/zap"
)

// ErrCheckpointNotFound is returned when no snapshot matches a run and step.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Snapshot captures the network state of the simulation. Terminated records
// still waiting to be dropped by a registry are left out, except those whose
// second side has not seen the termination yet.
func (s *Simulation) Snapshot(runID string) *entities.SimulationCheckpoint {
	cp := &entities.SimulationCheckpoint{
		RunID:    runID,
		Step:     s.step,
		Time:     s.time,
		NextSuid: s.deps.IDs.State(),
	}
	for _, n := range s.nodes {
		cp.Nodes = append(cp.Nodes, n.id)
	}
	for _, ind := range s.population.All() {
		cp.Individuals = append(cp.Individuals, ind.Checkpoint())
	}
	for _, rel := range s.arena.All() {
		if rel.State() == entities.StateTerminated && rel.OpenSide() == entities.NilSuid {
			continue
		}
		cp.Relationships = append(cp.Relationships, rel.Checkpoint())
	}
	return cp
}

// Restore loads a snapshot into a simulation that has no individuals yet.
// Relationship parameters are rebound from the simulation's network parameters
// and every record is registered with the nodes its partners live in. The
// contagion deposited during the checkpointed step is shed again so the first
// resumed step exposes it.
func (s *Simulation) Restore(ctx context.Context, cp *entities.SimulationCheckpoint) error {
	if s.population.Len() > 0 {
		return fmt.Errorf("restoring checkpoint of run %s: simulation already populated", cp.RunID)
	}
	for _, id := range cp.Nodes {
		s.AddNode(id)
	}
	for _, c := range cp.Individuals {
		ind := entities.IndividualFromCheckpoint(c)
		if err := s.AddIndividual(ind, false); err != nil {
			return fmt.Errorf("restoring checkpoint of run %s: %w", cp.RunID, err)
		}
		// Pending formation requests go back into the node's society queues.
		society := s.nodeByID[ind.NodeID].society
		for _, t := range entities.RelationshipTypes {
			for q := 0; q < ind.Queued(t); q++ {
				society.Enqueue(t, ind)
			}
		}
	}

	var pending []*entities.Relationship
	for _, c := range cp.Relationships {
		if !c.Type.Valid() {
			return fmt.Errorf("restoring relationship %s: invalid type %d", c.ID, c.Type)
		}
		rel := entities.RelationshipFromCheckpoint(c)
		rel.SetParameters(s.deps.Params.ForType(rel.Type()))
		partners := []entities.Suid{rel.MaleID(), rel.FemaleID()}
		if rel.State() == entities.StateTerminated {
			partners = []entities.Suid{rel.OpenSide()}
			pending = append(pending, rel)
		}
		for _, partnerID := range partners {
			partner, ok := s.population.Individual(partnerID)
			if !ok {
				continue
			}
			n, ok := s.nodeByID[partner.NodeID]
			if !ok {
				return fmt.Errorf("restoring relationship %s: node %s: %w", rel.ID(), partner.NodeID, ErrUnknownNode)
			}
			n.manager.AddRelationship(rel, false)
		}
	}

	if len(pending) > 0 {
		// Terminations of the checkpointed step become visible on the first resumed step.
		if err := s.deps.Terminated.Advance(ctx, cp.Step-1); err != nil {
			return fmt.Errorf("restoring terminated set: %w", err)
		}
		for _, rel := range pending {
			if err := s.deps.Terminated.Add(ctx, rel.OriginalNodeID(), rel.ID()); err != nil {
				return fmt.Errorf("restoring terminated relationship %s: %w", rel.ID(), err)
			}
		}
	}

	for _, n := range s.nodes {
		if err := n.restoreContagion(); err != nil {
			return fmt.Errorf("restoring contagion of node %s: %w", n.id, err)
		}
	}

	s.deps.IDs.Restore(cp.NextSuid)
	s.step = cp.Step
	s.time = cp.Time
	return nil
}

// CheckpointService persists simulation snapshots.
type CheckpointService struct {
	store  ports.CheckpointStore
	logger *zap.Logger
}

// NewCheckpointService creates a new checkpoint service.
func NewCheckpointService(store ports.CheckpointStore, logger *zap.Logger) *CheckpointService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointService{store: store, logger: logger}
}

// Save stores the current state of sim under runID.
func (c *CheckpointService) Save(ctx context.Context, sim *Simulation, runID string) (*entities.SimulationCheckpoint, error) {
	cp := sim.Snapshot(runID)
	if err := c.store.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("saving checkpoint: %w", err)
	}
	c.logger.Info("checkpoint saved",
		zap.String("run_id", runID),
		zap.Int64("step", cp.Step),
		zap.Int("individuals", len(cp.Individuals)),
		zap.Int("relationships", len(cp.Relationships)),
	)
	return cp, nil
}

// Load returns the snapshot of a step, or the latest one when step is negative.
func (c *CheckpointService) Load(ctx context.Context, runID string, step int64) (*entities.SimulationCheckpoint, error) {
	cp, err := c.store.LoadCheckpoint(ctx, runID, step)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if cp == nil {
		return nil, fmt.Errorf("run %s step %d: %w", runID, step, ErrCheckpointNotFound)
	}
	return cp, nil
}

// Restore loads a snapshot into sim.
func (c *CheckpointService) Restore(ctx context.Context, sim *Simulation, runID string, step int64) (*entities.SimulationCheckpoint, error) {
	cp, err := c.Load(ctx, runID, step)
	if err != nil {
		return nil, err
	}
	if err := sim.Restore(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}
