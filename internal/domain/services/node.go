package services

import (
	"context"
	"fmt"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"go.uber.org/zap"
)

// NodeDeps are the collaborators of a node.
type NodeDeps struct {
	Params      *entities.NetworkParameters
	Population  *Population
	Arena       *Arena
	Factory     *RelationshipFactory
	Terminated  ports.TerminatedSet
	Society     ports.Society
	Concurrency ports.ConcurrencyConfig
	Infection   ports.InfectionModel
	Random      ports.Random
	Logger      *zap.Logger
}

// NodeStats summarizes one node step.
type NodeStats struct {
	Formed        int
	Relationships int
	Pools         int
	Infections    int
}

// Node is one geographic location with its residents, relationship registry
// and transmission pools.
type Node struct {
	id         entities.Suid
	population *Population
	residents  *sparseSet[entities.Suid]

	manager     *RelationshipManager
	groups      *RelationshipGroups
	partnership *Partnership
	consummator *Consummator
	factory     *RelationshipFactory
	society     ports.Society
	logger      *zap.Logger
}

// NewNode wires the services of one node.
func NewNode(id entities.Suid, deps NodeDeps) *Node {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	manager := NewRelationshipManager(id, deps.Arena, deps.Population, deps.Terminated, logger)
	groups := NewRelationshipGroups(manager, deps.Population, deps.Infection, logger)
	return &Node{
		id:          id,
		population:  deps.Population,
		residents:   newSparseSet[entities.Suid](),
		manager:     manager,
		groups:      groups,
		partnership: NewPartnership(deps.Params, deps.Society, deps.Concurrency, deps.Random),
		consummator: NewConsummator(deps.Params, deps.Random, deps.Population, manager, groups),
		factory:     deps.Factory,
		society:     deps.Society,
		logger:      logger.With(zap.Uint64("node_id", uint64(id))),
	}
}

func (n *Node) ID() entities.Suid                { return n.id }
func (n *Node) Manager() *RelationshipManager    { return n.manager }
func (n *Node) Groups() *RelationshipGroups      { return n.groups }
func (n *Node) Partnership() *Partnership        { return n.partnership }
func (n *Node) Society() ports.Society           { return n.society }
func (n *Node) IsResident(id entities.Suid) bool { return n.residents.Contains(id) }
func (n *Node) ResidentCount() int               { return n.residents.Len() }

func (n *Node) addResident(ind *entities.Individual) {
	n.residents.Add(ind.ID)
}

// Residents returns the individuals living in the node.
func (n *Node) Residents() []*entities.Individual {
	ids := n.residents.Values()
	out := make([]*entities.Individual, 0, len(ids))
	for _, id := range ids {
		if ind, ok := n.population.Individual(id); ok {
			out = append(out, ind)
		}
	}
	return out
}

func (n *Node) removeResident(ind *entities.Individual) {
	if n.residents.Remove(ind.ID) {
		n.society.Remove(ind)
		ind.ClearQueued()
	}
}

// Update runs one step of the node: dissolution, formation, pool rebuild,
// exposure and consummation. now is the simulation time in days and year the
// calendar year.
func (n *Node) Update(ctx context.Context, step int64, dt, now, year float64) (NodeStats, error) {
	var stats NodeStats

	if err := n.manager.Update(ctx, step, dt); err != nil {
		return stats, fmt.Errorf("updating relationships: %w", err)
	}

	residents := n.Residents()
	n.society.BeginUpdate()
	for _, ind := range residents {
		n.partnership.UpdateEligibility(ind)
	}
	for _, ind := range residents {
		n.partnership.ConsiderRelationships(ind, dt)
	}

	formed, err := n.formPairs(now)
	if err != nil {
		return stats, err
	}
	stats.Formed = formed

	n.groups.Build()

	for _, ind := range residents {
		if ind.Infected {
			continue
		}
		for _, relID := range ind.Relationships() {
			rel, ok := n.manager.Relationship(relID)
			if !ok || rel.State() != entities.StateNormal {
				continue
			}
			pool, ok := n.groups.GetGroupMembership(rel)
			if !ok {
				continue
			}
			infected, err := n.groups.ExposeToContagion(ind, pool, dt)
			if err != nil {
				return stats, err
			}
			if infected {
				stats.Infections++
				break
			}
		}
	}

	for _, ind := range residents {
		ind.Age += dt
		ind.TickCooldown(dt)
		if ind.Gender != entities.Male {
			continue
		}
		for _, relID := range append([]entities.Suid(nil), ind.Relationships()...) {
			rel, ok := n.manager.Relationship(relID)
			if !ok {
				continue
			}
			if err := n.consummator.Consummate(rel, dt, year); err != nil {
				return stats, err
			}
		}
	}

	n.groups.EndUpdate()

	stats.Relationships = n.manager.Count()
	stats.Pools = n.groups.MaxIndex() + 1
	return stats, nil
}

func (n *Node) formPairs(now float64) (int, error) {
	formed := 0
	for _, pair := range n.society.FormPairs(now) {
		if pair.Male.HasRelationshipWith(pair.Female.ID, n.manager.Relationship) {
			pair.Male.Dequeue(pair.Type)
			pair.Female.Dequeue(pair.Type)
			continue
		}
		rel, err := n.factory.Create(pair.Type, pair.Male, pair.Female, n.id, now)
		if err != nil {
			return formed, fmt.Errorf("forming relationship: %w", err)
		}
		n.manager.AddRelationship(rel, true)
		formed++
	}
	return formed, nil
}

// restoreContagion rebuilds the pools after a checkpoint load and deposits the
// act vectors recorded during the checkpointed step, so they are exposed on
// the next step exactly as in an uninterrupted run.
func (n *Node) restoreContagion() error {
	n.groups.Build()
	for _, rel := range n.manager.Relationships() {
		if rel.State() != entities.StateNormal || rel.CoitalActsThisStep() == 0 || len(rel.ActProbabilities()) == 0 {
			continue
		}
		male, okMale := n.population.Individual(rel.MaleID())
		female, okFemale := n.population.Individual(rel.FemaleID())
		if !okMale || !okFemale || !rel.IsDiscordant(male.Infected, female.Infected) {
			continue
		}
		infected := male
		if female.Infected {
			infected = female
		}
		if err := n.consummator.shed(infected, rel, rel.ActProbabilities()); err != nil {
			return err
		}
	}
	n.groups.EndUpdate()
	return nil
}
