package services

import (
	"fmt"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"go.uber.org/zap"
)

// RelationshipGroups maps each NORMAL relationship of a node to a two-member
// transmission pool and carries the contagion deposited into those pools.
//
// Deposits made during a step land in the shed buffer and become the exposure
// of the next step when EndUpdate rotates them. Pool indices are reassigned on
// every Build; buffered contagion follows its relationship to the new index.
type RelationshipGroups struct {
	manager    *RelationshipManager
	population ports.Population
	infection  ports.InfectionModel
	logger     *zap.Logger

	relToIndex map[entities.Suid]int
	indexToRel []entities.Suid
	maxIndex   int

	shed          [][]entities.ActProbability
	current       [][]entities.ActProbability
	infectionRate [][]entities.ActProbability
	depositors    []entities.Suid
	strains       []entities.Strain
}

// NewRelationshipGroups creates the pools of one node.
func NewRelationshipGroups(
	manager *RelationshipManager,
	population ports.Population,
	infection ports.InfectionModel,
	logger *zap.Logger,
) *RelationshipGroups {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationshipGroups{
		manager:    manager,
		population: population,
		infection:  infection,
		logger:     logger,
		relToIndex: make(map[entities.Suid]int),
		maxIndex:   -1,
	}
}

// Build reassigns pool indices from the manager's current pool membership.
func (g *RelationshipGroups) Build() {
	oldIndex := g.relToIndex
	oldShed, oldCurrent, oldRate := g.shed, g.current, g.infectionRate
	oldDepositors, oldStrains := g.depositors, g.strains

	g.relToIndex = make(map[entities.Suid]int, len(oldIndex))
	g.indexToRel = g.indexToRel[:0]
	for _, key := range g.manager.PoolKeys() {
		for _, id := range g.manager.PoolMembers(key) {
			if _, ok := g.relToIndex[id]; ok {
				continue
			}
			g.relToIndex[id] = len(g.indexToRel)
			g.indexToRel = append(g.indexToRel, id)
		}
	}
	g.maxIndex = len(g.indexToRel) - 1

	n := len(g.indexToRel)
	g.shed = make([][]entities.ActProbability, n)
	g.current = make([][]entities.ActProbability, n)
	g.infectionRate = make([][]entities.ActProbability, n)
	g.depositors = make([]entities.Suid, n)
	g.strains = make([]entities.Strain, n)
	for i, id := range g.indexToRel {
		old, ok := oldIndex[id]
		if !ok {
			continue
		}
		g.shed[i] = oldShed[old]
		g.current[i] = oldCurrent[old]
		g.infectionRate[i] = oldRate[old]
		g.depositors[i] = oldDepositors[old]
		g.strains[i] = oldStrains[old]
	}

	g.logger.Debug("transmission pools rebuilt", zap.Int("pools", n))
}

// MaxIndex returns the highest valid pool index, or -1 when there are no pools.
func (g *RelationshipGroups) MaxIndex() int { return g.maxIndex }

// GetGroupMembership returns the pool index of rel. Relationships that joined
// after the last Build, or whose index is out of range, are not exposed.
func (g *RelationshipGroups) GetGroupMembership(rel *entities.Relationship) (int, bool) {
	idx, ok := g.relToIndex[rel.ID()]
	if !ok || idx > g.maxIndex {
		return 0, false
	}
	return idx, true
}

// RelationshipAt returns the relationship id of a pool.
func (g *RelationshipGroups) RelationshipAt(pool int) (entities.Suid, bool) {
	if pool < 0 || pool > g.maxIndex {
		return entities.NilSuid, false
	}
	return g.indexToRel[pool], true
}

// DepositContagion adds one act of probability prob to the pool's shed buffer.
// It reports false when nothing was deposited: the pool is unknown, or both
// members are already infected.
func (g *RelationshipGroups) DepositContagion(strain entities.Strain, prob float64, pool int) (bool, error) {
	relID, ok := g.RelationshipAt(pool)
	if !ok {
		return false, nil
	}
	rel, ok := g.manager.Relationship(relID)
	if !ok {
		return false, nil
	}
	male, okMale := g.population.Individual(rel.MaleID())
	female, okFemale := g.population.Individual(rel.FemaleID())
	if !okMale || !okFemale {
		return false, fmt.Errorf("pool %d: partners of relationship %s not resident", pool, relID)
	}
	if male.Infected && female.Infected {
		return false, nil
	}
	switch {
	case male.Infected:
		g.depositors[pool] = male.ID
	case female.Infected:
		g.depositors[pool] = female.ID
	}
	g.strains[pool] = strain
	g.shed[pool] = append(g.shed[pool], entities.ActProbability{NumActs: 1, ProbPerAct: prob})
	return true, nil
}

// ExposeToContagion exposes candidate to the contagion of a pool, scaled by
// the candidate's acquisition reduction.
func (g *RelationshipGroups) ExposeToContagion(candidate *entities.Individual, pool int, dt float64) (bool, error) {
	if pool < 0 || pool > g.maxIndex || candidate.Infected {
		return false, nil
	}
	rate := g.infectionRate[pool]
	if len(rate) == 0 {
		return false, nil
	}
	acts := make([]entities.ActProbability, len(rate))
	for i, a := range rate {
		acts[i] = entities.ActProbability{NumActs: a.NumActs, ProbPerAct: a.ProbPerAct * candidate.AcquisitionReduction}
	}
	contagion := entities.ActContagion{
		Strain:         g.strains[pool],
		Acts:           acts,
		DepositorID:    g.depositors[pool],
		RelationshipID: g.indexToRel[pool],
		PoolIndex:      pool,
	}
	infected, err := g.infection.Expose(candidate, contagion, dt)
	if err != nil {
		return false, fmt.Errorf("exposing individual %s in pool %d: %w", candidate.ID, pool, err)
	}
	return infected, nil
}

// EndUpdate makes this step's deposits the next step's exposure.
func (g *RelationshipGroups) EndUpdate() {
	for i := range g.shed {
		g.current[i] = g.shed[i]
		g.infectionRate[i] = g.shed[i]
		g.shed[i] = nil
	}
}

// ShedContagion returns the deposits of the current step.
func (g *RelationshipGroups) ShedContagion(pool int) []entities.ActProbability {
	if pool < 0 || pool > g.maxIndex {
		return nil
	}
	return g.shed[pool]
}

// CurrentContagion returns the contagion carried over from the previous step.
func (g *RelationshipGroups) CurrentContagion(pool int) []entities.ActProbability {
	if pool < 0 || pool > g.maxIndex {
		return nil
	}
	return g.current[pool]
}

// Depositor returns the infected member that last deposited into a pool.
func (g *RelationshipGroups) Depositor(pool int) entities.Suid {
	if pool < 0 || pool > g.maxIndex {
		return entities.NilSuid
	}
	return g.depositors[pool]
}
