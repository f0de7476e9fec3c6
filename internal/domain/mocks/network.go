package mocks

import (
	"context"

	"github.com/ersonp/stinet/internal/domain/entities"
)

// Society is a recording ports.Society with fixed formation rates.
type Society struct {
	Rates    [entities.RelationshipTypeCount]float64
	Pairs    []entities.Pair
	Enqueued []Enqueued
	Eligible []Enqueued
	Removed  []entities.Suid
	Begins   int
}

// Enqueued records one Enqueue or UpdateEligibility call.
type Enqueued struct {
	Type     entities.RelationshipType
	ID       entities.Suid
	HighRisk bool
}

// NewSociety creates a mock Society.
func NewSociety() *Society {
	return &Society{}
}

// BeginUpdate counts calls.
func (m *Society) BeginUpdate() { m.Begins++ }

// UpdateEligibility records the call.
func (m *Society) UpdateEligibility(t entities.RelationshipType, ind *entities.Individual, highRisk bool) {
	m.Eligible = append(m.Eligible, Enqueued{Type: t, ID: ind.ID, HighRisk: highRisk})
}

// FormationRate returns the configured rate of the type.
func (m *Society) FormationRate(t entities.RelationshipType, _ *entities.Individual) float64 {
	return m.Rates[t]
}

// Enqueue records the call.
func (m *Society) Enqueue(t entities.RelationshipType, ind *entities.Individual) {
	m.Enqueued = append(m.Enqueued, Enqueued{Type: t, ID: ind.ID})
}

// FormPairs hands out the scripted pairs once.
func (m *Society) FormPairs(_ float64) []entities.Pair {
	pairs := m.Pairs
	m.Pairs = nil
	return pairs
}

// Remove records the call.
func (m *Society) Remove(ind *entities.Individual) {
	m.Removed = append(m.Removed, ind.ID)
}

// TerminatedSet is an in-memory ports.TerminatedSet with error injection.
type TerminatedSet struct {
	Current  map[entities.Suid]entities.Suid
	Previous map[entities.Suid]entities.Suid
	Added    []entities.Suid
	Err      error
}

// NewTerminatedSet creates an empty mock TerminatedSet.
func NewTerminatedSet() *TerminatedSet {
	return &TerminatedSet{
		Current:  make(map[entities.Suid]entities.Suid),
		Previous: make(map[entities.Suid]entities.Suid),
	}
}

// Advance rotates current into previous.
func (m *TerminatedSet) Advance(_ context.Context, _ int64) error {
	if m.Err != nil {
		return m.Err
	}
	m.Previous = m.Current
	m.Current = make(map[entities.Suid]entities.Suid)
	return nil
}

// Add records relID for the current step.
func (m *TerminatedSet) Add(_ context.Context, nodeID, relID entities.Suid) error {
	if m.Err != nil {
		return m.Err
	}
	m.Current[relID] = nodeID
	m.Added = append(m.Added, relID)
	return nil
}

// WasTerminatedLastStep checks the previous step.
func (m *TerminatedSet) WasTerminatedLastStep(_ context.Context, relID entities.Suid) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.Previous[relID]
	return ok, nil
}

// Population is a map-backed ports.Population.
type Population map[entities.Suid]*entities.Individual

// NewPopulation indexes the given individuals.
func NewPopulation(individuals ...*entities.Individual) Population {
	p := make(Population, len(individuals))
	for _, ind := range individuals {
		p[ind.ID] = ind
	}
	return p
}

// Individual looks up an individual.
func (p Population) Individual(id entities.Suid) (*entities.Individual, bool) {
	ind, ok := p[id]
	return ind, ok
}

// InfectionModel records exposures and infects when Infect is set.
type InfectionModel struct {
	Exposures []entities.ActContagion
	Exposed   []entities.Suid
	Infect    bool
	Err       error
}

// Expose records the exposure.
func (m *InfectionModel) Expose(candidate *entities.Individual, contagion entities.ActContagion, _ float64) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.Exposures = append(m.Exposures, contagion)
	m.Exposed = append(m.Exposed, candidate.ID)
	if m.Infect {
		candidate.Infect(contagion.Strain, contagion.DepositorID, candidate.Infectiousness)
	}
	return m.Infect, nil
}
