package services

import (
	"testing"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/mocks"
	"github.com/stretchr/testify/require"
)

const allTypesMask uint8 = 0x0F

func testNetworkParams() *entities.NetworkParameters {
	p := &entities.NetworkParameters{
		CoitalDilution: entities.CoitalDilution{
			Enabled:          true,
			TwoPartners:      0.75,
			ThreePartners:    0.6,
			FourPlusPartners: 0.45,
		},
		CondomTransmissionBlockingProbability: 0.9,
		DebutAge: entities.DebutAge{
			MinimumAgeYears: 13,
		},
	}
	for _, t := range entities.RelationshipTypes {
		p.Relationships[t] = entities.RelationshipParameters{
			Type:                  t,
			DurationScale:         1.0,
			DurationHeterogeneity: 1.0,
			CoitalActRate:         0.5,
			FormationRate:         0.01,
			MigrationActions:      []entities.MigrationAction{entities.ActionPause},
			MigrationActionsCDF:   []float64{1.0},
		}
	}
	return p
}

// newPerson returns a 20 year old who may hold up to maxPerType relationships of
// every type. extra is the extra-relational mask.
func newPerson(t *testing.T, id entities.Suid, gender entities.Gender, nodeID entities.Suid, maxPerType int, extra uint8) *entities.Individual {
	t.Helper()
	ind := entities.NewIndividual(id, gender, 20*entities.DaysPerYear, nodeID)
	ind.DebutAge = 15 * entities.DaysPerYear
	var maxes [entities.RelationshipTypeCount]int
	for i := range maxes {
		maxes[i] = maxPerType
	}
	require.NoError(t, ind.SetConcurrency(extra, maxes))
	return ind
}

// networkFixture is one node's relationship services backed by mocks.
type networkFixture struct {
	params     *entities.NetworkParameters
	rng        *mocks.Random
	terminated *mocks.TerminatedSet
	infection  *mocks.InfectionModel
	population *Population
	arena      *Arena
	manager    *RelationshipManager
	groups     *RelationshipGroups
	factory    *RelationshipFactory
}

func newNetworkFixture(t *testing.T) *networkFixture {
	t.Helper()
	f := &networkFixture{
		params:     testNetworkParams(),
		rng:        mocks.NewRandom(),
		terminated: mocks.NewTerminatedSet(),
		infection:  &mocks.InfectionModel{},
		population: NewPopulation(),
		arena:      NewArena(),
	}
	f.manager = NewRelationshipManager(1, f.arena, f.population, f.terminated, nil)
	f.groups = NewRelationshipGroups(f.manager, f.population, f.infection, nil)
	f.factory = NewRelationshipFactory(f.params, NewSuidGenerator(0, 1), f.arena, f.rng)
	return f
}

func (f *networkFixture) add(individuals ...*entities.Individual) {
	for _, ind := range individuals {
		f.population.Add(ind)
	}
}

// form creates a relationship between male and female and registers it with the manager.
func (f *networkFixture) form(t *testing.T, typ entities.RelationshipType, male, female *entities.Individual) *entities.Relationship {
	t.Helper()
	rel, err := f.factory.Create(typ, male, female, f.manager.NodeID(), 0)
	require.NoError(t, err)
	f.manager.AddRelationship(rel, true)
	return rel
}

// linkManual builds a relationship with an explicit timer and links both partners
// without going through the factory.
func linkManual(t *testing.T, id entities.Suid, params *entities.RelationshipParameters, male, female *entities.Individual, timer float64) *entities.Relationship {
	t.Helper()
	maleSlot, err := male.OpenRelationshipSlot()
	require.NoError(t, err)
	femaleSlot, err := female.OpenRelationshipSlot()
	require.NoError(t, err)
	rel := entities.NewRelationship(id, params, male.ID, female.ID, maleSlot, femaleSlot, timer, 0, male.NodeID)
	require.NoError(t, male.AddRelationship(rel, 0))
	require.NoError(t, female.AddRelationship(rel, 0))
	return rel
}
