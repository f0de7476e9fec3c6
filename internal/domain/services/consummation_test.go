package services

import (
	"testing"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsummator(f *networkFixture) *Consummator {
	return NewConsummator(f.params, f.rng, f.population, f.manager, f.groups)
}

func TestConsummator_FirstActBootstrap(t *testing.T) {
	f := newNetworkFixture(t)
	male := newPerson(t, 1, entities.Male, 1, 1, 0)
	female := newPerson(t, 2, entities.Female, 1, 1, 0)
	f.add(male, female)
	rel := f.form(t, entities.Informal, male, female)
	c := newTestConsummator(f)

	require.NoError(t, c.Consummate(rel, 1.0, 2000))
	assert.Equal(t, 1, rel.TotalCoitalActs(), "a zero draw still yields the first act")
	assert.Equal(t, 1, male.TotalCoitalActs)
	assert.Equal(t, 1, female.TotalCoitalActs)

	require.NoError(t, c.Consummate(rel, 1.0, 2000))
	assert.Equal(t, 1, rel.TotalCoitalActs(), "no bootstrap after the first act")
}

func TestConsummator_SkipsPartnersUnderTwelve(t *testing.T) {
	f := newNetworkFixture(t)
	male := newPerson(t, 1, entities.Male, 1, 1, 0)
	female := newPerson(t, 2, entities.Female, 1, 1, 0)
	f.add(male, female)
	rel := f.form(t, entities.Informal, male, female)
	c := newTestConsummator(f)
	female.Age = 11.5 * entities.DaysPerYear

	require.NoError(t, c.Consummate(rel, 1.0, 2000))

	assert.Equal(t, 0, rel.TotalCoitalActs(), "no bootstrap act either")
	assert.Equal(t, 0, male.TotalCoitalActs)
	assert.Empty(t, f.rng.PoissonMeans)

	female.Age = 12 * entities.DaysPerYear
	require.NoError(t, c.Consummate(rel, 1.0, 2000))
	assert.Equal(t, 1, rel.TotalCoitalActs())
}

func TestConsummator_Attenuation(t *testing.T) {
	tests := []struct {
		name     string
		partners int
		dilution bool
		want     float64
	}{
		{name: "single relationship", partners: 1, dilution: true, want: 1.0},
		{name: "two relationships", partners: 2, dilution: true, want: 0.75},
		{name: "three relationships", partners: 3, dilution: true, want: 0.6},
		{name: "four relationships", partners: 4, dilution: true, want: 0.45},
		{name: "dilution disabled", partners: 3, dilution: false, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNetworkFixture(t)
			f.params.CoitalDilution.Enabled = tt.dilution
			male := newPerson(t, 1, entities.Male, 1, 4, allTypesMask)
			f.add(male)
			var first *entities.Relationship
			for i := 0; i < tt.partners; i++ {
				female := newPerson(t, entities.Suid(10+i), entities.Female, 1, 1, 0)
				f.add(female)
				rel := f.form(t, entities.Informal, male, female)
				if first == nil {
					first = rel
				}
			}

			require.NoError(t, newTestConsummator(f).Consummate(first, 2.0, 2000))

			require.Len(t, f.rng.PoissonMeans, 1)
			assert.InDelta(t, 2.0*tt.want*0.5, f.rng.PoissonMeans[0], 1e-12)
		})
	}
}

func TestConsummator_DiscordantDepositsPerAct(t *testing.T) {
	f := newNetworkFixture(t)
	f.params.Relationships[entities.Informal].CondomUsage = entities.Sigmoid{Early: 0.4, Late: 0.4}
	male := newPerson(t, 1, entities.Male, 1, 1, 0)
	female := newPerson(t, 2, entities.Female, 1, 1, 0)
	male.Infect(entities.Strain{CladeID: 3}, entities.NilSuid, 0.01)
	f.add(male, female)
	rel := f.form(t, entities.Informal, male, female)
	f.groups.Build()
	f.rng.Poissons = []int{3}
	f.rng.Binomials = []int{1}

	var acts int
	f.manager.OnConsummated(func(*entities.Relationship, bool) { acts++ })

	require.NoError(t, newTestConsummator(f).Consummate(rel, 1.0, 2000))

	assert.Equal(t, 3, acts)
	assert.Equal(t, 3, rel.CoitalActsThisStep())
	assert.Equal(t, 1, rel.CondomActsThisStep())
	require.Len(t, f.rng.BinomialArgs, 1)
	assert.Equal(t, mocks.BinomialCall{N: 3, P: 0.4}, f.rng.BinomialArgs[0])

	vector := rel.ActProbabilities()
	require.Len(t, vector, 2)
	assert.Equal(t, 1, vector[0].NumActs)
	assert.InDelta(t, 0.1, vector[0].ProbPerAct, 1e-12)
	assert.Equal(t, entities.ActProbability{NumActs: 2, ProbPerAct: 1.0}, vector[1])

	pool, ok := f.groups.GetGroupMembership(rel)
	require.True(t, ok)
	shed := f.groups.ShedContagion(pool)
	require.Len(t, shed, 3)
	assert.InDelta(t, 0.001, shed[0].ProbPerAct, 1e-12)
	assert.InDelta(t, 0.01, shed[1].ProbPerAct, 1e-12)
	assert.InDelta(t, 0.01, shed[2].ProbPerAct, 1e-12)
}

func TestConsummator_CoInfectionMultiplier(t *testing.T) {
	f := newNetworkFixture(t)
	f.params.CoInfectionAcquisitionMultiplier = 2.5
	f.params.CoInfectionTransmissionMultiplier = 1.5
	male := newPerson(t, 1, entities.Male, 1, 1, 0)
	female := newPerson(t, 2, entities.Female, 1, 1, 0)
	female.Infect(entities.Strain{}, entities.NilSuid, 0.01)
	female.HasCoInfection = true
	male.HasCoInfection = true
	f.add(male, female)
	rel := f.form(t, entities.Informal, male, female)
	f.rng.Poissons = []int{1}

	require.NoError(t, newTestConsummator(f).Consummate(rel, 1.0, 2000))

	assert.Equal(t, []entities.ActProbability{{NumActs: 1, ProbPerAct: 2.5}}, rel.ActProbabilities())
}

func TestConsummator_ConcordantHasNoVector(t *testing.T) {
	f := newNetworkFixture(t)
	male := newPerson(t, 1, entities.Male, 1, 1, 0)
	female := newPerson(t, 2, entities.Female, 1, 1, 0)
	f.add(male, female)
	rel := f.form(t, entities.Informal, male, female)
	f.groups.Build()
	f.rng.Poissons = []int{2}

	require.NoError(t, newTestConsummator(f).Consummate(rel, 1.0, 2000))

	assert.Equal(t, 2, rel.CoitalActsThisStep())
	assert.Empty(t, rel.ActProbabilities())
	pool, _ := f.groups.GetGroupMembership(rel)
	assert.Empty(t, f.groups.ShedContagion(pool))
}

func TestConsummator_SkipsPaused(t *testing.T) {
	f := newNetworkFixture(t)
	male := newPerson(t, 1, entities.Male, 1, 1, 0)
	female := newPerson(t, 2, entities.Female, 1, 1, 0)
	f.add(male, female)
	rel := f.form(t, entities.Informal, male, female)
	require.NoError(t, rel.Pause(male.ID, 2))

	require.NoError(t, newTestConsummator(f).Consummate(rel, 1.0, 2000))

	assert.Empty(t, f.rng.PoissonMeans)
	assert.Equal(t, 0, rel.TotalCoitalActs())
}

func TestActProbabilityInfection_Expose(t *testing.T) {
	contagion := entities.ActContagion{
		Strain:         entities.Strain{CladeID: 4},
		Acts:           []entities.ActProbability{{NumActs: 1, ProbPerAct: 0.5}},
		DepositorID:    9,
		RelationshipID: 21,
	}

	t.Run("infects below the probability", func(t *testing.T) {
		rng := mocks.NewRandom()
		rng.Uniforms = []float64{0.4}
		model := NewActProbabilityInfection(rng, 0.02)
		var seen []entities.Suid
		model.OnTransmission(func(c *entities.Individual, ac entities.ActContagion) {
			seen = append(seen, c.ID, ac.RelationshipID)
		})
		candidate := entities.NewIndividual(1, entities.Female, 7000, 1)

		infected, err := model.Expose(candidate, contagion, 1.0)

		require.NoError(t, err)
		assert.True(t, infected)
		assert.True(t, candidate.Infected)
		assert.Equal(t, entities.Suid(9), candidate.InfectedBy)
		assert.Equal(t, 4, candidate.Strain.CladeID)
		assert.Equal(t, 0.02, candidate.Infectiousness)
		assert.Equal(t, []entities.Suid{1, 21}, seen)
	})

	t.Run("escapes above the probability", func(t *testing.T) {
		rng := mocks.NewRandom()
		rng.Uniforms = []float64{0.6}
		candidate := entities.NewIndividual(1, entities.Female, 7000, 1)

		infected, err := NewActProbabilityInfection(rng, 0.02).Expose(candidate, contagion, 1.0)

		require.NoError(t, err)
		assert.False(t, infected)
		assert.False(t, candidate.Infected)
	})
}
