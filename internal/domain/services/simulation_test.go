package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/mocks"
	"github.com/ersonp/stinet/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simFixture struct {
	params     *entities.NetworkParameters
	rng        *mocks.Random
	terminated *mocks.TerminatedSet
	infection  *mocks.InfectionModel
	societies  map[entities.Suid]*mocks.Society
	sim        *Simulation
}

func newSimFixture(t *testing.T, params *entities.NetworkParameters, nodes ...entities.Suid) *simFixture {
	t.Helper()
	f := &simFixture{
		params:     params,
		rng:        mocks.NewRandom(),
		terminated: mocks.NewTerminatedSet(),
		infection:  &mocks.InfectionModel{},
		societies:  make(map[entities.Suid]*mocks.Society),
	}
	concurrency, err := NewConcurrencyConfiguration("", 0, map[string]*entities.ConcurrencyParameters{"NONE": oneOfEach()}, f.rng)
	require.NoError(t, err)
	f.sim = NewSimulation(SimulationConfig{Dt: 1, StartYear: 2000}, SimulationDeps{
		Params:      params,
		Random:      f.rng,
		Terminated:  f.terminated,
		Concurrency: concurrency,
		Infection:   f.infection,
		NewSociety: func(id entities.Suid) ports.Society {
			s := mocks.NewSociety()
			f.societies[id] = s
			return s
		},
	})
	for _, id := range nodes {
		f.sim.AddNode(id)
	}
	return f
}

func (f *simFixture) person(t *testing.T, id entities.Suid, gender entities.Gender, nodeID entities.Suid, extra uint8) *entities.Individual {
	t.Helper()
	ind := newPerson(t, id, gender, nodeID, 1, extra)
	require.NoError(t, f.sim.AddIndividual(ind, false))
	return ind
}

func (f *simFixture) pair(t *testing.T, typ entities.RelationshipType, male, female *entities.Individual) *entities.Relationship {
	t.Helper()
	node, ok := f.sim.Node(male.NodeID)
	require.True(t, ok)
	rel, err := f.sim.factory.Create(typ, male, female, node.ID(), f.sim.Time())
	require.NoError(t, err)
	node.Manager().AddRelationship(rel, true)
	return rel
}

func (f *simFixture) node(t *testing.T, id entities.Suid) *Node {
	t.Helper()
	n, ok := f.sim.Node(id)
	require.True(t, ok)
	return n
}

func TestSimulation_StepFormsScriptedPairs(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	f.societies[1].Pairs = []entities.Pair{{Type: entities.Informal, Male: male, Female: female}}

	stats, err := f.sim.Step(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Step)
	assert.Equal(t, 1, stats.Formed)
	assert.Equal(t, 1, stats.Relationships)
	assert.Equal(t, int64(1), f.sim.CurrentStep())
	assert.Equal(t, 1.0, f.sim.Time())
	assert.Equal(t, 1, f.societies[1].Begins)
	require.Len(t, male.Relationships(), 1)
	rel, ok := f.node(t, 1).Manager().Relationship(male.Relationships()[0])
	require.True(t, ok)
	assert.Equal(t, 1, rel.TotalCoitalActs(), "first act in the formation step")

	male.Enqueue(entities.Informal)
	female.Enqueue(entities.Informal)
	f.societies[1].Pairs = []entities.Pair{{Type: entities.Informal, Male: male, Female: female}}

	stats, err = f.sim.Step(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, stats.Formed, "an existing couple is not paired twice")
	assert.Equal(t, 0, male.Queued(entities.Informal))
	assert.Len(t, male.Relationships(), 1)
}

func TestSimulation_StepTransmitsNextStep(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1)
	f.infection.Infect = true
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	male.Infect(entities.Strain{CladeID: 1}, entities.NilSuid, 0.1)
	f.pair(t, entities.Informal, male, female)

	stats, err := f.sim.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Infections)
	assert.Empty(t, f.infection.Exposed)

	stats, err = f.sim.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Infections)
	assert.Equal(t, 2, stats.Infected)
	assert.Equal(t, []entities.Suid{female.ID}, f.infection.Exposed)
	assert.True(t, female.Infected)
	require.Len(t, f.infection.Exposures, 1)
	assert.InDelta(t, 0.1, f.infection.Exposures[0].Acts[0].ProbPerAct, 1e-12)
}

func TestSimulation_StepPropagatesNodeErrors(t *testing.T) {
	f := newSimFixture(t, testNetworkParams(), 1)
	f.terminated.Err = errors.New("redis down")

	_, err := f.sim.Step(context.Background())

	assert.Error(t, err)
	assert.Equal(t, int64(0), f.sim.CurrentStep())
}

func TestSimulation_MovePausesAndResumes(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	rel := f.pair(t, entities.Informal, male, female)
	home, away := f.node(t, 1), f.node(t, 2)

	moved, err := f.sim.MoveIndividual(ctx, male.ID, 2)

	require.NoError(t, err)
	assert.Equal(t, []entities.Suid{male.ID}, moved)
	assert.Equal(t, entities.StatePaused, rel.State())
	assert.True(t, home.Manager().Contains(rel.ID()))
	assert.False(t, home.Manager().InPool(rel.ID()))
	assert.True(t, away.Manager().Contains(rel.ID()))
	assert.True(t, away.IsResident(male.ID))
	assert.False(t, home.IsResident(male.ID))
	assert.Contains(t, f.societies[1].Removed, male.ID)
	assert.Equal(t, 2, f.sim.Arena().References(rel.ID()))
	assert.True(t, rel.IsAbsent(male.ID), "partners are in different nodes")
	assert.False(t, rel.IsAbsent(female.ID))
	assert.Equal(t, []entities.Suid{female.ID}, rel.PresentPartners())
	cp := rel.Checkpoint()
	assert.True(t, cp.MaleAbsent)
	assert.False(t, cp.FemaleAbsent)
	assert.Equal(t, entities.NilSuid, cp.MigrationDestination, "cleared on arrival")

	t.Run("partner joins", func(t *testing.T) {
		_, err := f.sim.MoveIndividual(ctx, female.ID, 2)

		require.NoError(t, err)
		assert.Equal(t, entities.StateNormal, rel.State())
		assert.Len(t, rel.PresentPartners(), 2)
		assert.False(t, home.Manager().Contains(rel.ID()))
		assert.True(t, away.Manager().InPool(rel.ID()))
		assert.Equal(t, 1, f.sim.Arena().References(rel.ID()))
	})

	t.Run("both return", func(t *testing.T) {
		_, err := f.sim.MoveIndividual(ctx, male.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, entities.StatePaused, rel.State())
		assert.True(t, rel.IsAbsent(male.ID))

		_, err = f.sim.MoveIndividual(ctx, female.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, entities.StateNormal, rel.State())
		assert.Equal(t, 1, home.Manager().Count())
		assert.Equal(t, 0, away.Manager().Count())
		assert.True(t, home.Manager().InPool(rel.ID()))
	})
}

func TestSimulation_PausedPartnerDeathEndsBothSides(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	rel := f.pair(t, entities.Informal, male, female)
	home, away := f.node(t, 1), f.node(t, 2)
	var ended []entities.TerminationReason
	record := func(r *entities.Relationship) { ended = append(ended, r.TerminationReason()) }
	home.Manager().OnTerminated(record)
	away.Manager().OnTerminated(record)

	_, err := f.sim.MoveIndividual(ctx, male.ID, 2)
	require.NoError(t, err)
	_, err = f.sim.Step(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sim.Die(ctx, female.ID))

	assert.Equal(t, entities.StateTerminated, rel.State())
	assert.Equal(t, []entities.TerminationReason{entities.ReasonSelfDied}, ended)
	assert.Equal(t, []entities.Suid{rel.ID()}, f.terminated.Added)
	assert.False(t, home.Manager().Contains(rel.ID()))
	assert.True(t, away.Manager().Contains(rel.ID()))
	assert.Equal(t, []entities.Suid{rel.ID()}, male.Relationships(), "his side is still open")

	_, err = f.sim.Step(ctx)
	require.NoError(t, err)

	assert.Equal(t, []entities.TerminationReason{entities.ReasonSelfDied, entities.ReasonPartnerTerminated}, ended)
	assert.Equal(t, entities.ReasonPartnerTerminated, rel.TerminationReason())
	assert.Empty(t, male.Relationships())
	assert.Zero(t, male.Slots())
	assert.Equal(t, 0, away.Manager().Count())
	assert.Equal(t, 0, f.sim.Arena().Len())
	assert.Len(t, f.terminated.Added, 1)
}

func TestSimulation_PausedBreakupSeenByPartnerNode(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	rel := linkManual(t, 50, f.params.ForType(entities.Informal), male, female, 1.5)
	f.node(t, 1).Manager().AddRelationship(rel, true)
	_, err := f.sim.MoveIndividual(ctx, female.ID, 2)
	require.NoError(t, err)

	_, err = f.sim.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.StatePaused, rel.State())

	_, err = f.sim.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.ReasonBrokeUp, rel.TerminationReason())
	assert.Empty(t, male.Relationships())
	assert.Equal(t, []entities.Suid{rel.ID()}, female.Relationships())

	_, err = f.sim.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.ReasonPartnerTerminated, rel.TerminationReason())
	assert.Empty(t, female.Relationships())
	assert.Equal(t, 0, f.sim.Arena().Len())
}

func TestSimulation_MoveMigratesCouple(t *testing.T) {
	ctx := context.Background()
	params := testNetworkParams()
	params.Relationships[entities.Marital].MigrationActions = []entities.MigrationAction{entities.ActionMigrate}
	f := newSimFixture(t, params, 1, 2)
	husband := f.person(t, 1, entities.Male, 1, 0)
	wife := f.person(t, 2, entities.Female, 1, allTypesMask)
	lover := f.person(t, 3, entities.Male, 1, 0)
	marriage := f.pair(t, entities.Marital, husband, wife)
	affair := f.pair(t, entities.Informal, lover, wife)

	moved, err := f.sim.MoveIndividual(ctx, husband.ID, 2)

	require.NoError(t, err)
	assert.ElementsMatch(t, []entities.Suid{husband.ID, wife.ID}, moved)
	assert.Equal(t, entities.StateNormal, marriage.State())
	assert.True(t, marriage.HasMigrated())
	assert.True(t, f.node(t, 2).Manager().InPool(marriage.ID()))
	assert.False(t, f.node(t, 1).Manager().Contains(marriage.ID()))
	assert.Equal(t, entities.StateTerminated, affair.State())
	assert.Equal(t, entities.ReasonPartnerMigrating, affair.TerminationReason())
	assert.Equal(t, 0, lover.RelationshipCount())
	assert.Equal(t, []entities.Suid{marriage.ID()}, wife.Relationships())
	assert.Equal(t, entities.Suid(2), wife.NodeID)
}

func TestSimulation_MoveTerminates(t *testing.T) {
	params := testNetworkParams()
	params.Relationships[entities.Transitory].MigrationActions = []entities.MigrationAction{entities.ActionTerminate}
	f := newSimFixture(t, params, 1, 2)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	rel := f.pair(t, entities.Transitory, male, female)

	_, err := f.sim.MoveIndividual(context.Background(), male.ID, 2)

	require.NoError(t, err)
	assert.Equal(t, entities.ReasonSelfMigrating, rel.TerminationReason())
	assert.Equal(t, 0, female.RelationshipCount())
	assert.Equal(t, 0, f.sim.Arena().Len())
}

func TestSimulation_MoveUnknown(t *testing.T) {
	f := newSimFixture(t, testNetworkParams(), 1)
	male := f.person(t, 1, entities.Male, 1, 0)

	_, err := f.sim.MoveIndividual(context.Background(), male.ID, 9)
	assert.True(t, errors.Is(err, ErrUnknownNode))

	_, err = f.sim.MoveIndividual(context.Background(), 42, 1)
	assert.True(t, errors.Is(err, ErrUnknownIndividual))
}

func TestSimulation_RandomMigration(t *testing.T) {
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	f.sim.cfg.MigrationProbability = 1
	a := f.person(t, 1, entities.Male, 1, 0)
	b := f.person(t, 2, entities.Female, 2, 0)

	stats, err := f.sim.Step(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Migrations)
	assert.Equal(t, entities.Suid(2), a.NodeID)
	assert.Equal(t, entities.Suid(1), b.NodeID)
}

func TestSimulation_Die(t *testing.T) {
	f := newSimFixture(t, testNetworkParams(), 1)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	rel := f.pair(t, entities.Informal, male, female)

	require.NoError(t, f.sim.Die(context.Background(), male.ID))

	assert.Equal(t, entities.ReasonSelfDied, rel.TerminationReason())
	assert.Equal(t, 0, female.RelationshipCount())
	assert.Equal(t, 1, f.sim.Population().Len())
	assert.False(t, f.node(t, 1).IsResident(male.ID))
	assert.Contains(t, f.societies[1].Removed, male.ID)
	assert.True(t, errors.Is(f.sim.Die(context.Background(), male.ID), ErrUnknownIndividual))
}

func TestSimulation_Populate(t *testing.T) {
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	f.rng.Uniforms = []float64{0.1, 0.5, 0.05, 0.9, 0.5, 0.9}

	require.NoError(t, f.sim.Populate(1, 0.1, 0.02))

	assert.Equal(t, 2, f.sim.Population().Len())
	first, ok := f.sim.Population().Individual(1)
	require.True(t, ok)
	assert.Equal(t, entities.Male, first.Gender)
	assert.True(t, first.Infected)
	second, ok := f.sim.Population().Individual(2)
	require.True(t, ok)
	assert.Equal(t, entities.Female, second.Gender)
	assert.False(t, second.Infected)
	assert.Equal(t, entities.Suid(2), second.NodeID)
}

func TestSimulation_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	traveller := f.person(t, 3, entities.Male, 1, 0)
	stayer := f.person(t, 4, entities.Female, 1, 0)
	home := f.pair(t, entities.Marital, male, female)
	paused := f.pair(t, entities.Informal, traveller, stayer)
	_, err := f.sim.MoveIndividual(ctx, traveller.ID, 2)
	require.NoError(t, err)
	_, err = f.sim.Step(ctx)
	require.NoError(t, err)

	cp := f.sim.Snapshot("run-1")
	data, err := json.Marshal(cp)
	require.NoError(t, err)
	var decoded entities.SimulationCheckpoint
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := newSimFixture(t, testNetworkParams())
	require.NoError(t, restored.sim.Restore(ctx, &decoded))

	assert.Equal(t, f.sim.CurrentStep(), restored.sim.CurrentStep())
	assert.Equal(t, f.sim.Time(), restored.sim.Time())
	assert.Equal(t, 4, restored.sim.Population().Len())
	assert.Len(t, restored.sim.Nodes(), 2)

	rel, ok := restored.node(t, 1).Manager().Relationship(home.ID())
	require.True(t, ok)
	assert.Equal(t, entities.StateNormal, rel.State())
	assert.NotNil(t, rel.Parameters())
	assert.True(t, restored.node(t, 1).Manager().InPool(home.ID()))

	assert.True(t, restored.node(t, 1).Manager().Contains(paused.ID()))
	assert.True(t, restored.node(t, 2).Manager().Contains(paused.ID()))
	assert.Equal(t, 2, restored.sim.Arena().References(paused.ID()))
	assert.False(t, restored.node(t, 2).Manager().InPool(paused.ID()))

	restoredMale, ok := restored.sim.Population().Individual(male.ID)
	require.True(t, ok)
	assert.Equal(t, male.Slots(), restoredMale.Slots())
	assert.Equal(t, male.Relationships(), restoredMale.Relationships())

	assert.Equal(t, f.sim.deps.IDs.State(), restored.sim.deps.IDs.State())

	var pausedCP entities.RelationshipCheckpoint
	for _, c := range decoded.Relationships {
		if c.ID == paused.ID() {
			pausedCP = c
		}
	}
	assert.True(t, pausedCP.MaleAbsent)
	assert.False(t, pausedCP.FemaleAbsent)
	restoredPaused, ok := restored.sim.Arena().Lookup(paused.ID())
	require.True(t, ok)
	assert.Equal(t, []entities.Suid{stayer.ID}, restoredPaused.PresentPartners())

	assert.Error(t, restored.sim.Restore(ctx, &decoded), "already populated")
}

func TestCheckpointService(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewCheckpointStore()
	svc := NewCheckpointService(store, nil)
	f := newSimFixture(t, testNetworkParams(), 1)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	f.pair(t, entities.Informal, male, female)

	cp, err := svc.Save(ctx, f.sim, "run-1")
	require.NoError(t, err)
	assert.Len(t, cp.Relationships, 1)
	assert.Len(t, store.Checkpoints["run-1"], 1)

	restored := newSimFixture(t, testNetworkParams())
	_, err = svc.Restore(ctx, restored.sim, "run-1", -1)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.sim.Arena().Len())

	_, err = svc.Load(ctx, "missing", -1)
	assert.True(t, errors.Is(err, ErrCheckpointNotFound))

	store.Err = errors.New("disk full")
	_, err = svc.Save(ctx, f.sim, "run-1")
	assert.Error(t, err)
}

func TestSimulation_RestoreRequeuesPendingRequests(t *testing.T) {
	f := newSimFixture(t, testNetworkParams(), 1)
	ind := f.person(t, 1, entities.Male, 1, 0)
	ind.Enqueue(entities.Transitory)

	restored := newSimFixture(t, testNetworkParams())
	require.NoError(t, restored.sim.Restore(context.Background(), f.sim.Snapshot("run-1")))

	assert.Equal(t, []mocks.Enqueued{{Type: entities.Transitory, ID: 1}}, restored.societies[1].Enqueued)
}

func TestSimulation_RestoreKeepsPendingTermination(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1, 2)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	rel := f.pair(t, entities.Informal, male, female)
	_, err := f.sim.MoveIndividual(ctx, male.ID, 2)
	require.NoError(t, err)
	_, err = f.sim.Step(ctx)
	require.NoError(t, err)
	require.NoError(t, f.sim.Die(ctx, female.ID))

	cp := f.sim.Snapshot("run-1")
	require.Len(t, cp.Relationships, 1)
	assert.Equal(t, male.ID, cp.Relationships[0].OpenSide)

	restored := newSimFixture(t, testNetworkParams())
	require.NoError(t, restored.sim.Restore(ctx, cp))
	away := restored.node(t, 2)
	assert.True(t, away.Manager().Contains(rel.ID()))
	assert.False(t, restored.node(t, 1).Manager().Contains(rel.ID()))

	_, err = restored.sim.Step(ctx)
	require.NoError(t, err)

	restoredMale, ok := restored.sim.Population().Individual(male.ID)
	require.True(t, ok)
	assert.Empty(t, restoredMale.Relationships())
	assert.Equal(t, 0, away.Manager().Count())
	assert.Equal(t, 0, restored.sim.Arena().Len())
}

func TestSimulation_RestoreExposesCheckpointedContagion(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t, testNetworkParams(), 1)
	male := f.person(t, 1, entities.Male, 1, 0)
	female := f.person(t, 2, entities.Female, 1, 0)
	male.Infect(entities.Strain{CladeID: 1}, entities.NilSuid, 0.1)
	rel := f.pair(t, entities.Informal, male, female)
	_, err := f.sim.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rel.CoitalActsThisStep())

	restored := newSimFixture(t, testNetworkParams())
	restored.infection.Infect = true
	require.NoError(t, restored.sim.Restore(ctx, f.sim.Snapshot("run-1")))
	pool, ok := restored.node(t, 1).Groups().GetGroupMembership(rel)
	require.True(t, ok)
	assert.Len(t, restored.node(t, 1).Groups().CurrentContagion(pool), 1)

	stats, err := restored.sim.Step(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Infections)
	assert.Equal(t, []entities.Suid{female.ID}, restored.infection.Exposed)
	require.Len(t, restored.infection.Exposures, 1)
	assert.InDelta(t, 0.1, restored.infection.Exposures[0].Acts[0].ProbPerAct, 1e-12)
	assert.Equal(t, male.ID, restored.infection.Exposures[0].DepositorID)
}
