package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/mocks"
	"github.com/ersonp/stinet/internal/domain/services"
)

func inspectFixture() (*mocks.CheckpointStore, *mocks.EventLog) {
	store := mocks.NewCheckpointStore()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.Runs["old"] = &entities.Run{ID: "old", CreatedAt: now.Add(-time.Hour)}
	store.Runs["new"] = &entities.Run{ID: "new", CreatedAt: now}
	store.Checkpoints["new"] = []*entities.SimulationCheckpoint{
		{RunID: "new", Step: 30},
		{
			RunID:       "new",
			Step:        60,
			Individuals: []entities.IndividualCheckpoint{{ID: 1}, {ID: 2}, {ID: 3}},
			Relationships: []entities.RelationshipCheckpoint{
				{ID: 10, Type: entities.Marital, State: entities.StateNormal},
				{ID: 11, Type: entities.Transitory, State: entities.StatePaused},
				{ID: 12, Type: entities.Marital, State: entities.StatePaused},
			},
		},
	}

	events := &mocks.EventLog{Events: []entities.RelationshipEvent{
		{RunID: "new", Kind: entities.EventRelationshipStarted, RelationshipID: 10},
		{RunID: "old", Kind: entities.EventRelationshipStarted, RelationshipID: 20},
		{RunID: "new", Kind: entities.EventRelationshipTerminated, RelationshipID: 10},
		{RunID: "new", Kind: entities.EventRelationshipStarted, RelationshipID: 11},
	}}
	return store, events
}

func TestInspectHandler_Runs(t *testing.T) {
	store, events := inspectFixture()
	handler := NewInspectHandler(store, events, store)

	runs, err := handler.Runs(t.Context(), 10)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].Run.ID)
	assert.Equal(t, []int64{30, 60}, runs[0].CheckpointSteps)
	assert.Equal(t, "old", runs[1].Run.ID)
	assert.Empty(t, runs[1].CheckpointSteps)

	limited, err := handler.Runs(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInspectHandler_Relationships(t *testing.T) {
	store, events := inspectFixture()
	handler := NewInspectHandler(store, events, store)

	t.Run("latest checkpoint", func(t *testing.T) {
		result, err := handler.Relationships(t.Context(), "new", -1, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(60), result.Step)
		assert.Equal(t, 3, result.Individuals)
		assert.Len(t, result.Relationships, 3)
		assert.Equal(t, 2, result.ByType[entities.Marital])
		assert.Equal(t, 2, result.ByState[entities.StatePaused])
	})

	t.Run("filtered by type", func(t *testing.T) {
		marital := entities.Marital
		result, err := handler.Relationships(t.Context(), "new", 60, &marital)
		require.NoError(t, err)
		require.Len(t, result.Relationships, 2)
		assert.Equal(t, entities.Suid(10), result.Relationships[0].ID)
		assert.Zero(t, result.ByType[entities.Transitory])
	})

	t.Run("specific step", func(t *testing.T) {
		result, err := handler.Relationships(t.Context(), "new", 30, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(30), result.Step)
		assert.Empty(t, result.Relationships)
	})

	t.Run("missing checkpoint", func(t *testing.T) {
		_, err := handler.Relationships(t.Context(), "old", -1, nil)
		assert.True(t, errors.Is(err, services.ErrCheckpointNotFound))
	})
}

func TestInspectHandler_Events(t *testing.T) {
	store, events := inspectFixture()
	handler := NewInspectHandler(store, events, store)

	result, err := handler.Events(t.Context(), "new", 2)

	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	assert.Equal(t, entities.Suid(11), result.Events[0].RelationshipID)
	assert.Equal(t, 2, result.Counts[entities.EventRelationshipStarted])
	assert.Equal(t, 1, result.Counts[entities.EventRelationshipTerminated])
}

func TestInspectHandler_Errors(t *testing.T) {
	store, events := inspectFixture()
	store.Err = errors.New("locked")
	events.Err = errors.New("locked")
	handler := NewInspectHandler(store, events, store)

	_, err := handler.Runs(t.Context(), 0)
	assert.Error(t, err)

	_, err = handler.Relationships(t.Context(), "new", -1, nil)
	assert.Error(t, err)

	_, err = handler.Events(t.Context(), "new", 0)
	assert.Error(t, err)
}
