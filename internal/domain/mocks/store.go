package mocks

import (
	"context"
	"sort"

	"github.com/ersonp/stinet/internal/domain/entities"
)

// CheckpointStore is an in-memory ports.CheckpointStore.
type CheckpointStore struct {
	Runs        map[string]*entities.Run
	Checkpoints map[string][]*entities.SimulationCheckpoint
	Err         error
}

// NewCheckpointStore creates an empty mock CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		Runs:        make(map[string]*entities.Run),
		Checkpoints: make(map[string][]*entities.SimulationCheckpoint),
	}
}

// SaveRun stores the run.
func (m *CheckpointStore) SaveRun(_ context.Context, run *entities.Run) error {
	if m.Err != nil {
		return m.Err
	}
	m.Runs[run.ID] = run
	return nil
}

// FindRun returns the run or nil.
func (m *CheckpointStore) FindRun(_ context.Context, runID string) (*entities.Run, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Runs[runID], nil
}

// SaveCheckpoint appends the snapshot.
func (m *CheckpointStore) SaveCheckpoint(_ context.Context, cp *entities.SimulationCheckpoint) error {
	if m.Err != nil {
		return m.Err
	}
	m.Checkpoints[cp.RunID] = append(m.Checkpoints[cp.RunID], cp)
	return nil
}

// LoadCheckpoint returns the requested or latest snapshot, or nil.
func (m *CheckpointStore) LoadCheckpoint(_ context.Context, runID string, step int64) (*entities.SimulationCheckpoint, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	cps := m.Checkpoints[runID]
	if len(cps) == 0 {
		return nil, nil
	}
	if step < 0 {
		return cps[len(cps)-1], nil
	}
	for _, cp := range cps {
		if cp.Step == step {
			return cp, nil
		}
	}
	return nil, nil
}

// ListRuns returns runs newest first.
func (m *CheckpointStore) ListRuns(_ context.Context, limit int) ([]entities.Run, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	runs := make([]entities.Run, 0, len(m.Runs))
	for _, r := range m.Runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListCheckpointSteps returns the stored steps of a run.
func (m *CheckpointStore) ListCheckpointSteps(_ context.Context, runID string) ([]int64, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var steps []int64
	for _, cp := range m.Checkpoints[runID] {
		steps = append(steps, cp.Step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps, nil
}

// EventLog is an in-memory ports.EventLog.
type EventLog struct {
	Events []entities.RelationshipEvent
	Err    error
}

// RecordEvents appends the events.
func (m *EventLog) RecordEvents(_ context.Context, events []entities.RelationshipEvent) error {
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, events...)
	return nil
}

// ListEvents returns the newest events first.
func (m *EventLog) ListEvents(_ context.Context, runID string, limit int) ([]entities.RelationshipEvent, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.RelationshipEvent
	for i := len(m.Events) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if m.Events[i].RunID == runID {
			result = append(result, m.Events[i])
		}
	}
	return result, nil
}

// CountEventsByKind totals the events of a run.
func (m *EventLog) CountEventsByKind(_ context.Context, runID string) (map[entities.EventKind]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	counts := make(map[entities.EventKind]int)
	for _, e := range m.Events {
		if e.RunID == runID {
			counts[e.Kind]++
		}
	}
	return counts, nil
}

// SchemaManager is a mock ports.SchemaManager.
type SchemaManager struct {
	EnsureSchemaCallCount int
	Err                   error
}

// EnsureSchema records the call.
func (m *SchemaManager) EnsureSchema(_ context.Context) error {
	m.EnsureSchemaCallCount++
	return m.Err
}
