package ports

import (
	"context"

	"github.com/ersonp/stinet/internal/domain/entities"
)

// CheckpointStore persists runs and network snapshots.
type CheckpointStore interface {
	// SaveRun records a run.
	SaveRun(ctx context.Context, run *entities.Run) error

	// FindRun returns a run by id, or nil when it does not exist.
	FindRun(ctx context.Context, runID string) (*entities.Run, error)

	// SaveCheckpoint stores a snapshot, replacing any snapshot of the same run and step.
	SaveCheckpoint(ctx context.Context, cp *entities.SimulationCheckpoint) error

	// LoadCheckpoint returns the snapshot of a step, or the latest one when step is negative.
	LoadCheckpoint(ctx context.Context, runID string, step int64) (*entities.SimulationCheckpoint, error)
}

// EventSink receives recorded network events.
type EventSink interface {
	RecordEvents(ctx context.Context, events []entities.RelationshipEvent) error
}

// EventLog is an EventSink that can also be queried.
type EventLog interface {
	EventSink

	// ListEvents returns the most recent events of a run, newest first.
	ListEvents(ctx context.Context, runID string, limit int) ([]entities.RelationshipEvent, error)

	// CountEventsByKind returns event totals for a run.
	CountEventsByKind(ctx context.Context, runID string) (map[entities.EventKind]int, error)
}

// RunCatalog lists stored runs and their checkpoints.
type RunCatalog interface {
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]entities.Run, error)

	// ListCheckpointSteps returns the checkpointed steps of a run in ascending order.
	ListCheckpointSteps(ctx context.Context, runID string) ([]int64, error)
}

// SchemaManager prepares a store for use.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}
