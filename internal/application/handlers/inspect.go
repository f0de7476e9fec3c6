package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"github.com/ersonp/stinet/internal/domain/services"
)

// InspectHandler reads stored runs, checkpoints and events.
type InspectHandler struct {
	checkpoints *services.CheckpointService
	events      ports.EventLog
	catalog     ports.RunCatalog
}

// NewInspectHandler creates a new inspect handler.
func NewInspectHandler(store ports.CheckpointStore, events ports.EventLog, catalog ports.RunCatalog) *InspectHandler {
	return &InspectHandler{
		checkpoints: services.NewCheckpointService(store, nil),
		events:      events,
		catalog:     catalog,
	}
}

// RunSummary is a stored run with its checkpointed steps.
type RunSummary struct {
	Run             entities.Run
	CheckpointSteps []int64
}

// RelationshipsResult contains the relationships of one checkpoint.
type RelationshipsResult struct {
	RunID         string
	Step          int64
	Individuals   int
	Relationships []entities.RelationshipCheckpoint
	ByType        map[entities.RelationshipType]int
	ByState       map[entities.RelationshipState]int
}

// EventsResult contains recorded events of a run.
type EventsResult struct {
	RunID  string
	Events []entities.RelationshipEvent
	Counts map[entities.EventKind]int
}

// Runs lists stored runs, most recent first.
func (h *InspectHandler) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	runs, err := h.catalog.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		steps, err := h.catalog.ListCheckpointSteps(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("listing checkpoints of %s: %w", run.ID, err)
		}
		summaries = append(summaries, RunSummary{Run: run, CheckpointSteps: steps})
	}
	return summaries, nil
}

// Relationships returns the relationships stored at a checkpoint, the latest
// when step is negative. A non-nil filter keeps only relationships of that type.
func (h *InspectHandler) Relationships(ctx context.Context, runID string, step int64, filter *entities.RelationshipType) (*RelationshipsResult, error) {
	cp, err := h.checkpoints.Load(ctx, runID, step)
	if err != nil {
		return nil, err
	}

	result := &RelationshipsResult{
		RunID:       runID,
		Step:        cp.Step,
		Individuals: len(cp.Individuals),
		ByType:      make(map[entities.RelationshipType]int),
		ByState:     make(map[entities.RelationshipState]int),
	}
	for _, rel := range cp.Relationships {
		if filter != nil && rel.Type != *filter {
			continue
		}
		result.Relationships = append(result.Relationships, rel)
		result.ByType[rel.Type]++
		result.ByState[rel.State]++
	}
	return result, nil
}

// Events returns the most recent events of a run and the totals per kind.
func (h *InspectHandler) Events(ctx context.Context, runID string, limit int) (*EventsResult, error) {
	events, err := h.events.ListEvents(ctx, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	counts, err := h.events.CountEventsByKind(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	return &EventsResult{RunID: runID, Events: events, Counts: counts}, nil
}
