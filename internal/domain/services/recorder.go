package services

import (
	"context"
	"fmt"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"go.uber.org/zap"
)

// EventRecorder buffers network events raised by the node observers and
// writes them to an event sink.
type EventRecorder struct {
	sink       ports.EventSink
	runID      string
	recordActs bool
	flushSize  int
	clock      func() (int64, float64)
	buffer     []entities.RelationshipEvent
	logger     *zap.Logger
}

// NewEventRecorder creates a recorder for one run. When recordActs is set every
// coital act becomes an event. A flushSize above zero flushes automatically
// once that many events are buffered.
func NewEventRecorder(sink ports.EventSink, runID string, recordActs bool, flushSize int, logger *zap.Logger) *EventRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRecorder{
		sink:       sink,
		runID:      runID,
		recordActs: recordActs,
		flushSize:  flushSize,
		clock:      func() (int64, float64) { return 0, 0 },
		logger:     logger,
	}
}

// Attach subscribes the recorder to every node of sim. infection may be nil.
func (r *EventRecorder) Attach(sim *Simulation, infection *ActProbabilityInfection) {
	r.clock = func() (int64, float64) { return sim.CurrentStep(), sim.Time() }
	for _, n := range sim.Nodes() {
		r.AttachNode(n)
	}
	if infection != nil {
		infection.OnTransmission(func(candidate *entities.Individual, contagion entities.ActContagion) {
			ev := r.event(candidate.NodeID, entities.EventTransmission, nil)
			ev.RelationshipID = contagion.RelationshipID
			if rel, ok := sim.Arena().Lookup(contagion.RelationshipID); ok {
				ev.Type = rel.Type()
				ev.MaleID = rel.MaleID()
				ev.FemaleID = rel.FemaleID()
			}
			ev.Details = map[string]any{
				"infected_id":  uint64(candidate.ID),
				"depositor_id": uint64(contagion.DepositorID),
				"clade_id":     contagion.Strain.CladeID,
				"genome_id":    contagion.Strain.GenomeID,
			}
			r.add(ev)
		})
	}
}

// AttachNode subscribes the recorder to the relationship observers of one node.
func (r *EventRecorder) AttachNode(n *Node) {
	nodeID := n.ID()
	n.Manager().OnNew(func(rel *entities.Relationship) {
		ev := r.event(nodeID, entities.EventRelationshipStarted, rel)
		ev.Details = map[string]any{"timer": rel.Timer()}
		r.add(ev)
	})
	n.Manager().OnTerminated(func(rel *entities.Relationship) {
		ev := r.event(nodeID, entities.EventRelationshipTerminated, rel)
		ev.Reason = rel.TerminationReason()
		ev.Details = map[string]any{
			"duration":       rel.Duration(),
			"previous_state": rel.PreviousState().String(),
			"coital_acts":    rel.TotalCoitalActs(),
		}
		r.add(ev)
	})
	if r.recordActs {
		n.Manager().OnConsummated(func(rel *entities.Relationship, usedCondom bool) {
			ev := r.event(nodeID, entities.EventCoitalAct, rel)
			ev.Details = map[string]any{"used_condom": usedCondom}
			r.add(ev)
		})
	}
}

// Pending returns the number of buffered events.
func (r *EventRecorder) Pending() int {
	return len(r.buffer)
}

// Flush writes the buffered events to the sink.
func (r *EventRecorder) Flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}
	if err := r.sink.RecordEvents(ctx, r.buffer); err != nil {
		return fmt.Errorf("recording %d events: %w", len(r.buffer), err)
	}
	r.logger.Debug("events flushed", zap.String("run_id", r.runID), zap.Int("count", len(r.buffer)))
	r.buffer = nil
	return nil
}

func (r *EventRecorder) event(nodeID entities.Suid, kind entities.EventKind, rel *entities.Relationship) entities.RelationshipEvent {
	step, t := r.clock()
	ev := entities.RelationshipEvent{
		RunID:  r.runID,
		Step:   step,
		Time:   t,
		NodeID: nodeID,
		Kind:   kind,
	}
	if rel != nil {
		ev.RelationshipID = rel.ID()
		ev.Type = rel.Type()
		ev.MaleID = rel.MaleID()
		ev.FemaleID = rel.FemaleID()
	}
	return ev
}

func (r *EventRecorder) add(ev entities.RelationshipEvent) {
	r.buffer = append(r.buffer, ev)
	if r.flushSize > 0 && len(r.buffer) >= r.flushSize {
		if err := r.Flush(context.Background()); err != nil {
			r.logger.Warn("failed to flush events", zap.Error(err))
		}
	}
}
