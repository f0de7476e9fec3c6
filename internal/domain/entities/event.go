package entities

import "time"

// EventKind classifies a recorded network event.
type EventKind string

const (
	EventRelationshipStarted    EventKind = "relationship_started"
	EventRelationshipTerminated EventKind = "relationship_terminated"
	EventCoitalAct              EventKind = "coital_act"
	EventTransmission           EventKind = "transmission"
)

// RelationshipEvent is one row of the network event log.
type RelationshipEvent struct {
	ID             int64             `json:"id"`
	RunID          string            `json:"run_id"`
	Step           int64             `json:"step"`
	Time           float64           `json:"time"`
	NodeID         Suid              `json:"node_id"`
	Kind           EventKind         `json:"kind"`
	RelationshipID Suid              `json:"relationship_id"`
	Type           RelationshipType  `json:"type"`
	MaleID         Suid              `json:"male_id"`
	FemaleID       Suid              `json:"female_id"`
	Reason         TerminationReason `json:"reason,omitempty"`
	Details        map[string]any    `json:"details,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
