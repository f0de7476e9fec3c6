package entities

import "time"

// Run describes one simulation run.
type Run struct {
	ID        string    `json:"id"`
	Seed      uint64    `json:"seed"`
	Steps     int       `json:"steps"`
	Nodes     int       `json:"nodes"`
	CreatedAt time.Time `json:"created_at"`
}

// Pair is a male and female matched by pair formation for a relationship type.
type Pair struct {
	Type   RelationshipType
	Male   *Individual
	Female *Individual
}
