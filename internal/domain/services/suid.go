package services

import "github.com/ersonp/stinet/internal/domain/entities"

// SuidGenerator issues ids that are unique across numTasks cooperating processes:
// process rank r issues r+1, r+1+numTasks, r+1+2*numTasks, ...
type SuidGenerator struct {
	rank     uint64
	numTasks uint64
	counter  uint64
}

// NewSuidGenerator creates a generator for one process.
func NewSuidGenerator(rank, numTasks int) *SuidGenerator {
	if numTasks < 1 {
		numTasks = 1
	}
	return &SuidGenerator{rank: uint64(rank), numTasks: uint64(numTasks)}
}

// Next returns a fresh id.
func (g *SuidGenerator) Next() entities.Suid {
	id := g.counter*g.numTasks + g.rank + 1
	g.counter++
	return entities.Suid(id)
}

// State returns the counter for checkpointing.
func (g *SuidGenerator) State() uint64 { return g.counter }

// Restore resets the counter from a checkpoint.
func (g *SuidGenerator) Restore(counter uint64) { g.counter = counter }
