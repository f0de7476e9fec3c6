// Package terminated provides the cross-node set of relationships terminated during the previous step.
package terminated

import (
	"context"
	"sync"

	"github.com/ersonp/stinet/internal/domain/entities"
)

// MemorySet is an in-process terminated set shared by every node of one simulation.
type MemorySet struct {
	mu       sync.Mutex
	step     int64
	current  map[entities.Suid]entities.Suid
	previous map[entities.Suid]entities.Suid
}

// NewMemorySet creates an empty set.
func NewMemorySet() *MemorySet {
	return &MemorySet{
		step:     -1,
		current:  make(map[entities.Suid]entities.Suid),
		previous: make(map[entities.Suid]entities.Suid),
	}
}

// Advance makes the entries of the previous step visible and starts collecting for step.
// Advancing by more than one step leaves nothing visible.
func (s *MemorySet) Advance(_ context.Context, step int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if step == s.step+1 {
		s.previous = s.current
	} else {
		s.previous = make(map[entities.Suid]entities.Suid)
	}
	s.current = make(map[entities.Suid]entities.Suid)
	s.step = step
	return nil
}

// Add records that relID was terminated in nodeID during the current step.
func (s *MemorySet) Add(_ context.Context, nodeID, relID entities.Suid) error {
	s.mu.Lock()
	s.current[relID] = nodeID
	s.mu.Unlock()
	return nil
}

// WasTerminatedLastStep reports whether relID was added during the previous step.
func (s *MemorySet) WasTerminatedLastStep(_ context.Context, relID entities.Suid) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.previous[relID]
	return ok, nil
}
