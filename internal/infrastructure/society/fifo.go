// Package society provides a first-come first-served pair-formation society.
package society

import (
	"github.com/ersonp/stinet/internal/domain/entities"
	"go.uber.org/zap"
)

const genders = 2

// FIFO matches queued males and females of the same relationship type in arrival order.
// Individuals left unmatched stay queued for the next step.
type FIFO struct {
	rates    [entities.RelationshipTypeCount]float64
	queues   [entities.RelationshipTypeCount][genders][]*entities.Individual
	eligible [entities.RelationshipTypeCount][genders]int
	highRisk [entities.RelationshipTypeCount][genders]int
	logger   *zap.Logger
}

// NewFIFO creates a society with per-type formation rates (per day).
func NewFIFO(rates [entities.RelationshipTypeCount]float64, logger *zap.Logger) *FIFO {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FIFO{rates: rates, logger: logger}
}

// BeginUpdate resets the per-step eligibility statistics.
func (s *FIFO) BeginUpdate() {
	s.eligible = [entities.RelationshipTypeCount][genders]int{}
	s.highRisk = [entities.RelationshipTypeCount][genders]int{}
}

// UpdateEligibility counts an individual available for type t.
func (s *FIFO) UpdateEligibility(t entities.RelationshipType, ind *entities.Individual, highRisk bool) {
	s.eligible[t][ind.Gender]++
	if highRisk {
		s.highRisk[t][ind.Gender]++
	}
}

// Eligible returns the number of individuals of a gender counted eligible for t this step.
func (s *FIFO) Eligible(t entities.RelationshipType, g entities.Gender) int {
	return s.eligible[t][g]
}

// HighRisk returns how many of the eligible individuals were high risk.
func (s *FIFO) HighRisk(t entities.RelationshipType, g entities.Gender) int {
	return s.highRisk[t][g]
}

// FormationRate returns the configured rate of type t.
func (s *FIFO) FormationRate(t entities.RelationshipType, _ *entities.Individual) float64 {
	return s.rates[t]
}

// Enqueue appends ind to the queue of type t.
func (s *FIFO) Enqueue(t entities.RelationshipType, ind *entities.Individual) {
	s.queues[t][ind.Gender] = append(s.queues[t][ind.Gender], ind)
}

// Waiting returns the number of queue entries of a gender for type t.
func (s *FIFO) Waiting(t entities.RelationshipType, g entities.Gender) int {
	return len(s.queues[t][g])
}

// FormPairs pops males and females of each type in arrival order. Entries whose
// request was withdrawn from the individual are discarded.
func (s *FIFO) FormPairs(_ float64) []entities.Pair {
	var pairs []entities.Pair
	for _, t := range entities.RelationshipTypes {
		males := s.compact(t, entities.Male)
		females := s.compact(t, entities.Female)
		n := min(len(males), len(females))
		for i := 0; i < n; i++ {
			pairs = append(pairs, entities.Pair{Type: t, Male: males[i], Female: females[i]})
		}
		s.queues[t][entities.Male] = males[n:]
		s.queues[t][entities.Female] = females[n:]
		if n > 0 {
			s.logger.Debug("pairs formed",
				zap.Stringer("type", t),
				zap.Int("pairs", n),
				zap.Int("males_waiting", len(males)-n),
				zap.Int("females_waiting", len(females)-n),
			)
		}
	}
	return pairs
}

// compact drops queue entries beyond the individual's pending request count.
func (s *FIFO) compact(t entities.RelationshipType, g entities.Gender) []*entities.Individual {
	queue := s.queues[t][g]
	seen := make(map[entities.Suid]int, len(queue))
	kept := queue[:0]
	for _, ind := range queue {
		seen[ind.ID]++
		if seen[ind.ID] > ind.Queued(t) {
			continue
		}
		kept = append(kept, ind)
	}
	for i := len(kept); i < len(queue); i++ {
		queue[i] = nil
	}
	return kept
}

// Remove withdraws ind from every queue.
func (s *FIFO) Remove(ind *entities.Individual) {
	for _, t := range entities.RelationshipTypes {
		queue := s.queues[t][ind.Gender]
		kept := queue[:0]
		for _, q := range queue {
			if q.ID != ind.ID {
				kept = append(kept, q)
			}
		}
		for i := len(kept); i < len(queue); i++ {
			queue[i] = nil
		}
		s.queues[t][ind.Gender] = kept
	}
}
