package services

import "github.com/ersonp/stinet/internal/domain/entities"

// Population is the ordered set of every individual in the simulation.
type Population struct {
	byID  map[entities.Suid]*entities.Individual
	order *sparseSet[entities.Suid]
}

// NewPopulation creates an empty population.
func NewPopulation() *Population {
	return &Population{
		byID:  make(map[entities.Suid]*entities.Individual),
		order: newSparseSet[entities.Suid](),
	}
}

// Add inserts ind and reports whether its id was new.
func (p *Population) Add(ind *entities.Individual) bool {
	if !p.order.Add(ind.ID) {
		return false
	}
	p.byID[ind.ID] = ind
	return true
}

// Remove deletes an individual.
func (p *Population) Remove(id entities.Suid) {
	if p.order.Remove(id) {
		delete(p.byID, id)
	}
}

// Individual looks up an individual by id.
func (p *Population) Individual(id entities.Suid) (*entities.Individual, bool) {
	ind, ok := p.byID[id]
	return ind, ok
}

// All returns every individual.
func (p *Population) All() []*entities.Individual {
	ids := p.order.Values()
	out := make([]*entities.Individual, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.byID[id])
	}
	return out
}

// Len returns the number of individuals.
func (p *Population) Len() int { return p.order.Len() }

// CountInfected returns the number of infected individuals.
func (p *Population) CountInfected() int {
	n := 0
	for _, ind := range p.byID {
		if ind.Infected {
			n++
		}
	}
	return n
}
