package services

import (
	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
)

// TransmissionObserver is notified when an exposure infects an individual.
type TransmissionObserver func(candidate *entities.Individual, contagion entities.ActContagion)

// ActProbabilityInfection infects with probability 1 - prod (1-p)^n over the
// act-probability vector of an exposure.
type ActProbabilityInfection struct {
	rng            ports.Random
	infectiousness float64
	observers      []TransmissionObserver
}

// NewActProbabilityInfection creates the infection model. Newly infected
// individuals get the given per-act infectiousness.
func NewActProbabilityInfection(rng ports.Random, infectiousness float64) *ActProbabilityInfection {
	return &ActProbabilityInfection{rng: rng, infectiousness: infectiousness}
}

// OnTransmission registers an observer for successful transmissions.
func (m *ActProbabilityInfection) OnTransmission(o TransmissionObserver) {
	m.observers = append(m.observers, o)
}

// Expose draws whether the candidate acquires infection.
func (m *ActProbabilityInfection) Expose(candidate *entities.Individual, contagion entities.ActContagion, _ float64) (bool, error) {
	if candidate.Infected {
		return false, nil
	}
	p := contagion.ProbabilityOfInfection()
	if p <= 0 || m.rng.Uniform() >= p {
		return false, nil
	}
	candidate.Infect(contagion.Strain, contagion.DepositorID, m.infectiousness)
	for _, o := range m.observers {
		o(candidate, contagion)
	}
	return true, nil
}
