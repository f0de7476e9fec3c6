// Package ports defines interfaces for the collaborators of the partnership network.
package ports

import (
	"context"

	"github.com/ersonp/stinet/internal/domain/entities"
)

// Random is the simulation's source of random draws.
type Random interface {
	// Uniform returns a draw in [0,1).
	Uniform() float64

	// Bernoulli returns true with probability p.
	Bernoulli(p float64) bool

	// Poisson returns a Poisson-distributed count with the given mean.
	Poisson(mean float64) int

	// Binomial returns the number of successes in n trials of probability p.
	Binomial(n int, p float64) int

	// Exponential returns an exponentially distributed waiting time for the given rate.
	Exponential(rate float64) float64

	// Weibull returns scale * (-ln U)^heterogeneity.
	Weibull(scale, heterogeneity float64) float64

	// IntN returns a uniform integer in [0,n).
	IntN(n int) int
}

// Society is the pair-formation collaborator that matches queued individuals.
type Society interface {
	// BeginUpdate resets the per-step eligibility statistics.
	BeginUpdate()

	// UpdateEligibility reports an individual available for a relationship type.
	UpdateEligibility(t entities.RelationshipType, ind *entities.Individual, highRisk bool)

	// FormationRate returns the per-day rate at which ind seeks a relationship of type t.
	FormationRate(t entities.RelationshipType, ind *entities.Individual) float64

	// Enqueue adds ind to the pair-formation queue of type t.
	Enqueue(t entities.RelationshipType, ind *entities.Individual)

	// FormPairs matches queued individuals. Unmatched individuals stay queued.
	FormPairs(now float64) []entities.Pair

	// Remove withdraws ind from every queue.
	Remove(ind *entities.Individual)
}

// ConcurrencyConfig supplies concurrency limits keyed by an individual property value.
type ConcurrencyConfig interface {
	// PropertyName is the individual property whose value selects the limits.
	PropertyName() string

	// ProbSuperSpreader is the probability that an individual is a super-spreader.
	ProbSuperSpreader() float64

	// ExtraRelationalMask draws the per-type extra-relational flags.
	ExtraRelationalMask(propertyValue string, gender entities.Gender, superSpreader bool) (uint8, error)

	// MaxRelationships draws the maximum number of simultaneous relationships of type t.
	MaxRelationships(propertyValue string, gender entities.Gender, t entities.RelationshipType) (int, error)
}

// TerminatedSet shares relationship terminations with other nodes one step late.
type TerminatedSet interface {
	// Advance starts a new step: entries added during the previous step become visible.
	Advance(ctx context.Context, step int64) error

	// Add records that relID was terminated in nodeID during the current step.
	Add(ctx context.Context, nodeID, relID entities.Suid) error

	// WasTerminatedLastStep reports whether relID was added during the previous step.
	WasTerminatedLastStep(ctx context.Context, relID entities.Suid) (bool, error)
}

// InfectionModel decides whether an exposure infects the candidate.
type InfectionModel interface {
	Expose(candidate *entities.Individual, contagion entities.ActContagion, dt float64) (bool, error)
}

// Population resolves individuals by id.
type Population interface {
	Individual(id entities.Suid) (*entities.Individual, bool)
}
