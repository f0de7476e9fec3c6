package services

import (
	"fmt"
	"math"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
)

// Partnership drives the individual side of relationship formation: eligibility,
// the formation clock and the concurrency limits.
type Partnership struct {
	params      *entities.NetworkParameters
	society     ports.Society
	concurrency ports.ConcurrencyConfig
	rng         ports.Random
}

// NewPartnership creates the partnership service of one node.
func NewPartnership(
	params *entities.NetworkParameters,
	society ports.Society,
	concurrency ports.ConcurrencyConfig,
	rng ports.Random,
) *Partnership {
	return &Partnership{
		params:      params,
		society:     society,
		concurrency: concurrency,
		rng:         rng,
	}
}

// Initialize draws the super-spreader flag and sexual debut age of a newly
// created individual, then its concurrency limits.
func (p *Partnership) Initialize(ind *entities.Individual) error {
	ind.SetSuperSpreader(p.rng.Uniform() < p.concurrency.ProbSuperSpreader())

	debut := p.params.DebutAge
	scale, heterogeneity := debut.FemaleScale, debut.FemaleHeterogeneity
	if ind.Gender == entities.Male {
		scale, heterogeneity = debut.MaleScale, debut.MaleHeterogeneity
	}
	years := debut.MinimumAgeYears
	if scale > 0 {
		years = math.Max(years, p.rng.Weibull(scale, heterogeneity))
	}
	ind.DebutAge = years * entities.DaysPerYear

	return p.SetConcurrencyParameters(ind)
}

// SetConcurrencyParameters draws the extra-relational flags and per-type maximums
// for the individual's concurrency property value.
func (p *Partnership) SetConcurrencyParameters(ind *entities.Individual) error {
	value := ind.Property(p.concurrency.PropertyName())

	mask, err := p.concurrency.ExtraRelationalMask(value, ind.Gender, ind.IsSuperSpreader())
	if err != nil {
		return fmt.Errorf("drawing extra-relational flags for %s: %w", ind.ID, err)
	}

	var maxes [entities.RelationshipTypeCount]int
	for _, t := range entities.RelationshipTypes {
		n, err := p.concurrency.MaxRelationships(value, ind.Gender, t)
		if err != nil {
			return fmt.Errorf("drawing %s maximum for %s: %w", t, ind.ID, err)
		}
		maxes[t] = n
	}

	if err := ind.SetConcurrency(mask, maxes); err != nil {
		return fmt.Errorf("setting concurrency for %s: %w", ind.ID, err)
	}
	return nil
}

// UpdateEligibility reports every relationship type the individual may seek to
// the society's eligibility statistics.
func (p *Partnership) UpdateEligibility(ind *entities.Individual) {
	for _, t := range entities.RelationshipTypes {
		if ind.AvailableForRelationship(t) {
			p.society.UpdateEligibility(t, ind, ind.ExtraRelationalAllowed(t))
		}
	}
}

// ConsiderRelationships runs the formation clock of one individual over dt and
// returns the number of formation requests queued with the society.
func (p *Partnership) ConsiderRelationships(ind *entities.Individual, dt float64) int {
	var rates [entities.RelationshipTypeCount]float64
	cumulative := 0.0
	maxType, maxRate := entities.RelationshipType(-1), 0.0
	for _, t := range entities.RelationshipTypes {
		if ind.AvailableForRelationship(t) {
			rates[t] = p.society.FormationRate(t, ind)
			cumulative += rates[t]
			if rates[t] > maxRate {
				maxType, maxRate = t, rates[t]
			}
		}
	}

	queued := 0
	elapsed := 0.0
	for cumulative > 0 && elapsed < dt {
		elapsed += p.rng.Exponential(cumulative)
		if elapsed > dt {
			break
		}

		t := p.pickType(rates, cumulative)
		p.society.Enqueue(t, ind)
		ind.Enqueue(t)
		queued++

		cumulative = 0
		for _, other := range entities.RelationshipTypes {
			if !ind.AvailableForRelationship(other) {
				rates[other] = 0
			}
			cumulative += rates[other]
		}
	}

	// A fresh debut that the clock did not queue joins its most likely type.
	if ind.EntersFormationNow() && maxType >= 0 {
		p.society.Enqueue(maxType, ind)
		ind.Enqueue(maxType)
		queued++
	}
	return queued
}

// pickType selects a type with probability proportional to its rate.
func (p *Partnership) pickType(rates [entities.RelationshipTypeCount]float64, cumulative float64) entities.RelationshipType {
	target := p.rng.Uniform() * cumulative
	last := entities.Transitory
	running := 0.0
	for _, t := range entities.RelationshipTypes {
		if rates[t] <= 0 {
			continue
		}
		last = t
		running += rates[t]
		if target < running {
			return t
		}
	}
	return last
}
