package services

import (
	"fmt"
	"math"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
)

// ConcurrencyConfiguration implements ports.ConcurrencyConfig from per-property-value limits.
type ConcurrencyConfiguration struct {
	propertyName      string
	probSuperSpreader float64
	byValue           map[string]*entities.ConcurrencyParameters
	rng               ports.Random
}

// NewConcurrencyConfiguration validates byValue and builds the configuration.
// With the property name entities.DefaultPropertyValue every individual uses the
// entities.DefaultPropertyValue entry.
func NewConcurrencyConfiguration(
	propertyName string,
	probSuperSpreader float64,
	byValue map[string]*entities.ConcurrencyParameters,
	rng ports.Random,
) (*ConcurrencyConfiguration, error) {
	if probSuperSpreader < 0 || probSuperSpreader > 1 {
		return nil, fmt.Errorf("super-spreader probability %v: %w", probSuperSpreader, entities.ErrConcurrencyRange)
	}
	if len(byValue) == 0 {
		return nil, fmt.Errorf("no concurrency parameters: %w", entities.ErrConcurrencyRange)
	}
	for value, params := range byValue {
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("concurrency parameters for %q: %w", value, err)
		}
	}
	if propertyName == "" {
		propertyName = entities.DefaultPropertyValue
	}
	return &ConcurrencyConfiguration{
		propertyName:      propertyName,
		probSuperSpreader: probSuperSpreader,
		byValue:           byValue,
		rng:               rng,
	}, nil
}

// PropertyName returns the individual property that selects the limits.
func (c *ConcurrencyConfiguration) PropertyName() string { return c.propertyName }

// ProbSuperSpreader returns the super-spreader probability.
func (c *ConcurrencyConfiguration) ProbSuperSpreader() float64 { return c.probSuperSpreader }

// ExtraRelationalMask draws the extra-relational flag of every type. Super-spreaders
// get every flag. In correlated mode the draw stops at the first failure.
func (c *ConcurrencyConfiguration) ExtraRelationalMask(propertyValue string, gender entities.Gender, superSpreader bool) (uint8, error) {
	var mask uint8
	if superSpreader {
		for _, t := range entities.RelationshipTypes {
			mask |= 1 << uint(t)
		}
		return mask, nil
	}
	params, err := c.lookup(propertyValue)
	if err != nil {
		return 0, err
	}
	order := params.TypeOrder
	if len(order) == 0 {
		order = entities.RelationshipTypes[:]
	}
	for _, t := range order {
		prob := params.Types[t].ProbExtraFemale
		if gender == entities.Male {
			prob = params.Types[t].ProbExtraMale
		}
		if prob > 0 && (prob >= 1 || c.rng.Uniform() < prob) {
			mask |= 1 << uint(t)
		} else if params.FlagType == entities.FlagsCorrelated {
			return mask, nil
		}
	}
	return mask, nil
}

// MaxRelationships returns the integer part of the configured maximum plus one
// with probability equal to the fractional part.
func (c *ConcurrencyConfiguration) MaxRelationships(propertyValue string, gender entities.Gender, t entities.RelationshipType) (int, error) {
	params, err := c.lookup(propertyValue)
	if err != nil {
		return 0, err
	}
	maxRels := params.Types[t].MaxFemale
	if gender == entities.Male {
		maxRels = params.Types[t].MaxMale
	}
	whole, frac := math.Modf(maxRels)
	n := int(whole)
	if frac > 0 && c.rng.Uniform() < frac {
		n++
	}
	return n, nil
}

func (c *ConcurrencyConfiguration) lookup(propertyValue string) (*entities.ConcurrencyParameters, error) {
	params, ok := c.byValue[propertyValue]
	if !ok {
		return nil, fmt.Errorf("no concurrency parameters for property value %q: %w", propertyValue, entities.ErrConcurrencyRange)
	}
	return params, nil
}
