package entities

import (
	"fmt"
	"math"
)

// Sigmoid is a logistic curve over the simulated calendar year.
type Sigmoid struct {
	Early   float64 `json:"early" yaml:"early"`
	Late    float64 `json:"late" yaml:"late"`
	MidYear float64 `json:"mid_year" yaml:"mid_year"`
	Rate    float64 `json:"rate" yaml:"rate"`
}

// At evaluates the curve at the given year.
func (s Sigmoid) At(year float64) float64 {
	return s.Early + (s.Late-s.Early)/(1+math.Exp(-s.Rate*(year-s.MidYear)))
}

// RelationshipParameters are the per-type parameters shared by every relationship of that type.
type RelationshipParameters struct {
	Type RelationshipType

	// Duration is drawn as DaysPerYear * Weibull(DurationScale, DurationHeterogeneity).
	DurationScale         float64
	DurationHeterogeneity float64

	// CoitalActRate is the expected number of acts per day.
	CoitalActRate float64

	CondomUsage Sigmoid

	// FormationRate is the per-day rate at which an eligible individual seeks this type.
	FormationRate float64

	MigrationActions    []MigrationAction
	MigrationActionsCDF []float64
}

// Validate checks the migration table.
func (p *RelationshipParameters) Validate() error {
	if len(p.MigrationActions) == 0 {
		return fmt.Errorf("%s: %w: no migration actions", p.Type, ErrMigrationTable)
	}
	if len(p.MigrationActions) != len(p.MigrationActionsCDF) {
		return fmt.Errorf("%s: %w: %d actions but %d probabilities",
			p.Type, ErrMigrationTable, len(p.MigrationActions), len(p.MigrationActionsCDF))
	}
	prev := 0.0
	for i, c := range p.MigrationActionsCDF {
		if c < prev || c > 1 {
			return fmt.Errorf("%s: %w: cumulative probability %d is %v", p.Type, ErrMigrationTable, i, c)
		}
		prev = c
	}
	if len(p.MigrationActionsCDF) > 1 && prev < 1 {
		return fmt.Errorf("%s: %w: probabilities sum to %v", p.Type, ErrMigrationTable, prev)
	}
	return nil
}

// CoitalDilution attenuates coital frequency by the partners' concurrent relationship count.
type CoitalDilution struct {
	Enabled          bool
	TwoPartners      float64
	ThreePartners    float64
	FourPlusPartners float64
}

// Factor returns the attenuation for the larger of the two partners' relationship counts.
func (d CoitalDilution) Factor(maxRelationships int) float64 {
	if !d.Enabled {
		return 1.0
	}
	switch {
	case maxRelationships <= 1:
		return 1.0
	case maxRelationships == 2:
		return d.TwoPartners
	case maxRelationships == 3:
		return d.ThreePartners
	default:
		return d.FourPlusPartners
	}
}

// DebutAge parameterises the Weibull draw of sexual debut age, in years.
type DebutAge struct {
	MaleScale           float64
	MaleHeterogeneity   float64
	FemaleScale         float64
	FemaleHeterogeneity float64
	MinimumAgeYears     float64
}

// NetworkParameters is the immutable model configuration shared by reference.
type NetworkParameters struct {
	Relationships [RelationshipTypeCount]RelationshipParameters

	CoitalDilution                        CoitalDilution
	CondomTransmissionBlockingProbability float64
	CoInfectionAcquisitionMultiplier      float64
	CoInfectionTransmissionMultiplier     float64
	MinDaysBetweenAddingRelationships     float64
	DebutAge                              DebutAge
}

// ForType returns the parameters of a relationship type.
func (n *NetworkParameters) ForType(t RelationshipType) *RelationshipParameters {
	return &n.Relationships[t]
}

// ExtraRelationalFlagType selects how the per-type extra-relational flags are drawn.
type ExtraRelationalFlagType int

const (
	// FlagsIndependent draws each type's flag independently.
	FlagsIndependent ExtraRelationalFlagType = iota
	// FlagsCorrelated draws in a fixed type order and stops at the first failure.
	FlagsCorrelated
)

// TypeConcurrency holds the concurrency limits of one relationship type.
type TypeConcurrency struct {
	ProbExtraMale   float64
	ProbExtraFemale float64
	MaxMale         float64
	MaxFemale       float64
}

// ConcurrencyParameters holds the limits for one value of the concurrency property.
type ConcurrencyParameters struct {
	FlagType  ExtraRelationalFlagType
	TypeOrder []RelationshipType
	Types     [RelationshipTypeCount]TypeConcurrency
}

// Validate checks probabilities, maximum ranges and the correlated type order.
func (c *ConcurrencyParameters) Validate() error {
	for _, t := range RelationshipTypes {
		tc := c.Types[t]
		if tc.ProbExtraMale < 0 || tc.ProbExtraMale > 1 || tc.ProbExtraFemale < 0 || tc.ProbExtraFemale > 1 {
			return fmt.Errorf("%s: %w: extra-relational probability outside [0,1]", t, ErrConcurrencyRange)
		}
		if tc.MaxMale < 0 || tc.MaxMale > MaxSlots || tc.MaxFemale < 0 || tc.MaxFemale > MaxSlots {
			return fmt.Errorf("%s: %w: maximum outside [0,%d]", t, ErrConcurrencyRange, MaxSlots)
		}
	}
	var sumMale, sumFemale float64
	for _, t := range RelationshipTypes {
		sumMale += math.Ceil(c.Types[t].MaxMale)
		sumFemale += math.Ceil(c.Types[t].MaxFemale)
	}
	if sumMale > MaxSlots || sumFemale > MaxSlots {
		return fmt.Errorf("%w: summed maximums exceed %d", ErrConcurrencyRange, MaxSlots)
	}
	if c.FlagType == FlagsCorrelated {
		if len(c.TypeOrder) != RelationshipTypeCount {
			return fmt.Errorf("%w: correlated type order must list all %d types", ErrConcurrencyRange, RelationshipTypeCount)
		}
		var seen [RelationshipTypeCount]bool
		for _, t := range c.TypeOrder {
			if !t.Valid() || seen[t] {
				return fmt.Errorf("%w: duplicate or invalid type %s in correlated order", ErrConcurrencyRange, t)
			}
			seen[t] = true
		}
	}
	return nil
}

// ActProbability is one entry of an act-probability vector.
type ActProbability struct {
	NumActs    int     `json:"num_acts"`
	ProbPerAct float64 `json:"prob_per_act"`
}

// Strain identifies the infecting clade and genome.
type Strain struct {
	CladeID  int `json:"clade_id"`
	GenomeID int `json:"genome_id"`
}

// ActContagion is the exposure handed to the infection model for one pool.
type ActContagion struct {
	Strain         Strain
	Acts           []ActProbability
	DepositorID    Suid
	RelationshipID Suid
	PoolIndex      int
}

// ProbabilityOfInfection returns 1 - prod (1-p)^n over all entries.
func (c ActContagion) ProbabilityOfInfection() float64 {
	escape := 1.0
	for _, a := range c.Acts {
		escape *= math.Pow(1-a.ProbPerAct, float64(a.NumActs))
	}
	return 1 - escape
}
