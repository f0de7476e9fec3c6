package services

import (
	"fmt"
	"math"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
)

// minConsummationAge is the age, in days, below which a partner has no coital acts.
const minConsummationAge = 12 * entities.DaysPerYear

// Consummator draws the coital acts of a relationship for one step and deposits
// the transmission risk of discordant couples into the relationship's pool.
type Consummator struct {
	params     *entities.NetworkParameters
	rng        ports.Random
	population ports.Population
	manager    *RelationshipManager
	groups     *RelationshipGroups
}

// NewConsummator creates the consummation service of one node.
func NewConsummator(
	params *entities.NetworkParameters,
	rng ports.Random,
	population ports.Population,
	manager *RelationshipManager,
	groups *RelationshipGroups,
) *Consummator {
	return &Consummator{
		params:     params,
		rng:        rng,
		population: population,
		manager:    manager,
		groups:     groups,
	}
}

// Consummate draws this step's acts of rel. year is the simulated calendar year
// used by the condom-usage curves. Relationships that are not NORMAL, or with a
// partner younger than twelve, are skipped.
func (c *Consummator) Consummate(rel *entities.Relationship, dt, year float64) error {
	if rel.State() != entities.StateNormal {
		return nil
	}
	params := rel.Parameters()
	if params == nil {
		return fmt.Errorf("consummating relationship %s: parameters not bound", rel.ID())
	}
	male, ok := c.population.Individual(rel.MaleID())
	if !ok {
		return fmt.Errorf("consummating relationship %s: male partner %s not found", rel.ID(), rel.MaleID())
	}
	female, ok := c.population.Individual(rel.FemaleID())
	if !ok {
		return fmt.Errorf("consummating relationship %s: female partner %s not found", rel.ID(), rel.FemaleID())
	}
	if male.Age < minConsummationAge || female.Age < minConsummationAge {
		return nil
	}

	concurrent := max(male.RelationshipCount(), female.RelationshipCount())
	attenuation := c.params.CoitalDilution.Factor(concurrent)
	rateTime := dt * attenuation * params.CoitalActRate

	acts := c.rng.Poisson(rateTime)
	if rel.TotalCoitalActs() == 0 && acts == 0 && rateTime > 0 {
		acts = 1
	}
	if acts == 0 {
		return nil
	}

	condomActs := c.rng.Binomial(acts, c.manager.CondomProbability(rel, year))
	male.TotalCoitalActs += acts
	female.TotalCoitalActs += acts

	if !rel.IsDiscordant(male.Infected, female.Infected) {
		rel.RecordActs(acts, condomActs, nil)
		c.manager.ConsummateRelationship(rel, acts, condomActs)
		return nil
	}

	infected, uninfected := male, female
	if female.Infected {
		infected, uninfected = female, male
	}
	mult := math.Max(c.transmissionMultiplier(infected), c.acquisitionMultiplier(uninfected))

	var vector []entities.ActProbability
	if condomActs > 0 {
		vector = append(vector, entities.ActProbability{
			NumActs:    condomActs,
			ProbPerAct: (1 - c.params.CondomTransmissionBlockingProbability) * mult,
		})
	}
	if unprotected := acts - condomActs; unprotected > 0 {
		vector = append(vector, entities.ActProbability{NumActs: unprotected, ProbPerAct: mult})
	}

	rel.RecordActs(acts, condomActs, vector)
	c.manager.ConsummateRelationship(rel, acts, condomActs)
	return c.shed(infected, rel, vector)
}

// shed deposits the infected partner's per-act transmission probability into
// the relationship's pool. Relationships without a current pool are skipped.
func (c *Consummator) shed(infected *entities.Individual, rel *entities.Relationship, vector []entities.ActProbability) error {
	pool, ok := c.groups.GetGroupMembership(rel)
	if !ok {
		return nil
	}
	base := infected.Infectiousness * infected.TransmissionReduction
	for _, entry := range vector {
		for i := 0; i < entry.NumActs; i++ {
			if _, err := c.groups.DepositContagion(infected.Strain, entry.ProbPerAct*base, pool); err != nil {
				return fmt.Errorf("depositing for relationship %s: %w", rel.ID(), err)
			}
		}
	}
	return nil
}

func (c *Consummator) transmissionMultiplier(ind *entities.Individual) float64 {
	if ind.HasCoInfection && c.params.CoInfectionTransmissionMultiplier > 0 {
		return c.params.CoInfectionTransmissionMultiplier
	}
	return 1.0
}

func (c *Consummator) acquisitionMultiplier(ind *entities.Individual) float64 {
	if ind.HasCoInfection && c.params.CoInfectionAcquisitionMultiplier > 0 {
		return c.params.CoInfectionAcquisitionMultiplier
	}
	return 1.0
}
