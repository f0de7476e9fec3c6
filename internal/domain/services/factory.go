package services

import (
	"fmt"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
)

// RelationshipFactory forms relationships between matched individuals.
type RelationshipFactory struct {
	params *entities.NetworkParameters
	ids    *SuidGenerator
	arena  *Arena
	rng    ports.Random
}

// NewRelationshipFactory creates a factory that draws ids from ids and stores
// every new record in arena.
func NewRelationshipFactory(params *entities.NetworkParameters, ids *SuidGenerator, arena *Arena, rng ports.Random) *RelationshipFactory {
	return &RelationshipFactory{params: params, ids: ids, arena: arena, rng: rng}
}

// Create forms a relationship of type t in nodeID at time now, allocating a slot
// in each partner's bitmask and linking both partners.
func (f *RelationshipFactory) Create(
	t entities.RelationshipType,
	male, female *entities.Individual,
	nodeID entities.Suid,
	now float64,
) (*entities.Relationship, error) {
	if male.Gender != entities.Male || female.Gender != entities.Female {
		return nil, fmt.Errorf("forming %s relationship between %s and %s: partners must be one male and one female", t, male.ID, female.ID)
	}
	maleSlot, err := male.OpenRelationshipSlot()
	if err != nil {
		return nil, fmt.Errorf("allocating slot: %w", err)
	}
	femaleSlot, err := female.OpenRelationshipSlot()
	if err != nil {
		return nil, fmt.Errorf("allocating slot: %w", err)
	}

	params := f.params.ForType(t)
	timer := entities.DaysPerYear * f.rng.Weibull(params.DurationScale, params.DurationHeterogeneity)
	rel := entities.NewRelationship(f.ids.Next(), params, male.ID, female.ID, maleSlot, femaleSlot, timer, now, nodeID)

	cooldown := f.params.MinDaysBetweenAddingRelationships
	maleQueued, maleCooldown := male.Queued(t) > 0, male.Cooldown()
	if err := male.AddRelationship(rel, cooldown); err != nil {
		return nil, fmt.Errorf("linking male partner: %w", err)
	}
	if err := female.AddRelationship(rel, cooldown); err != nil {
		male.UndoAddRelationship(rel, maleQueued, maleCooldown)
		return nil, fmt.Errorf("linking female partner: %w", err)
	}
	f.arena.Insert(rel)
	return rel, nil
}
