package entities

import (
	"fmt"
	"math/bits"
)

// SuperSpreaderFlag is the top bit of the concurrency flag byte.
const SuperSpreaderFlag uint8 = 0x80

// DefaultPropertyValue is used when an individual does not carry the concurrency property.
const DefaultPropertyValue = "NONE"

// Individual is a person together with their partnership state.
type Individual struct {
	ID     Suid
	Gender Gender
	// Age in days.
	Age    float64
	NodeID Suid

	// Properties holds individual property values such as the concurrency risk group.
	Properties map[string]string

	Infected       bool
	InfectedBy     Suid
	Strain         Strain
	Infectiousness float64
	HasCoInfection bool
	// AcquisitionReduction and TransmissionReduction multiply per-act probabilities (1 = no effect).
	AcquisitionReduction  float64
	TransmissionReduction float64

	DebutAge        float64
	TotalCoitalActs int

	queued    [RelationshipTypeCount]int
	active    [RelationshipTypeCount]int
	lifetime  [RelationshipTypeCount]int
	maxByType [RelationshipTypeCount]int

	slots    uint64
	flags    uint8
	cooldown float64

	// enterFormationNow queues the individual for its highest-rate type on the
	// next formation pass even when the clock does not fire.
	enterFormationNow bool

	relationships []Suid
}

// NewIndividual returns an individual with neutral intervention multipliers.
func NewIndividual(id Suid, gender Gender, ageDays float64, nodeID Suid) *Individual {
	return &Individual{
		ID:                    id,
		Gender:                gender,
		Age:                   ageDays,
		NodeID:                nodeID,
		Properties:            make(map[string]string),
		AcquisitionReduction:  1.0,
		TransmissionReduction: 1.0,
	}
}

// Property returns the value of an individual property, or DefaultPropertyValue.
func (i *Individual) Property(name string) string {
	if v, ok := i.Properties[name]; ok && v != "" {
		return v
	}
	return DefaultPropertyValue
}

// Infect marks the individual infected by the given partner.
func (i *Individual) Infect(strain Strain, by Suid, infectiousness float64) {
	i.Infected = true
	i.InfectedBy = by
	i.Strain = strain
	i.Infectiousness = infectiousness
}

// Flags returns the concurrency flag byte.
func (i *Individual) Flags() uint8 { return i.flags }

// IsSuperSpreader reports whether the super-spreader bit is set.
func (i *Individual) IsSuperSpreader() bool { return i.flags&SuperSpreaderFlag != 0 }

// SetSuperSpreader sets or clears the super-spreader bit.
func (i *Individual) SetSuperSpreader(on bool) {
	if on {
		i.flags |= SuperSpreaderFlag
	} else {
		i.flags &^= SuperSpreaderFlag
	}
}

// ExtraRelationalAllowed reports whether t may be held alongside other types.
func (i *Individual) ExtraRelationalAllowed(t RelationshipType) bool {
	return i.flags&(1<<uint(t)) != 0
}

// SetConcurrency installs the extra-relational mask and per-type maximums.
// The super-spreader bit is preserved.
func (i *Individual) SetConcurrency(extraMask uint8, maxByType [RelationshipTypeCount]int) error {
	total := 0
	for _, t := range RelationshipTypes {
		if maxByType[t] < 0 || maxByType[t] > MaxSlots {
			return fmt.Errorf("%s maximum %d: %w", t, maxByType[t], ErrConcurrencyRange)
		}
		total += maxByType[t]
	}
	if total > MaxSlots {
		return fmt.Errorf("summed maximum %d exceeds %d: %w", total, MaxSlots, ErrConcurrencyRange)
	}
	i.flags = (i.flags & SuperSpreaderFlag) | (extraMask &^ SuperSpreaderFlag)
	i.maxByType = maxByType
	return nil
}

// MaxRelationships returns the per-type maximum.
func (i *Individual) MaxRelationships(t RelationshipType) int { return i.maxByType[t] }

// Queued returns the number of pending formation requests of type t.
func (i *Individual) Queued(t RelationshipType) int { return i.queued[t] }

// Active returns the number of current relationships of type t.
func (i *Individual) Active(t RelationshipType) int { return i.active[t] }

// Lifetime returns the number of relationships of type t ever formed.
func (i *Individual) Lifetime(t RelationshipType) int { return i.lifetime[t] }

// TotalActive returns the number of current relationships of all types.
func (i *Individual) TotalActive() int {
	n := 0
	for _, c := range i.active {
		n += c
	}
	return n
}

// Slots returns the slot bitmask.
func (i *Individual) Slots() uint64 { return i.slots }

// Cooldown returns the remaining days before another relationship may be sought.
func (i *Individual) Cooldown() float64 { return i.cooldown }

// TickCooldown decrements the cooldown timer.
func (i *Individual) TickCooldown(dt float64) {
	if i.cooldown > 0 {
		i.cooldown -= dt
	}
}

// Relationships returns the ids of the individual's relationships in formation order.
func (i *Individual) Relationships() []Suid {
	return i.relationships
}

// RelationshipCount returns the number of relationships currently held.
func (i *Individual) RelationshipCount() int { return len(i.relationships) }

// AvailableForRelationship reports whether the individual may seek a relationship of type t.
func (i *Individual) AvailableForRelationship(t RelationshipType) bool {
	if i.Age < i.DebutAge || i.cooldown > 0 {
		return false
	}
	total := 0
	for _, other := range RelationshipTypes {
		count := i.active[other] + i.queued[other]
		total += count
		if count > 0 && !i.ExtraRelationalAllowed(other) {
			return false
		}
	}
	if i.active[t]+i.queued[t] >= i.maxByType[t] {
		return false
	}
	return total < MaxSlots
}

// Enqueue records a pending formation request.
func (i *Individual) Enqueue(t RelationshipType) {
	i.queued[t]++
	i.enterFormationNow = false
}

// SetDebutAge replaces the debut age. An individual already past the new debut
// age enters formation on the next step. It reports whether that is the case.
func (i *Individual) SetDebutAge(ageDays float64) bool {
	i.DebutAge = ageDays
	if i.Age >= ageDays {
		i.enterFormationNow = true
	}
	return i.enterFormationNow
}

// EntersFormationNow reports whether a debut is waiting for its first formation request.
func (i *Individual) EntersFormationNow() bool { return i.enterFormationNow }

// Dequeue cancels a pending formation request.
func (i *Individual) Dequeue(t RelationshipType) {
	if i.queued[t] > 0 {
		i.queued[t]--
	}
}

// ClearQueued cancels every pending formation request.
func (i *Individual) ClearQueued() {
	i.queued = [RelationshipTypeCount]int{}
}

// OpenRelationshipSlot returns the lowest unused slot.
func (i *Individual) OpenRelationshipSlot() (int, error) {
	free := ^i.slots & (1<<MaxSlots - 1)
	if free == 0 {
		return 0, fmt.Errorf("individual %s: %w", i.ID, ErrSlotsExhausted)
	}
	return bits.TrailingZeros64(free), nil
}

// AddRelationship links a newly formed or immigrating relationship.
// cooldown is the number of days before another relationship may be sought.
func (i *Individual) AddRelationship(rel *Relationship, cooldown float64) error {
	slot, err := rel.SlotOf(i.ID)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= MaxSlots {
		return fmt.Errorf("individual %s: slot %d: %w", i.ID, slot, ErrSlotsExhausted)
	}
	bit := uint64(1) << uint(slot)
	if i.slots&bit != 0 {
		return fmt.Errorf("individual %s: slot %d already in use by another relationship", i.ID, slot)
	}
	t := rel.Type()
	i.slots |= bit
	if i.queued[t] > 0 {
		i.queued[t]--
	}
	i.active[t]++
	i.lifetime[t]++
	i.cooldown = cooldown
	i.relationships = append(i.relationships, rel.ID())
	return nil
}

// RemoveRelationship unlinks a relationship and frees its slot.
// It reports false when the relationship was not linked.
func (i *Individual) RemoveRelationship(rel *Relationship) bool {
	idx := -1
	for k, id := range i.relationships {
		if id == rel.ID() {
			idx = k
			break
		}
	}
	if idx < 0 {
		return false
	}
	i.relationships = append(i.relationships[:idx], i.relationships[idx+1:]...)
	if slot, err := rel.SlotOf(i.ID); err == nil {
		i.slots &^= uint64(1) << uint(slot)
	}
	if i.active[rel.Type()] > 0 {
		i.active[rel.Type()]--
	}
	i.cooldown = 0
	return true
}

// UndoAddRelationship reverts AddRelationship for a relationship that could not
// be completed. requeue restores the pending request consumed by the link and
// cooldown the timer that was running before it.
func (i *Individual) UndoAddRelationship(rel *Relationship, requeue bool, cooldown float64) bool {
	if !i.RemoveRelationship(rel) {
		return false
	}
	t := rel.Type()
	if i.lifetime[t] > 0 {
		i.lifetime[t]--
	}
	if requeue {
		i.queued[t]++
	}
	i.cooldown = cooldown
	return true
}

// HasRelationshipWith reports whether any current relationship links the individual to partner.
func (i *Individual) HasRelationshipWith(partner Suid, lookup func(Suid) (*Relationship, bool)) bool {
	for _, id := range i.relationships {
		if rel, ok := lookup(id); ok && rel.HasPartner(partner) {
			return true
		}
	}
	return false
}
