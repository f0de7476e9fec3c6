package entities

import (
	"fmt"
	"strconv"
)

// Relationship is a time-bounded partnership between one male and one female.
//
// Both partner ids are retained for the whole lifetime of the record. A partner
// that has left the node is marked absent instead of being dropped, so the same
// record is shared by every node registry that refers to it.
type Relationship struct {
	id        Suid
	relType   RelationshipType
	state     RelationshipState
	prevState RelationshipState
	reason    TerminationReason

	maleID       Suid
	femaleID     Suid
	maleAbsent   bool
	femaleAbsent bool
	maleSlot     int
	femaleSlot   int

	timer            float64
	duration         float64
	startTime        float64
	scheduledEndTime float64
	originalNodeID   Suid

	actProbabilities   []ActProbability
	totalCoitalActs    int
	coitalActsThisStep int
	condomActsThisStep int
	usingCondom        bool

	hasMigrated          bool
	migrationDestination Suid

	// openSide is the partner whose node has not yet seen the termination of a
	// relationship that ended while PAUSED.
	openSide Suid

	condomOverride *Sigmoid
	params         *RelationshipParameters
	updatedStep    int64
}

// NewRelationship builds a NORMAL relationship with both partners present.
// timer is the dissolution countdown in days.
func NewRelationship(
	id Suid,
	params *RelationshipParameters,
	maleID, femaleID Suid,
	maleSlot, femaleSlot int,
	timer, startTime float64,
	nodeID Suid,
) *Relationship {
	return &Relationship{
		id:               id,
		relType:          params.Type,
		state:            StateNormal,
		prevState:        StateNormal,
		maleID:           maleID,
		femaleID:         femaleID,
		maleSlot:         maleSlot,
		femaleSlot:       femaleSlot,
		timer:            timer,
		startTime:        startTime,
		scheduledEndTime: startTime + timer,
		originalNodeID:   nodeID,
		params:           params,
		updatedStep:      -1,
	}
}

func (r *Relationship) ID() Suid                             { return r.id }
func (r *Relationship) Type() RelationshipType               { return r.relType }
func (r *Relationship) State() RelationshipState             { return r.state }
func (r *Relationship) PreviousState() RelationshipState     { return r.prevState }
func (r *Relationship) TerminationReason() TerminationReason { return r.reason }
func (r *Relationship) MaleID() Suid                         { return r.maleID }
func (r *Relationship) FemaleID() Suid                       { return r.femaleID }
func (r *Relationship) MaleSlot() int                        { return r.maleSlot }
func (r *Relationship) FemaleSlot() int                      { return r.femaleSlot }
func (r *Relationship) Timer() float64                       { return r.timer }
func (r *Relationship) Duration() float64                    { return r.duration }
func (r *Relationship) StartTime() float64                   { return r.startTime }
func (r *Relationship) ScheduledEndTime() float64            { return r.scheduledEndTime }
func (r *Relationship) OriginalNodeID() Suid                 { return r.originalNodeID }
func (r *Relationship) TotalCoitalActs() int                 { return r.totalCoitalActs }
func (r *Relationship) CoitalActsThisStep() int              { return r.coitalActsThisStep }
func (r *Relationship) CondomActsThisStep() int              { return r.condomActsThisStep }
func (r *Relationship) UsingCondom() bool                    { return r.usingCondom }
func (r *Relationship) HasMigrated() bool                    { return r.hasMigrated }
func (r *Relationship) MigrationDestination() Suid           { return r.migrationDestination }
func (r *Relationship) Parameters() *RelationshipParameters  { return r.params }
func (r *Relationship) CondomOverride() *Sigmoid             { return r.condomOverride }
func (r *Relationship) OpenSide() Suid                       { return r.openSide }

// ActProbabilities returns the vector computed by the last consummation.
func (r *Relationship) ActProbabilities() []ActProbability {
	return r.actProbabilities
}

// PropertyKey names the transmission pool family of this relationship.
func (r *Relationship) PropertyKey() string {
	return "Relationship." + strconv.Itoa(r.maleSlot) + "-" + strconv.Itoa(r.femaleSlot)
}

// PropertyName is the pool member value of this relationship.
func (r *Relationship) PropertyName() string {
	return r.id.String()
}

// HasPartner reports whether id is one of the two partners.
func (r *Relationship) HasPartner(id Suid) bool {
	return id == r.maleID || id == r.femaleID
}

// PartnerOf returns the other partner of id.
func (r *Relationship) PartnerOf(id Suid) (Suid, error) {
	switch id {
	case r.maleID:
		return r.femaleID, nil
	case r.femaleID:
		return r.maleID, nil
	default:
		return NilSuid, fmt.Errorf("individual %s in relationship %s: %w", id, r.id, ErrUnknownPartner)
	}
}

// SlotOf returns the slot the relationship occupies in id's bitmask.
func (r *Relationship) SlotOf(id Suid) (int, error) {
	switch id {
	case r.maleID:
		return r.maleSlot, nil
	case r.femaleID:
		return r.femaleSlot, nil
	default:
		return 0, fmt.Errorf("individual %s in relationship %s: %w", id, r.id, ErrUnknownPartner)
	}
}

// IsAbsent reports whether partner id is currently marked absent.
func (r *Relationship) IsAbsent(id Suid) bool {
	switch id {
	case r.maleID:
		return r.maleAbsent
	case r.femaleID:
		return r.femaleAbsent
	}
	return false
}

// PresentPartners returns the ids of the partners that are not absent.
func (r *Relationship) PresentPartners() []Suid {
	present := make([]Suid, 0, 2)
	if !r.maleAbsent {
		present = append(present, r.maleID)
	}
	if !r.femaleAbsent {
		present = append(present, r.femaleID)
	}
	return present
}

// SetParameters rebinds the shared per-type parameters, e.g. after a checkpoint load.
func (r *Relationship) SetParameters(params *RelationshipParameters) {
	r.params = params
}

// SetCondomOverride replaces the type's condom-usage curve for this relationship only.
func (r *Relationship) SetCondomOverride(s *Sigmoid) {
	r.condomOverride = s
}

// MarkUpdated stamps the record for step and reports whether it had not been stamped yet.
func (r *Relationship) MarkUpdated(step int64) bool {
	if r.updatedStep == step {
		return false
	}
	r.updatedStep = step
	return true
}

// Update advances the dissolution clock by dt and resets the per-step counters.
// It returns false once the relationship has reached its scheduled end.
func (r *Relationship) Update(dt float64) bool {
	r.coitalActsThisStep = 0
	r.condomActsThisStep = 0
	r.usingCondom = false
	r.duration += dt
	r.timer -= dt
	return r.timer > 0
}

// RecordActs accumulates the acts of one consummation.
func (r *Relationship) RecordActs(acts, condomActs int, vector []ActProbability) {
	r.totalCoitalActs += acts
	r.coitalActsThisStep += acts
	r.condomActsThisStep += condomActs
	r.usingCondom = condomActs > 0
	r.actProbabilities = vector
}

// Pause marks the departing partner absent. The other partner keeps the relationship.
// Pausing a relationship that is already PAUSED keeps the absent side as it is:
// the partners are still apart.
func (r *Relationship) Pause(departee, destination Suid) error {
	if r.state != StateNormal && r.state != StatePaused {
		return fmt.Errorf("pausing %s relationship %s: %w", r.state, r.id, ErrIllegalTransition)
	}
	if !r.HasPartner(departee) {
		return fmt.Errorf("pausing relationship %s for %s: %w", r.id, departee, ErrUnknownPartner)
	}
	if r.state == StateNormal {
		if departee == r.maleID {
			r.maleAbsent = true
		} else {
			r.femaleAbsent = true
		}
	}
	r.prevState = r.state
	r.state = StatePaused
	r.migrationDestination = destination
	return nil
}

// Migrate moves the couple together: both sides become absent until they resume at the destination.
func (r *Relationship) Migrate(destination Suid) error {
	switch r.state {
	case StateNormal:
		r.prevState = r.state
		r.state = StateMigrating
	case StateMigrating:
	default:
		return fmt.Errorf("migrating %s relationship %s: %w", r.state, r.id, ErrIllegalTransition)
	}
	r.maleAbsent = true
	r.femaleAbsent = true
	r.hasMigrated = true
	r.migrationDestination = destination
	return nil
}

// Resume re-attaches the returning partner. A migrating couple clears one side
// per call. A paused relationship keeps its absent side until coLocated reports
// that both partners share a node again, and then becomes NORMAL.
func (r *Relationship) Resume(returnee Suid, coLocated bool) error {
	if r.state == StateTerminated {
		return fmt.Errorf("resuming relationship %s: %w", r.id, ErrRelationshipTerminated)
	}
	if !r.HasPartner(returnee) {
		return fmt.Errorf("resuming relationship %s for %s: %w", r.id, returnee, ErrUnknownPartner)
	}
	r.migrationDestination = NilSuid
	switch {
	case r.state == StateMigrating && returnee == r.maleID:
		r.maleAbsent = false
	case r.state == StateMigrating:
		r.femaleAbsent = false
	case coLocated:
		r.maleAbsent = false
		r.femaleAbsent = false
	}
	if r.state != StateNormal && !r.maleAbsent && !r.femaleAbsent && coLocated {
		r.prevState = r.state
		r.state = StateNormal
	}
	return nil
}

// Terminate ends the relationship. It reports false when it had already ended.
func (r *Relationship) Terminate(reason TerminationReason) bool {
	if r.state == StateTerminated {
		return false
	}
	if r.state == StateMigrating {
		r.maleAbsent = false
		r.femaleAbsent = false
	}
	r.prevState = r.state
	r.state = StateTerminated
	r.reason = reason
	return true
}

// KeepSideOpen records that partner id lives in a node that still has to see
// the termination through the terminated set.
func (r *Relationship) KeepSideOpen(id Suid) error {
	if r.state != StateTerminated {
		return fmt.Errorf("keeping side of %s relationship %s open: %w", r.state, r.id, ErrIllegalTransition)
	}
	if !r.HasPartner(id) {
		return fmt.Errorf("keeping side of relationship %s open for %s: %w", r.id, id, ErrUnknownPartner)
	}
	r.openSide = id
	return nil
}

// FinishSide ends the open side of a terminated relationship with reason.
// It reports false when no side was open.
func (r *Relationship) FinishSide(reason TerminationReason) bool {
	if r.state != StateTerminated || r.openSide == NilSuid {
		return false
	}
	r.openSide = NilSuid
	r.reason = reason
	return true
}

// IsDiscordant reports whether exactly one partner is infected.
func (r *Relationship) IsDiscordant(maleInfected, femaleInfected bool) bool {
	return maleInfected != femaleInfected
}

// MigrationAction selects what happens to the relationship when a partner migrates.
// draw is consulted only when the type has more than one configured action.
func (r *Relationship) MigrationAction(draw func() float64) (MigrationAction, error) {
	switch r.state {
	case StatePaused:
		return ActionPause, nil
	case StateMigrating:
		return ActionMigrate, nil
	case StateTerminated:
		return 0, fmt.Errorf("migration action for relationship %s: %w", r.id, ErrRelationshipTerminated)
	}
	if r.params == nil || len(r.params.MigrationActions) == 0 {
		return 0, fmt.Errorf("relationship %s: %w", r.id, ErrMigrationTable)
	}
	if len(r.params.MigrationActions) == 1 {
		return r.params.MigrationActions[0], nil
	}
	u := draw()
	for i, c := range r.params.MigrationActionsCDF {
		if c >= u {
			return r.params.MigrationActions[i], nil
		}
	}
	return 0, fmt.Errorf("relationship %s: draw %v: %w", r.id, u, ErrMigrationTable)
}
