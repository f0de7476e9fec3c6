package entities

// RelationshipCheckpoint is the serialized form of a relationship.
// Live references (manager, parameters, partner objects) are not part of it.
type RelationshipCheckpoint struct {
	ID                   Suid              `json:"id"`
	Type                 RelationshipType  `json:"type"`
	State                RelationshipState `json:"state"`
	PreviousState        RelationshipState `json:"previous_state"`
	TerminationReason    TerminationReason `json:"termination_reason"`
	MaleID               Suid              `json:"male_id"`
	FemaleID             Suid              `json:"female_id"`
	MaleAbsent           bool              `json:"male_absent"`
	FemaleAbsent         bool              `json:"female_absent"`
	MaleSlot             int               `json:"male_slot"`
	FemaleSlot           int               `json:"female_slot"`
	Timer                float64           `json:"timer"`
	Duration             float64           `json:"duration"`
	StartTime            float64           `json:"start_time"`
	ScheduledEndTime     float64           `json:"scheduled_end_time"`
	OriginalNodeID       Suid              `json:"original_node_id"`
	PropertyKey          string            `json:"property_key"`
	PropertyName         string            `json:"property_name"`
	ActProbabilities     []ActProbability  `json:"act_probabilities,omitempty"`
	UsingCondom          bool              `json:"using_condom"`
	TotalCoitalActs      int               `json:"total_coital_acts"`
	CoitalActsThisStep   int               `json:"coital_acts_this_step"`
	CondomActsThisStep   int               `json:"condom_acts_this_step"`
	HasMigrated          bool              `json:"has_migrated"`
	MigrationDestination Suid              `json:"migration_destination"`
	OpenSide             Suid              `json:"open_side,omitempty"`
	CondomOverride       *Sigmoid          `json:"condom_override,omitempty"`
}

// Checkpoint captures the relationship's serializable state.
func (r *Relationship) Checkpoint() RelationshipCheckpoint {
	var vec []ActProbability
	if len(r.actProbabilities) > 0 {
		vec = append(vec, r.actProbabilities...)
	}
	return RelationshipCheckpoint{
		ID:                   r.id,
		Type:                 r.relType,
		State:                r.state,
		PreviousState:        r.prevState,
		TerminationReason:    r.reason,
		MaleID:               r.maleID,
		FemaleID:             r.femaleID,
		MaleAbsent:           r.maleAbsent,
		FemaleAbsent:         r.femaleAbsent,
		MaleSlot:             r.maleSlot,
		FemaleSlot:           r.femaleSlot,
		Timer:                r.timer,
		Duration:             r.duration,
		StartTime:            r.startTime,
		ScheduledEndTime:     r.scheduledEndTime,
		OriginalNodeID:       r.originalNodeID,
		PropertyKey:          r.PropertyKey(),
		PropertyName:         r.PropertyName(),
		ActProbabilities:     vec,
		UsingCondom:          r.usingCondom,
		TotalCoitalActs:      r.totalCoitalActs,
		CoitalActsThisStep:   r.coitalActsThisStep,
		CondomActsThisStep:   r.condomActsThisStep,
		HasMigrated:          r.hasMigrated,
		MigrationDestination: r.migrationDestination,
		OpenSide:             r.openSide,
		CondomOverride:       r.condomOverride,
	}
}

// RelationshipFromCheckpoint rebuilds a relationship. The caller must rebind parameters
// with SetParameters before the relationship is updated or consummated.
func RelationshipFromCheckpoint(c RelationshipCheckpoint) *Relationship {
	return &Relationship{
		id:                   c.ID,
		relType:              c.Type,
		state:                c.State,
		prevState:            c.PreviousState,
		reason:               c.TerminationReason,
		maleID:               c.MaleID,
		femaleID:             c.FemaleID,
		maleAbsent:           c.MaleAbsent,
		femaleAbsent:         c.FemaleAbsent,
		maleSlot:             c.MaleSlot,
		femaleSlot:           c.FemaleSlot,
		timer:                c.Timer,
		duration:             c.Duration,
		startTime:            c.StartTime,
		scheduledEndTime:     c.ScheduledEndTime,
		originalNodeID:       c.OriginalNodeID,
		actProbabilities:     c.ActProbabilities,
		usingCondom:          c.UsingCondom,
		totalCoitalActs:      c.TotalCoitalActs,
		coitalActsThisStep:   c.CoitalActsThisStep,
		condomActsThisStep:   c.CondomActsThisStep,
		hasMigrated:          c.HasMigrated,
		migrationDestination: c.MigrationDestination,
		openSide:             c.OpenSide,
		condomOverride:       c.CondomOverride,
		updatedStep:          -1,
	}
}

// IndividualCheckpoint is the serialized form of an individual's partnership and infection state.
type IndividualCheckpoint struct {
	ID                    Suid                       `json:"id"`
	Gender                Gender                     `json:"gender"`
	Age                   float64                    `json:"age"`
	NodeID                Suid                       `json:"node_id"`
	Properties            map[string]string          `json:"properties,omitempty"`
	Infected              bool                       `json:"infected"`
	InfectedBy            Suid                       `json:"infected_by"`
	Strain                Strain                     `json:"strain"`
	Infectiousness        float64                    `json:"infectiousness"`
	HasCoInfection        bool                       `json:"has_co_infection"`
	AcquisitionReduction  float64                    `json:"acquisition_reduction"`
	TransmissionReduction float64                    `json:"transmission_reduction"`
	DebutAge              float64                    `json:"debut_age"`
	TotalCoitalActs       int                        `json:"total_coital_acts"`
	Queued                [RelationshipTypeCount]int `json:"queued"`
	Active                [RelationshipTypeCount]int `json:"active"`
	Lifetime              [RelationshipTypeCount]int `json:"lifetime"`
	MaxByType             [RelationshipTypeCount]int `json:"max_by_type"`
	Slots                 uint64                     `json:"slots"`
	Flags                 uint8                      `json:"flags"`
	Cooldown              float64                    `json:"cooldown"`
	EnterFormationNow     bool                       `json:"enter_formation_now,omitempty"`
	Relationships         []Suid                     `json:"relationships,omitempty"`
}

// Checkpoint captures the individual's serializable state.
func (i *Individual) Checkpoint() IndividualCheckpoint {
	props := make(map[string]string, len(i.Properties))
	for k, v := range i.Properties {
		props[k] = v
	}
	return IndividualCheckpoint{
		ID:                    i.ID,
		Gender:                i.Gender,
		Age:                   i.Age,
		NodeID:                i.NodeID,
		Properties:            props,
		Infected:              i.Infected,
		InfectedBy:            i.InfectedBy,
		Strain:                i.Strain,
		Infectiousness:        i.Infectiousness,
		HasCoInfection:        i.HasCoInfection,
		AcquisitionReduction:  i.AcquisitionReduction,
		TransmissionReduction: i.TransmissionReduction,
		DebutAge:              i.DebutAge,
		TotalCoitalActs:       i.TotalCoitalActs,
		Queued:                i.queued,
		Active:                i.active,
		Lifetime:              i.lifetime,
		MaxByType:             i.maxByType,
		Slots:                 i.slots,
		Flags:                 i.flags,
		Cooldown:              i.cooldown,
		EnterFormationNow:     i.enterFormationNow,
		Relationships:         append([]Suid(nil), i.relationships...),
	}
}

// IndividualFromCheckpoint rebuilds an individual.
func IndividualFromCheckpoint(c IndividualCheckpoint) *Individual {
	ind := NewIndividual(c.ID, c.Gender, c.Age, c.NodeID)
	for k, v := range c.Properties {
		ind.Properties[k] = v
	}
	ind.Infected = c.Infected
	ind.InfectedBy = c.InfectedBy
	ind.Strain = c.Strain
	ind.Infectiousness = c.Infectiousness
	ind.HasCoInfection = c.HasCoInfection
	ind.AcquisitionReduction = c.AcquisitionReduction
	ind.TransmissionReduction = c.TransmissionReduction
	ind.DebutAge = c.DebutAge
	ind.TotalCoitalActs = c.TotalCoitalActs
	ind.queued = c.Queued
	ind.active = c.Active
	ind.lifetime = c.Lifetime
	ind.maxByType = c.MaxByType
	ind.slots = c.Slots
	ind.flags = c.Flags
	ind.cooldown = c.Cooldown
	ind.enterFormationNow = c.EnterFormationNow
	ind.relationships = append([]Suid(nil), c.Relationships...)
	return ind
}

// SimulationCheckpoint is a complete snapshot of the network at the end of a step.
type SimulationCheckpoint struct {
	RunID         string                   `json:"run_id"`
	Step          int64                    `json:"step"`
	Time          float64                  `json:"time"`
	NextSuid      uint64                   `json:"next_suid"`
	Nodes         []Suid                   `json:"nodes"`
	Individuals   []IndividualCheckpoint   `json:"individuals"`
	Relationships []RelationshipCheckpoint `json:"relationships"`
}
