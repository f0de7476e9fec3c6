package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// Suid is a simulation-unique identifier for individuals, relationships and nodes.
// Zero is never issued.
type Suid uint64

// NilSuid is the zero identifier.
const NilSuid Suid = 0

// String returns the decimal form of the id.
func (s Suid) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// DaysPerYear converts year-denominated parameters to the day-based clock.
const DaysPerYear = 365.0

// MaxSlots is the number of simultaneous relationships one individual can hold.
const MaxSlots = 63

// RelationshipType is the closed set of partnership kinds.
type RelationshipType int

const (
	Transitory RelationshipType = iota
	Informal
	Marital
	Commercial
)

// RelationshipTypeCount is the number of relationship types.
const RelationshipTypeCount = 4

// RelationshipTypes lists every type in index order.
var RelationshipTypes = [RelationshipTypeCount]RelationshipType{Transitory, Informal, Marital, Commercial}

var relationshipTypeNames = [RelationshipTypeCount]string{"TRANSITORY", "INFORMAL", "MARITAL", "COMMERCIAL"}

func (t RelationshipType) String() string {
	if !t.Valid() {
		return "UNKNOWN"
	}
	return relationshipTypeNames[t]
}

// Valid reports whether t is one of the four relationship types.
func (t RelationshipType) Valid() bool {
	return t >= 0 && t < RelationshipTypeCount
}

// MarshalText implements encoding.TextMarshaler.
func (t RelationshipType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid relationship type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RelationshipType) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationshipType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseRelationshipType parses a type name, case-insensitively.
func ParseRelationshipType(s string) (RelationshipType, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range relationshipTypeNames {
		if name == upper {
			return RelationshipType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown relationship type: %q", s)
}

// RelationshipState is the lifecycle state of a relationship.
type RelationshipState int

const (
	StateNormal RelationshipState = iota
	StatePaused
	StateMigrating
	StateTerminated
)

var relationshipStateNames = []string{"NORMAL", "PAUSED", "MIGRATING", "TERMINATED"}

func (s RelationshipState) String() string {
	if s < 0 || int(s) >= len(relationshipStateNames) {
		return "UNKNOWN"
	}
	return relationshipStateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s RelationshipState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RelationshipState) UnmarshalText(text []byte) error {
	for i, name := range relationshipStateNames {
		if name == string(text) {
			*s = RelationshipState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown relationship state: %q", string(text))
}

// TerminationReason records why a relationship ended.
type TerminationReason int

const (
	ReasonNA TerminationReason = iota
	ReasonBrokeUp
	ReasonSelfDied
	ReasonPartnerDied
	ReasonSelfMigrating
	ReasonPartnerMigrating
	ReasonPartnerTerminated
)

var terminationReasonNames = []string{
	"NA", "BROKEUP", "SELF_DIED", "PARTNER_DIED", "SELF_MIGRATING", "PARTNER_MIGRATING", "PARTNER_TERMINATED",
}

func (r TerminationReason) String() string {
	if r < 0 || int(r) >= len(terminationReasonNames) {
		return "UNKNOWN"
	}
	return terminationReasonNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r TerminationReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *TerminationReason) UnmarshalText(text []byte) error {
	for i, name := range terminationReasonNames {
		if name == string(text) {
			*r = TerminationReason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown termination reason: %q", string(text))
}

// MigrationAction is what happens to a relationship when one partner moves node.
type MigrationAction int

const (
	ActionMigrate MigrationAction = iota
	ActionTerminate
	ActionPause
)

var migrationActionNames = []string{"MIGRATE", "TERMINATE", "PAUSE"}

func (a MigrationAction) String() string {
	if a < 0 || int(a) >= len(migrationActionNames) {
		return "UNKNOWN"
	}
	return migrationActionNames[a]
}

// ParseMigrationAction parses an action name, case-insensitively.
func ParseMigrationAction(s string) (MigrationAction, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range migrationActionNames {
		if name == upper {
			return MigrationAction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown migration action: %q", s)
}

// Gender of an individual.
type Gender int

const (
	Male Gender = iota
	Female
)

func (g Gender) String() string {
	if g == Female {
		return "F"
	}
	return "M"
}

// ParseGender accepts M/F/MALE/FEMALE in any case.
func ParseGender(s string) (Gender, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return Male, nil
	case "F", "FEMALE":
		return Female, nil
	default:
		return 0, fmt.Errorf("unknown gender: %q", s)
	}
}
