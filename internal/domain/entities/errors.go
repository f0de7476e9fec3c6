package entities

import "errors"

var (
	// ErrUnknownPartner is returned when an individual is not a partner of the relationship.
	ErrUnknownPartner = errors.New("unknown partner")

	// ErrRelationshipTerminated is returned for operations that need a live relationship.
	ErrRelationshipTerminated = errors.New("relationship has been terminated")

	// ErrIllegalTransition is returned when a state change is not allowed from the current state.
	ErrIllegalTransition = errors.New("illegal relationship state transition")

	// ErrSlotsExhausted is returned when all relationship slots of an individual are in use.
	ErrSlotsExhausted = errors.New("cannot be in more than 63 simultaneous relationships")

	// ErrConcurrencyRange is returned when configured concurrency limits are out of range.
	ErrConcurrencyRange = errors.New("concurrency limits out of range")

	// ErrMigrationTable is returned when a migration action cannot be selected.
	ErrMigrationTable = errors.New("migration action table exhausted")
)
