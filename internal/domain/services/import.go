package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/infrastructure/parsers"
)

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun         bool    // Validate without adding to the simulation
	CreateNodes    bool    // Add nodes that the simulation does not know yet
	Infectiousness float64 // Per-act infectivity of individuals imported as infected

	// OwnsNode selects the nodes simulated by this process. Rows on other
	// nodes are counted as foreign and left to the process that owns them.
	OwnsNode func(entities.Suid) bool
}

// ImportError represents an error for a specific individual during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the error
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Imported int
	Skipped  int
	Foreign  int
	Infected int
	Errors   []ImportError
}

// ImportService handles importing individuals from external sources.
type ImportService struct {
	logger *zap.Logger
}

// NewImportService creates a new import service.
func NewImportService(logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{logger: logger}
}

// Import validates raw individuals and adds the valid ones to sim.
// Individuals whose id is already present are skipped.
func (s *ImportService) Import(sim *Simulation, raws []parsers.RawIndividual, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	// Validate all individuals first
	valid, validationErrors := s.validateIndividuals(raws)
	result.Errors = validationErrors

	if len(valid) == 0 {
		return result, nil
	}

	for i := range valid {
		raw := &valid[i]
		nodeID := entities.Suid(raw.Node)
		if opts.OwnsNode != nil && !opts.OwnsNode(nodeID) {
			result.Foreign++
			continue
		}
		if _, ok := sim.Node(nodeID); !ok {
			if !opts.CreateNodes {
				result.Errors = append(result.Errors, ImportError{
					Line:    raw.LineNum,
					Field:   "node",
					Value:   fmt.Sprint(raw.Node),
					Message: fmt.Sprintf("unknown node %d", raw.Node),
				})
				continue
			}
			if !opts.DryRun {
				sim.AddNode(nodeID)
			}
		}
		if _, exists := sim.Population().Individual(entities.Suid(raw.ID)); exists {
			result.Skipped++
			continue
		}

		if raw.Infected {
			result.Infected++
		}
		if opts.DryRun {
			result.Imported++
			continue
		}

		ind := s.convertToEntity(raw, opts.Infectiousness)
		if err := sim.AddIndividual(ind, true); err != nil {
			if errors.Is(err, entities.ErrConcurrencyRange) {
				return nil, fmt.Errorf("line %d: %w", raw.LineNum, err)
			}
			return nil, fmt.Errorf("importing individual %d: %w", raw.ID, err)
		}
		result.Imported++
	}

	s.logger.Info("population imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("foreign", result.Foreign),
		zap.Int("invalid", len(result.Errors)),
		zap.Bool("dry_run", opts.DryRun),
	)

	return result, nil
}

// validateIndividuals validates raw individuals and returns valid ones with any errors.
func (s *ImportService) validateIndividuals(raws []parsers.RawIndividual) ([]parsers.RawIndividual, []ImportError) {
	valid := make([]parsers.RawIndividual, 0, len(raws))
	var errs []ImportError
	seen := make(map[uint64]int, len(raws))

	for i := range raws {
		raw := &raws[i]
		if raw.LineNum == 0 {
			raw.LineNum = i + 1
		}

		if err := validateRawIndividual(raw, raw.LineNum); err != nil {
			errs = append(errs, *err)
			continue
		}
		if first, dup := seen[raw.ID]; dup {
			errs = append(errs, ImportError{
				Line:    raw.LineNum,
				Field:   "id",
				Value:   fmt.Sprint(raw.ID),
				Message: fmt.Sprintf("duplicate id %d (first on line %d)", raw.ID, first),
			})
			continue
		}
		seen[raw.ID] = raw.LineNum

		valid = append(valid, *raw)
	}

	return valid, errs
}

// validateRawIndividual validates a single raw individual and returns an error if invalid.
func validateRawIndividual(raw *parsers.RawIndividual, lineNum int) *ImportError {
	if raw.ID == 0 {
		return &ImportError{Line: lineNum, Field: "id", Message: "missing required field: id"}
	}
	if raw.Node == 0 {
		return &ImportError{Line: lineNum, Field: "node", Message: "missing required field: node"}
	}
	if _, err := entities.ParseGender(raw.Gender); err != nil {
		return &ImportError{
			Line:    lineNum,
			Field:   "gender",
			Value:   raw.Gender,
			Message: fmt.Sprintf("invalid gender %q (valid: M, F, male, female)", raw.Gender),
		}
	}
	if raw.AgeYears < 0 {
		return &ImportError{
			Line:    lineNum,
			Field:   "age_years",
			Value:   fmt.Sprintf("%g", raw.AgeYears),
			Message: "age_years must not be negative",
		}
	}
	return nil
}

// convertToEntity converts a validated raw individual to a domain entity.
func (s *ImportService) convertToEntity(raw *parsers.RawIndividual, infectiousness float64) *entities.Individual {
	gender, _ := entities.ParseGender(raw.Gender)
	ind := entities.NewIndividual(entities.Suid(raw.ID), gender, raw.AgeYears*entities.DaysPerYear, entities.Suid(raw.Node))
	for k, v := range raw.Properties {
		ind.Properties[k] = v
	}
	if raw.Infected {
		ind.Infect(entities.Strain{}, entities.NilSuid, infectiousness)
	}
	ind.HasCoInfection = raw.CoInfected
	return ind
}
