package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/services"
	"github.com/ersonp/stinet/internal/infrastructure/parsers"
)

// ImportHandler loads a population file into a simulation.
type ImportHandler struct {
	service *services.ImportService
}

// NewImportHandler creates a new import handler.
func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	Format         string  // "json", "csv", or "auto"
	DryRun         bool    // Validate without adding individuals
	CreateNodes    bool    // Add nodes named by the file
	Infectiousness float64 // Per-act infectivity of infected individuals

	// OwnsNode selects the nodes of this process; nil accepts every node.
	OwnsNode func(entities.Suid) bool
}

// ImportResult counts imported, skipped and rejected rows.
type ImportResult = services.ImportResult

// Handle imports individuals from a file into sim.
func (h *ImportHandler) Handle(ctx context.Context, sim *services.Simulation, filePath string, opts ImportOptions) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raws, err := readPopulation(filePath, opts.Format)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return &ImportResult{}, nil
	}

	return h.service.Import(sim, raws, services.ImportOptions{
		DryRun:         opts.DryRun,
		CreateNodes:    opts.CreateNodes,
		Infectiousness: opts.Infectiousness,
		OwnsNode:       opts.OwnsNode,
	})
}

// readPopulation picks a parser from the format, or from the file extension
// when the format is empty or "auto", and parses the whole file.
func readPopulation(filePath, format string) ([]parsers.RawIndividual, error) {
	parser := parsers.ForFormat(format)
	if format == "" || format == "auto" {
		parser = parsers.ForFile(filePath)
	}
	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	raws, err := parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}
	return raws, nil
}
