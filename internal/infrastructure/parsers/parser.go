// Package parsers provides parsers for importing populations from various formats.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawIndividual represents an individual parsed from an external source before validation.
type RawIndividual struct {
	ID         uint64            `json:"id"`
	Gender     string            `json:"gender"`
	AgeYears   float64           `json:"age_years"`
	Node       uint64            `json:"node"`
	Infected   bool              `json:"infected,omitempty"`
	CoInfected bool              `json:"co_infected,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	LineNum    int               `json:"-"` // Line number in source file (set by parser)
}

// Parser defines the interface for parsing individuals from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawIndividual, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
