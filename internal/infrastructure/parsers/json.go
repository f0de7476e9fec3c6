package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses individuals from JSON format.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed individuals.
func (p *JSONParser) Parse(r io.Reader) ([]RawIndividual, error) {
	var individuals []RawIndividual

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&individuals); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Set line numbers (array index + 1, 1-indexed)
	for i := range individuals {
		individuals[i].LineNum = i + 1
	}

	return individuals, nil
}
