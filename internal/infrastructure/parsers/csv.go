package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Columns with a fixed meaning. Every other column becomes an individual property.
var knownColumns = map[string]bool{
	"id":          true,
	"gender":      true,
	"age_years":   true,
	"node":        true,
	"infected":    true,
	"co_infected": true,
}

// CSVParser parses individuals from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed individuals.
// Expected columns: id, gender, age_years, node, infected, co_infected, then any property columns.
func (p *CSVParser) Parse(r io.Reader) ([]RawIndividual, error) {
	reader := csv.NewReader(r)

	header, colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, header, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) ([]string, map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		header[i] = strings.TrimSpace(col)
		colIndex[header[i]] = i
	}

	requiredCols := []string{"id", "gender", "age_years", "node"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return header, colIndex, nil
}

// readRecords reads all data rows and converts them to RawIndividuals.
func (p *CSVParser) readRecords(reader *csv.Reader, header []string, colIndex map[string]int) ([]RawIndividual, error) {
	var individuals []RawIndividual
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		ind, err := p.parseRecord(record, header, colIndex, lineNum)
		if err != nil {
			return nil, err
		}
		individuals = append(individuals, ind)
	}

	return individuals, nil
}

// parseRecord converts a CSV record to a RawIndividual.
func (p *CSVParser) parseRecord(record, header []string, colIndex map[string]int, lineNum int) (RawIndividual, error) {
	ind := RawIndividual{
		Gender:  getColumn(record, colIndex, "gender"),
		LineNum: lineNum,
	}

	var err error
	if ind.ID, err = parseUint(record, colIndex, "id", lineNum); err != nil {
		return RawIndividual{}, err
	}
	if ind.Node, err = parseUint(record, colIndex, "node", lineNum); err != nil {
		return RawIndividual{}, err
	}

	ageStr := getColumn(record, colIndex, "age_years")
	if ind.AgeYears, err = strconv.ParseFloat(ageStr, 64); err != nil {
		return RawIndividual{}, fmt.Errorf("line %d: invalid age_years value %q: %w", lineNum, ageStr, err)
	}

	if ind.Infected, err = parseBool(record, colIndex, "infected", lineNum); err != nil {
		return RawIndividual{}, err
	}
	if ind.CoInfected, err = parseBool(record, colIndex, "co_infected", lineNum); err != nil {
		return RawIndividual{}, err
	}

	for i, col := range header {
		if knownColumns[col] || i >= len(record) || record[i] == "" {
			continue
		}
		if ind.Properties == nil {
			ind.Properties = make(map[string]string)
		}
		ind.Properties[col] = record[i]
	}

	return ind, nil
}

func parseUint(record []string, colIndex map[string]int, col string, lineNum int) (uint64, error) {
	s := getColumn(record, colIndex, col)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s value %q: %w", lineNum, col, s, err)
	}
	return v, nil
}

func parseBool(record []string, colIndex map[string]int, col string, lineNum int) (bool, error) {
	s := getColumn(record, colIndex, col)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("line %d: invalid %s value %q: %w", lineNum, col, s, err)
	}
	return v, nil
}

// getColumn safely retrieves a column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}
