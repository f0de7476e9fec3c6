package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawIndividual
	}{
		{
			name:  "single individual",
			input: `[{"id": 1, "gender": "F", "age_years": 22.5, "node": 1}]`,
			expected: []RawIndividual{
				{ID: 1, Gender: "F", AgeYears: 22.5, Node: 1, LineNum: 1},
			},
		},
		{
			name:     "empty array",
			input:    "[]",
			expected: []RawIndividual{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &JSONParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJSONParser_Parse_AllFields(t *testing.T) {
	input := `[{
		"id": 7,
		"gender": "male",
		"age_years": 31,
		"node": 2,
		"infected": true,
		"co_infected": true,
		"properties": {"Risk": "HIGH"}
	}]`

	parser := &JSONParser{}
	result, err := parser.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 1)

	ind := result[0]
	assert.Equal(t, uint64(7), ind.ID)
	assert.Equal(t, "male", ind.Gender)
	assert.Equal(t, 31.0, ind.AgeYears)
	assert.Equal(t, uint64(2), ind.Node)
	assert.True(t, ind.Infected)
	assert.True(t, ind.CoInfected)
	assert.Equal(t, map[string]string{"Risk": "HIGH"}, ind.Properties)
}

func TestJSONParser_Parse_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "not json"},
		{"unknown field", `[{"id": 1, "gender": "F", "age_years": 20, "node": 1, "height": 170}]`},
		{"negative id", `[{"id": -1, "gender": "F", "age_years": 20, "node": 1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &JSONParser{}
			_, err := parser.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestCSVParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawIndividual
	}{
		{
			name:  "required columns only",
			input: "id,gender,age_years,node\n1,M,25,1\n",
			expected: []RawIndividual{
				{ID: 1, Gender: "M", AgeYears: 25, Node: 1, LineNum: 2},
			},
		},
		{
			name:     "empty CSV (header only)",
			input:    "id,gender,age_years,node\n",
			expected: nil,
		},
		{
			name:  "columns in different order",
			input: "node,age_years,gender,id\n3,40.5,F,9\n",
			expected: []RawIndividual{
				{ID: 9, Gender: "F", AgeYears: 40.5, Node: 3, LineNum: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCSVParser_Parse_AllColumns(t *testing.T) {
	input := "id,gender,age_years,node,infected,co_infected,Risk,Place\n" +
		"12,F,19,2,true,false,HIGH,\n"

	parser := &CSVParser{}
	result, err := parser.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 1)

	ind := result[0]
	assert.Equal(t, uint64(12), ind.ID)
	assert.Equal(t, "F", ind.Gender)
	assert.Equal(t, 19.0, ind.AgeYears)
	assert.Equal(t, uint64(2), ind.Node)
	assert.True(t, ind.Infected)
	assert.False(t, ind.CoInfected)
	assert.Equal(t, map[string]string{"Risk": "HIGH"}, ind.Properties, "empty property cells are skipped")
}

func TestCSVParser_Parse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{
			name:   "missing required column",
			input:  "id,gender,age_years\n1,M,20\n",
			errMsg: "missing required column: node",
		},
		{
			name:   "invalid id",
			input:  "id,gender,age_years,node\nabc,M,20,1\n",
			errMsg: "line 2: invalid id value",
		},
		{
			name:   "invalid age",
			input:  "id,gender,age_years,node\n1,M,old,1\n",
			errMsg: "invalid age_years value",
		},
		{
			name:   "invalid infected flag",
			input:  "id,gender,age_years,node,infected\n1,M,20,1,maybe\n",
			errMsg: "invalid infected value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			_, err := parser.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestForFormat(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFormat("json"))
	assert.IsType(t, &CSVParser{}, ForFormat("CSV"))
	assert.Nil(t, ForFormat("unknown"))
}

func TestForFile(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFile("population.json"))
	assert.IsType(t, &CSVParser{}, ForFile("people.CSV"))
	assert.Nil(t, ForFile("file.txt"))
	assert.Nil(t, ForFile("noextension"))
}
