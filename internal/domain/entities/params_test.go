package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRelationshipType(t *testing.T) {
	tests := []struct {
		input    string
		expected RelationshipType
		wantErr  bool
	}{
		{input: "TRANSITORY", expected: Transitory},
		{input: "informal", expected: Informal},
		{input: " Marital ", expected: Marital},
		{input: "COMMERCIAL", expected: Commercial},
		{input: "CASUAL", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRelationshipType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCoitalDilution_Factor(t *testing.T) {
	d := CoitalDilution{Enabled: true, TwoPartners: 0.75, ThreePartners: 0.6, FourPlusPartners: 0.45}

	assert.Equal(t, 1.0, d.Factor(0))
	assert.Equal(t, 1.0, d.Factor(1))
	assert.Equal(t, 0.75, d.Factor(2))
	assert.Equal(t, 0.6, d.Factor(3))
	assert.Equal(t, 0.45, d.Factor(4))
	assert.Equal(t, 0.45, d.Factor(9))

	d.Enabled = false
	assert.Equal(t, 1.0, d.Factor(4))
}

func TestSigmoid_At(t *testing.T) {
	s := Sigmoid{Early: 0.1, Late: 0.5, MidYear: 2000, Rate: 2}

	assert.InDelta(t, 0.3, s.At(2000), 1e-12)
	assert.InDelta(t, 0.1, s.At(1950), 1e-9)
	assert.InDelta(t, 0.5, s.At(2050), 1e-9)
}

func TestRelationshipParameters_Validate(t *testing.T) {
	valid := testParams(Transitory)
	require.NoError(t, valid.Validate())

	short := testParams(Transitory)
	short.MigrationActionsCDF = []float64{0.5, 1.0}
	assert.ErrorIs(t, short.Validate(), ErrMigrationTable)

	decreasing := testParams(Transitory)
	decreasing.MigrationActionsCDF = []float64{0.5, 0.4, 1.0}
	assert.ErrorIs(t, decreasing.Validate(), ErrMigrationTable)

	incomplete := testParams(Transitory)
	incomplete.MigrationActionsCDF = []float64{0.2, 0.5, 0.8}
	assert.ErrorIs(t, incomplete.Validate(), ErrMigrationTable)
}

func TestConcurrencyParameters_Validate(t *testing.T) {
	base := func() *ConcurrencyParameters {
		c := &ConcurrencyParameters{FlagType: FlagsIndependent}
		for _, rt := range RelationshipTypes {
			c.Types[rt] = TypeConcurrency{ProbExtraMale: 0.2, ProbExtraFemale: 0.1, MaxMale: 2, MaxFemale: 1.5}
		}
		return c
	}

	require.NoError(t, base().Validate())

	tooMany := base()
	tooMany.Types[Commercial].MaxMale = 60
	assert.ErrorIs(t, tooMany.Validate(), ErrConcurrencyRange)

	badProb := base()
	badProb.Types[Informal].ProbExtraFemale = 1.5
	assert.ErrorIs(t, badProb.Validate(), ErrConcurrencyRange)

	correlated := base()
	correlated.FlagType = FlagsCorrelated
	correlated.TypeOrder = []RelationshipType{Marital, Informal, Marital, Transitory}
	assert.ErrorIs(t, correlated.Validate(), ErrConcurrencyRange)

	correlated.TypeOrder = []RelationshipType{Marital, Informal, Commercial, Transitory}
	assert.NoError(t, correlated.Validate())
}

func TestActContagion_ProbabilityOfInfection(t *testing.T) {
	c := ActContagion{Acts: []ActProbability{{NumActs: 2, ProbPerAct: 0.5}, {NumActs: 1, ProbPerAct: 0.5}}}
	assert.InDelta(t, 0.875, c.ProbabilityOfInfection(), 1e-12)

	assert.Equal(t, 0.0, ActContagion{}.ProbabilityOfInfection())
}
