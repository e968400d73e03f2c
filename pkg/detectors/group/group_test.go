package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

func TestDetectIsolatesGroups(t *testing.T) {
	// EC2 hovers around 100, RDS around 50; each has one 3x spike.
	var in detectors.Input
	for i := 0; i < 19; i++ {
		in.Amounts = append(in.Amounts, 100)
		in.Groups = append(in.Groups, "EC2")
	}
	in.Amounts = append(in.Amounts, 300)
	in.Groups = append(in.Groups, "EC2")
	for i := 0; i < 19; i++ {
		in.Amounts = append(in.Amounts, 50)
		in.Groups = append(in.Groups, "RDS")
	}
	in.Amounts = append(in.Amounts, 150)
	in.Groups = append(in.Groups, "RDS")

	col, err := New(3.0, 7).Detect(in)
	require.NoError(t, err)

	assert.Equal(t, detectors.MethodServiceLevel, col.Method)
	assert.Equal(t, 2, col.Count())
	assert.True(t, col.Flags[19], "EC2 spike")
	assert.True(t, col.Flags[39], "RDS spike")

	// Both spikes sit at the same group-local distance even though the
	// groups have different scales.
	assert.InDelta(t, col.Scores[19], col.Scores[39], 1e-9)
}

func TestDetectSkipsSmallAndConstantGroups(t *testing.T) {
	in := detectors.Input{
		Amounts: []float64{1, 1, 1000, 5, 5, 5, 5, 5, 5, 5, 5},
		Groups:  []string{"S3", "S3", "S3", "Lambda", "Lambda", "Lambda", "Lambda", "Lambda", "Lambda", "Lambda", "Lambda"},
	}

	col, err := New(3.0, 7).Detect(in)
	require.NoError(t, err)

	assert.Zero(t, col.Count())
	for _, s := range col.Scores {
		assert.Zero(t, s)
	}
}

func TestDetectConstantGroupInexactValue(t *testing.T) {
	var in detectors.Input
	for i := 0; i < 30; i++ {
		in.Amounts = append(in.Amounts, 12.34)
		in.Groups = append(in.Groups, "S3")
	}

	col, err := New(3.0, 7).Detect(in)
	require.NoError(t, err)
	assert.Zero(t, col.Count())
	assert.Equal(t, make([]float64, 30), col.Scores)
}

func TestDetectGroupAtMinSamples(t *testing.T) {
	// A group is scored once it has at least min_samples rows.
	tests := []struct {
		name       string
		size       int
		wantScored bool
	}{
		{name: "one below minimum", size: 6, wantScored: false},
		{name: "exactly minimum", size: 7, wantScored: true},
		{name: "one above minimum", size: 8, wantScored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in detectors.Input
			for i := 0; i < tt.size; i++ {
				in.Amounts = append(in.Amounts, float64(10+i))
				in.Groups = append(in.Groups, "Lambda")
			}

			col, err := New(3.0, 7).Detect(in)
			require.NoError(t, err)

			scored := false
			for _, s := range col.Scores {
				if s > 0 {
					scored = true
				}
			}
			assert.Equal(t, tt.wantScored, scored)
		})
	}
}

func TestDetectWithoutGroups(t *testing.T) {
	col, err := New(3.0, 7).Detect(detectors.Input{Amounts: []float64{1, 2, 3}})
	require.NoError(t, err)
	assert.Len(t, col.Flags, 3)
	assert.Zero(t, col.Count())
}

func TestPartition(t *testing.T) {
	got := Partition([]string{"a", "b", "a", "c", "a"})
	assert.Equal(t, map[string][]int{
		"a": {0, 2, 4},
		"b": {1},
		"c": {3},
	}, got)
}
