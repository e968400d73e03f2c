package zscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		amounts   []float64
		wantFlags int
	}{
		{
			name:      "single spike",
			amounts:   spike(29, 100, 1000),
			wantFlags: 1,
		},
		{
			name:      "constant column",
			amounts:   []float64{10, 10, 10, 10, 10},
			wantFlags: 0,
		},
		{
			name:      "single row",
			amounts:   []float64{10},
			wantFlags: 0,
		},
		{
			name:      "empty",
			amounts:   nil,
			wantFlags: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, err := New(3.0).Detect(detectors.Input{Amounts: tt.amounts})
			require.NoError(t, err)

			assert.Equal(t, detectors.MethodZScore, col.Method)
			assert.Len(t, col.Flags, len(tt.amounts))
			assert.Equal(t, tt.wantFlags, col.Count())
			for _, s := range col.Scores {
				assert.GreaterOrEqual(t, s, 0.0)
			}
		})
	}
}

func TestDetectSpikeScore(t *testing.T) {
	col, err := New(0).Detect(detectors.Input{Amounts: spike(29, 100, 1000)})
	require.NoError(t, err)

	// mean 130, sample std sqrt(27000)
	assert.InDelta(t, 870/164.3167672515498, col.Scores[29], 1e-9)
	assert.True(t, col.Flags[29])
	assert.False(t, col.Flags[0])
}

func TestZeroVarianceScoresAreZero(t *testing.T) {
	col, err := New(3).Detect(detectors.Input{Amounts: []float64{3, 3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, col.Scores)
	assert.Equal(t, []bool{false, false, false}, col.Flags)
}

func TestZeroVarianceInexactValues(t *testing.T) {
	// 30 copies of these do not average back to exactly the same value.
	for _, v := range []float64{0.1, 3.3, 12.34, 100.1} {
		values := spike(29, v, v)
		flags := make([]bool, len(values))
		scores := make([]float64, len(values))

		assert.False(t, Score(values, 3, flags, scores), "value %v", v)
		assert.Equal(t, make([]float64, len(values)), scores, "value %v", v)
		assert.Equal(t, make([]bool, len(values)), flags, "value %v", v)
	}
}

func TestNewDefaults(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(-1).Threshold())
	assert.Equal(t, 2.5, New(2.5).Threshold())
}

func spike(n int, base, peak float64) []float64 {
	out := make([]float64, n+1)
	for i := 0; i < n; i++ {
		out[i] = base
	}
	out[n] = peak
	return out
}
