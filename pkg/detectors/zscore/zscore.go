// Package zscore flags values that lie too many standard deviations from the mean.
package zscore

import (
	"math"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

// DefaultThreshold is the number of standard deviations beyond which a value is flagged.
const DefaultThreshold = 3.0

// Detector is a global z-score detector.
type Detector struct {
	threshold float64
}

// New creates a z-score detector. A non-positive threshold selects DefaultThreshold.
func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Method implements detectors.Detector.
func (d *Detector) Method() detectors.Method {
	return detectors.MethodZScore
}

// Threshold returns the configured threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Detect scores every row as |x - mean| / std using the sample standard
// deviation. A constant column produces an all-false column.
func (d *Detector) Detect(in detectors.Input) (detectors.Column, error) {
	col := detectors.Empty(detectors.MethodZScore, in.Len())
	Score(in.Amounts, d.threshold, col.Flags, col.Scores)
	return col, nil
}

// Score writes z-scores and flags for values into the given slices, which
// must have the same length as values. It reports false and leaves the
// outputs untouched when values are constant or too few for a deviation.
func Score(values []float64, threshold float64, flags []bool, scores []float64) bool {
	if len(values) < 2 || detectors.Constant(values) {
		return false
	}
	std := detectors.SampleStd(values)
	if std == 0 {
		return false
	}
	mean := detectors.Mean(values)
	for i, v := range values {
		z := math.Abs(v-mean) / std
		scores[i] = z
		flags[i] = z > threshold
	}
	return true
}
