// Package iqr flags values outside the interquartile fences.
package iqr

import (
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

// DefaultMultiplier is Tukey's fence multiplier.
const DefaultMultiplier = 1.5

// Detector is a global interquartile-range detector.
type Detector struct {
	multiplier float64
}

// New creates an IQR detector. A non-positive multiplier selects DefaultMultiplier.
func New(multiplier float64) *Detector {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	return &Detector{multiplier: multiplier}
}

// Method implements detectors.Detector.
func (d *Detector) Method() detectors.Method {
	return detectors.MethodIQR
}

// Bounds returns the fences [Q1 - k*IQR, Q3 + k*IQR] for values.
func (d *Detector) Bounds(values []float64) (lower, upper float64) {
	q1 := detectors.Quantile(values, 0.25)
	q3 := detectors.Quantile(values, 0.75)
	spread := q3 - q1
	return q1 - d.multiplier*spread, q3 + d.multiplier*spread
}

// Detect flags rows strictly outside the fences. The score of a row is its
// distance to the nearest fence, zero inside the fences.
func (d *Detector) Detect(in detectors.Input) (detectors.Column, error) {
	col := detectors.Empty(detectors.MethodIQR, in.Len())
	if in.Len() == 0 {
		return col, nil
	}

	col.Lower, col.Upper = d.Bounds(in.Amounts)
	for i, v := range in.Amounts {
		switch {
		case v < col.Lower:
			col.Flags[i] = true
			col.Scores[i] = col.Lower - v
		case v > col.Upper:
			col.Flags[i] = true
			col.Scores[i] = v - col.Upper
		}
	}
	return col, nil
}
