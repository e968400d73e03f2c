// Package group runs an independent z-score test inside every group of rows.
package group

import (
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/zscore"
)

// DefaultMinSamples is the smallest group that is tested.
const DefaultMinSamples = 7

// Detector is a per-group z-score detector.
type Detector struct {
	threshold  float64
	minSamples int
}

// New creates a per-group detector. Non-positive arguments select the defaults.
func New(threshold float64, minSamples int) *Detector {
	if threshold <= 0 {
		threshold = zscore.DefaultThreshold
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Detector{threshold: threshold, minSamples: minSamples}
}

// Method implements detectors.Detector.
func (d *Detector) Method() detectors.Method {
	return detectors.MethodServiceLevel
}

// Detect partitions rows by group label and scores each partition with its
// own mean and standard deviation. Groups smaller than the minimum sample
// size, and constant groups, stay unflagged.
func (d *Detector) Detect(in detectors.Input) (detectors.Column, error) {
	col := detectors.Empty(detectors.MethodServiceLevel, in.Len())
	if in.Groups == nil {
		return col, nil
	}

	for _, rows := range Partition(in.Groups) {
		if len(rows) < d.minSamples {
			continue
		}

		values := make([]float64, len(rows))
		for j, idx := range rows {
			values[j] = in.Amounts[idx]
		}
		flags := make([]bool, len(rows))
		scores := make([]float64, len(rows))
		if !zscore.Score(values, d.threshold, flags, scores) {
			continue
		}

		for j, idx := range rows {
			col.Flags[idx] = flags[j]
			col.Scores[idx] = scores[j]
		}
	}
	return col, nil
}

// Partition maps every distinct label to the row indexes carrying it, in row order.
func Partition(labels []string) map[string][]int {
	out := make(map[string][]int)
	for i, l := range labels {
		out[l] = append(out[l], i)
	}
	return out
}
