package detectors

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of data, or 0 for empty input.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Constant reports whether every value equals the first. Empty input is
// constant. Variance computed from a rounded mean can be a tiny nonzero
// value for a constant column, so callers test this instead of std == 0.
func Constant(data []float64) bool {
	for _, v := range data {
		if v != data[0] {
			return false
		}
	}
	return true
}

// SampleStd returns the standard deviation with n-1 degrees of freedom.
// It returns 0 for fewer than two values.
func SampleStd(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return math.Sqrt(sumSquares(data) / float64(len(data)-1))
}

// PopulationStd returns the standard deviation with n degrees of freedom.
func PopulationStd(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return math.Sqrt(sumSquares(data) / float64(len(data)))
}

func sumSquares(data []float64) float64 {
	mean := Mean(data)
	var ss float64
	for _, v := range data {
		d := v - mean
		ss += d * d
	}
	return ss
}

// Quantile returns the q-th quantile (0 <= q <= 1) of data using linear
// interpolation between closest ranks. data is not modified.
func Quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	switch {
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
