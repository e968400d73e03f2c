// Package detectors provides the anomaly detection methods combined by the ensemble.
package detectors

// Method names a detection method. The values double as summary keys.
type Method string

const (
	MethodIsolationForest Method = "isolation_forest"
	MethodZScore          Method = "zscore"
	MethodIQR             Method = "iqr"
	MethodServiceLevel    Method = "service_level"
)

// Methods lists every method in aggregation order.
var Methods = []Method{
	MethodIsolationForest,
	MethodZScore,
	MethodIQR,
	MethodServiceLevel,
}

// String returns the method name.
func (m Method) String() string {
	return string(m)
}

// Title returns a human readable method name.
func (m Method) Title() string {
	switch m {
	case MethodIsolationForest:
		return "Isolation Forest"
	case MethodZScore:
		return "Z-Score"
	case MethodIQR:
		return "IQR"
	case MethodServiceLevel:
		return "Service-Level"
	default:
		return string(m)
	}
}

// Detector is the common interface for all detection methods.
//
// Detect must treat its input as read-only and return a Column with exactly
// one flag and one score per input row.
type Detector interface {
	Method() Method
	Detect(in Input) (Column, error)
}

// Input is the read-only view of the cost table a detector works on.
type Input struct {
	// Amounts holds one value per row.
	Amounts []float64
	// Groups holds one label per row, or nil when there is no group column.
	Groups []string
}

// Len returns the number of rows.
func (in Input) Len() int {
	return len(in.Amounts)
}

// Column is the output of a single detector.
type Column struct {
	Method Method
	// Flags marks rows the detector considers anomalous.
	Flags []bool
	// Scores holds the per-row diagnostic score.
	Scores []float64
	// Lower and Upper are run-wide bounds, set by bound-based methods only.
	Lower float64
	Upper float64
}

// Empty returns an all-false, zero-score column for n rows.
func Empty(m Method, n int) Column {
	return Column{
		Method: m,
		Flags:  make([]bool, n),
		Scores: make([]float64, n),
	}
}

// Count returns the number of flagged rows.
func (c Column) Count() int {
	n := 0
	for _, f := range c.Flags {
		if f {
			n++
		}
	}
	return n
}
