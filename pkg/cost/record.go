// Package cost defines the validated cost table consumed by the detection ensemble.
package cost

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTable reports a table that breaks the ingestion contract.
var ErrInvalidTable = errors.New("invalid cost table")

// Record is a single validated cost observation.
type Record struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"cost_usd"`
	// Group is the optional grouping label, usually a service name.
	Group string `json:"service_name,omitempty"`
}

// Table is an ordered set of records.
type Table struct {
	Records []Record
	// Grouped is true when the source carried a group column.
	Grouped bool
}

// Len returns the number of records.
func (t Table) Len() int {
	return len(t.Records)
}

// Amounts returns a fresh copy of the amount column.
func (t Table) Amounts() []float64 {
	out := make([]float64, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.Amount
	}
	return out
}

// Groups returns a fresh copy of the group column, or nil when the table is not grouped.
func (t Table) Groups() []string {
	if !t.Grouped {
		return nil
	}
	out := make([]string, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.Group
	}
	return out
}

// Total returns the sum of all amounts.
func (t Table) Total() float64 {
	var sum float64
	for _, r := range t.Records {
		sum += r.Amount
	}
	return sum
}

// Validate checks that every amount is a finite, non-negative number.
func (t Table) Validate() error {
	for i, r := range t.Records {
		if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
			return fmt.Errorf("%w: row %d has non-finite amount", ErrInvalidTable, i)
		}
		if r.Amount < 0 {
			return fmt.Errorf("%w: row %d has negative amount %v", ErrInvalidTable, i, r.Amount)
		}
	}
	return nil
}
