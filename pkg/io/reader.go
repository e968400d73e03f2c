// Package io provides input/output utilities for cost data and alert reports.
package io

import (
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/alerting"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/cost"
)

// Reader is the interface for loading a validated cost table.
type Reader interface {
	// Read returns the complete table. Rows that fail to parse are dropped.
	Read() (cost.Table, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for emitting alert reports.
type Writer interface {
	// Write outputs a single report.
	Write(report *alerting.Report) error

	// Close releases resources.
	Close() error
}
