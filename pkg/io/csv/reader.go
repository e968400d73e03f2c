// Package csv provides CSV file reading for cost data.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/cost"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("missing required column")

// Default column names.
const (
	DefaultDateColumn  = "date"
	DefaultCostColumn  = "cost_usd"
	DefaultGroupColumn = "service_name"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// Reader reads cost records from CSV files.
type Reader struct {
	file   *os.File
	reader *csv.Reader

	dateColumn  string
	costColumn  string
	groupColumn string

	headers  []string
	dateIdx  int
	costIdx  int
	groupIdx int

	dropped int
	table   cost.Table
	read    bool
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithDateColumn sets the name of the date column.
func WithDateColumn(name string) Option {
	return func(r *Reader) {
		r.dateColumn = name
	}
}

// WithCostColumn sets the name of the cost column.
func WithCostColumn(name string) Option {
	return func(r *Reader) {
		r.costColumn = name
	}
}

// WithGroupColumn sets the name of the optional group column.
// An empty name disables grouping.
func WithGroupColumn(name string) Option {
	return func(r *Reader) {
		r.groupColumn = name
	}
}

// NewReader opens filename and validates its header.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := FromReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	r.file = file
	return r, nil
}

// FromReader reads CSV data from src and validates its header.
func FromReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:      csv.NewReader(src),
		dateColumn:  DefaultDateColumn,
		costColumn:  DefaultCostColumn,
		groupColumn: DefaultGroupColumn,
		groupIdx:    -1,
	}
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	r.headers = headers

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.TrimSpace(h)] = i
	}

	var missing []string
	var ok bool
	if r.dateIdx, ok = index[r.dateColumn]; !ok {
		missing = append(missing, r.dateColumn)
	}
	if r.costIdx, ok = index[r.costColumn]; !ok {
		missing = append(missing, r.costColumn)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (available columns: %s)",
			ErrMissingColumn, strings.Join(missing, ", "), strings.Join(headers, ", "))
	}
	if idx, ok := index[r.groupColumn]; ok && r.groupColumn != "" {
		r.groupIdx = idx
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Grouped reports whether the file has the group column.
func (r *Reader) Grouped() bool {
	return r.groupIdx >= 0
}

// Read returns all valid rows sorted by date. Rows with an unparseable
// date, a non-numeric or non-finite cost, or a negative cost are dropped.
func (r *Reader) Read() (cost.Table, error) {
	if r.read {
		return r.table, nil
	}

	table := cost.Table{Grouped: r.Grouped()}
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				r.dropped++
				continue // Skip malformed rows
			}
			return cost.Table{}, err
		}

		row, err := r.parseRow(record)
		if err != nil {
			r.dropped++
			continue
		}
		table.Records = append(table.Records, row)
	}

	sort.SliceStable(table.Records, func(i, j int) bool {
		return table.Records[i].Date.Before(table.Records[j].Date)
	})

	r.table = table
	r.read = true
	return table, nil
}

// Dropped returns the number of rows discarded by Read.
func (r *Reader) Dropped() int {
	return r.dropped
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts a CSV record to a cost record.
func (r *Reader) parseRow(record []string) (cost.Record, error) {
	if r.dateIdx >= len(record) || r.costIdx >= len(record) {
		return cost.Record{}, errors.New("short row")
	}

	date, err := parseDate(record[r.dateIdx])
	if err != nil {
		return cost.Record{}, err
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(record[r.costIdx]), 64)
	if err != nil {
		return cost.Record{}, err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return cost.Record{}, errors.New("non-finite cost")
	}
	if amount < 0 {
		return cost.Record{}, errors.New("negative cost")
	}

	row := cost.Record{Date: date, Amount: amount}
	if r.groupIdx >= 0 && r.groupIdx < len(record) {
		row.Group = strings.TrimSpace(record[r.groupIdx])
	}
	return row, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Stats describes a loaded cost table.
type Stats struct {
	TotalRecords int       `json:"total_records"`
	TotalCost    float64   `json:"total_cost"`
	AverageCost  float64   `json:"average_cost"`
	MedianCost   float64   `json:"median_cost"`
	MinCost      float64   `json:"min_cost"`
	MaxCost      float64   `json:"max_cost"`
	StdDev       float64   `json:"std_dev"`
	Start        time.Time `json:"date_range_start"`
	End          time.Time `json:"date_range_end"`
}

// Describe computes summary statistics of a table.
func Describe(t cost.Table) Stats {
	s := Stats{TotalRecords: t.Len()}
	if t.Len() == 0 {
		return s
	}

	amounts := t.Amounts()
	s.TotalCost = t.Total()
	s.AverageCost = detectors.Mean(amounts)
	s.MedianCost = detectors.Quantile(amounts, 0.5)
	s.StdDev = detectors.SampleStd(amounts)
	s.MinCost, s.MaxCost = amounts[0], amounts[0]
	s.Start, s.End = t.Records[0].Date, t.Records[0].Date
	for _, rec := range t.Records {
		s.MinCost = math.Min(s.MinCost, rec.Amount)
		s.MaxCost = math.Max(s.MaxCost, rec.Amount)
		if rec.Date.Before(s.Start) {
			s.Start = rec.Date
		}
		if rec.Date.After(s.End) {
			s.End = rec.Date
		}
	}
	return s
}
