// Package ensemble combines the isolation forest, z-score, IQR and per-group
// detectors into a single consensus decision per cost record.
//
// Each detector is a pure function of the amount (and group) column. They run
// concurrently on private copies of the input and the ensemble joins their
// columns by row index, so the result does not depend on completion order.
// The ensemble reports counts and durations as plain values and never talks
// to a telemetry backend itself.
package ensemble

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/cost"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/group"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/iforest"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/iqr"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/zscore"
)

// ConsensusThreshold is the number of agreeing detectors that makes a record
// anomalous. It stays at two whether three or four detectors ran.
const ConsensusThreshold = 2

// State is the degenerate-input decision taken at the start of a run.
type State int

const (
	// StateSufficient means every detector ran.
	StateSufficient State = iota
	// StateInsufficient means the table was smaller than MinSamples and no detector ran.
	StateInsufficient
)

func (s State) String() string {
	switch s {
	case StateSufficient:
		return "sufficient"
	case StateInsufficient:
		return "insufficient"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AnnotatedRecord is a cost record with every detector's verdict attached.
type AnnotatedRecord struct {
	cost.Record

	OutlierFlag bool `json:"outlier_flag"`
	// OutlierScore is the isolation forest score; higher means more normal.
	OutlierScore float64 `json:"outlier_score"`

	ZScoreFlag bool    `json:"zscore_flag"`
	ZScore     float64 `json:"zscore"`

	IQRFlag  bool    `json:"iqr_flag"`
	IQRLower float64 `json:"iqr_lower"`
	IQRUpper float64 `json:"iqr_upper"`

	GroupFlag bool `json:"group_flag"`

	// ConsensusScore counts the detectors that flagged the record.
	ConsensusScore int     `json:"anomaly_score"`
	IsAnomaly      bool    `json:"is_anomaly"`
	Confidence     float64 `json:"confidence"`
}

// Flag returns the verdict of a single method.
func (r AnnotatedRecord) Flag(m detectors.Method) bool {
	switch m {
	case detectors.MethodIsolationForest:
		return r.OutlierFlag
	case detectors.MethodZScore:
		return r.ZScoreFlag
	case detectors.MethodIQR:
		return r.IQRFlag
	case detectors.MethodServiceLevel:
		return r.GroupFlag
	default:
		return false
	}
}

// FlaggedBy lists the methods that flagged the record, in aggregation order.
func (r AnnotatedRecord) FlaggedBy() []detectors.Method {
	var out []detectors.Method
	for _, m := range detectors.Methods {
		if r.Flag(m) {
			out = append(out, m)
		}
	}
	return out
}

// DetectorError wraps a failure of a single detector. The ensemble records
// it and continues with an all-false column for that detector.
type DetectorError struct {
	Method detectors.Method
	Err    error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s failed: %v", e.Method, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one detection run.
type Result struct {
	Records []AnnotatedRecord
	Grouped bool
	State   State

	// Methods lists the detectors that ran, in aggregation order.
	Methods []detectors.Method
	// Triggers counts flagged rows per method that ran.
	Triggers map[detectors.Method]int

	IQRLower float64
	IQRUpper float64

	Durations map[detectors.Method]time.Duration
	Elapsed   time.Duration
	Failures  []*DetectorError
}

// AnomalyCount returns the number of records with IsAnomaly set.
func (r *Result) AnomalyCount() int {
	n := 0
	for _, rec := range r.Records {
		if rec.IsAnomaly {
			n++
		}
	}
	return n
}

// Anomalies returns the anomalous records in input order.
func (r *Result) Anomalies() []AnnotatedRecord {
	var out []AnnotatedRecord
	for _, rec := range r.Records {
		if rec.IsAnomaly {
			out = append(out, rec)
		}
	}
	return out
}

// Summary aggregates the result.
func (r *Result) Summary() Summary {
	return Summarize(r.Records, r.Grouped)
}

// Ensemble runs the detectors and aggregates their verdicts.
type Ensemble struct {
	cfg       Config
	logger    *zap.Logger
	overrides map[detectors.Method]detectors.Detector
}

// Option configures an Ensemble.
type Option func(*Ensemble)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Ensemble) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDetector replaces the built-in detector for d.Method().
func WithDetector(d detectors.Detector) Option {
	return func(e *Ensemble) {
		e.overrides[d.Method()] = d
	}
}

// New creates an Ensemble after validating cfg.
func New(cfg Config, opts ...Option) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ensemble config: %w", err)
	}

	e := &Ensemble{
		cfg:       cfg,
		logger:    zap.NewNop(),
		overrides: make(map[detectors.Method]detectors.Detector),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the configuration the ensemble was built with.
func (e *Ensemble) Config() Config {
	return e.cfg
}

// Detect annotates every record of t. The returned table always has the
// same length as t. Detector failures are absorbed; only contract
// violations in t and a cancelled ctx are returned as errors.
func (e *Ensemble) Detect(ctx context.Context, t cost.Table) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	n := t.Len()
	e.logger.Info("starting anomaly detection", zap.Int("records", n), zap.Bool("grouped", t.Grouped))

	if n < e.cfg.MinSamples {
		e.logger.Warn("insufficient data, skipping detection",
			zap.Int("records", n),
			zap.Int("min_samples", e.cfg.MinSamples))
		res := e.insufficient(t)
		res.Elapsed = time.Since(start)
		return res, nil
	}

	methods := e.activeMethods(t)
	columns := make([]detectors.Column, len(methods))
	durations := make([]time.Duration, len(methods))
	failures := make([]*DetectorError, len(methods))

	var g errgroup.Group
	for i, m := range methods {
		in := detectors.Input{Amounts: t.Amounts(), Groups: t.Groups()}
		g.Go(func() error {
			began := time.Now()
			col, err := e.run(m, in)
			durations[i] = time.Since(began)
			if err != nil {
				failures[i] = &DetectorError{Method: m, Err: err}
				col = detectors.Empty(m, n)
			}
			columns[i] = col
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		Grouped:   t.Grouped,
		State:     StateSufficient,
		Methods:   methods,
		Triggers:  make(map[detectors.Method]int, len(methods)),
		Durations: make(map[detectors.Method]time.Duration, len(methods)),
	}
	for i, m := range methods {
		res.Durations[m] = durations[i]
		res.Triggers[m] = columns[i].Count()
		if failures[i] != nil {
			e.logger.Warn("detector failed, treating as no anomalies",
				zap.String("method", m.String()),
				zap.Error(failures[i].Err))
			res.Failures = append(res.Failures, failures[i])
			continue
		}
		e.logger.Info("detector finished",
			zap.String("method", m.String()),
			zap.Int("anomalies", res.Triggers[m]),
			zap.Duration("duration", durations[i]))
		if m == detectors.MethodIQR {
			res.IQRLower, res.IQRUpper = columns[i].Lower, columns[i].Upper
		}
	}

	res.Records = join(t, columns)
	res.Elapsed = time.Since(start)

	e.logger.Info("detection complete",
		zap.Int("anomalies", res.AnomalyCount()),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (e *Ensemble) activeMethods(t cost.Table) []detectors.Method {
	methods := []detectors.Method{
		detectors.MethodIsolationForest,
		detectors.MethodZScore,
		detectors.MethodIQR,
	}
	if t.Grouped {
		methods = append(methods, detectors.MethodServiceLevel)
	}
	return methods
}

// detector returns the detector for m. Built-in detectors are created per
// run because the isolation forest keeps its fitted model.
func (e *Ensemble) detector(m detectors.Method) detectors.Detector {
	if d, ok := e.overrides[m]; ok {
		return d
	}
	switch m {
	case detectors.MethodIsolationForest:
		return iforest.New(
			iforest.WithTrees(e.cfg.Estimators),
			iforest.WithSampleSize(e.cfg.MaxSamples),
			iforest.WithContamination(e.cfg.Contamination),
			iforest.WithSeed(e.cfg.Seed),
		)
	case detectors.MethodZScore:
		return zscore.New(e.cfg.ZScoreThreshold)
	case detectors.MethodIQR:
		return iqr.New(e.cfg.IQRMultiplier)
	default:
		return group.New(e.cfg.ZScoreThreshold, e.cfg.MinSamples)
	}
}

// run invokes one detector and turns panics and malformed columns into errors.
func (e *Ensemble) run(m detectors.Method, in detectors.Input) (col detectors.Column, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	col, err = e.detector(m).Detect(in)
	if err != nil {
		return detectors.Column{}, err
	}
	if len(col.Flags) != in.Len() || len(col.Scores) != in.Len() {
		return detectors.Column{}, fmt.Errorf("column has %d flags and %d scores for %d rows",
			len(col.Flags), len(col.Scores), in.Len())
	}
	col.Method = m
	return col, nil
}

// join merges detector columns into annotated records by row index and
// derives consensus and confidence.
func join(t cost.Table, columns []detectors.Column) []AnnotatedRecord {
	out := make([]AnnotatedRecord, t.Len())
	active := float64(len(columns))

	for i, rec := range t.Records {
		a := AnnotatedRecord{Record: rec}
		for _, col := range columns {
			flag := col.Flags[i]
			switch col.Method {
			case detectors.MethodIsolationForest:
				a.OutlierFlag = flag
				a.OutlierScore = col.Scores[i]
			case detectors.MethodZScore:
				a.ZScoreFlag = flag
				a.ZScore = col.Scores[i]
			case detectors.MethodIQR:
				a.IQRFlag = flag
				a.IQRLower = col.Lower
				a.IQRUpper = col.Upper
			case detectors.MethodServiceLevel:
				a.GroupFlag = flag
			}
			if flag {
				a.ConsensusScore++
			}
		}
		a.IsAnomaly = a.ConsensusScore >= ConsensusThreshold
		if active > 0 {
			a.Confidence = float64(a.ConsensusScore) / active
		}
		out[i] = a
	}
	return out
}

// insufficient builds the all-false result for tables below MinSamples.
func (e *Ensemble) insufficient(t cost.Table) *Result {
	res := &Result{
		Records:   make([]AnnotatedRecord, t.Len()),
		Grouped:   t.Grouped,
		State:     StateInsufficient,
		Triggers:  map[detectors.Method]int{},
		Durations: map[detectors.Method]time.Duration{},
	}
	for i, rec := range t.Records {
		res.Records[i] = AnnotatedRecord{Record: rec}
	}
	return res
}
