// Package pipeline runs one load, detect, summarize and alert pass over a
// cost file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/naveedhsk/finops-ai-observability-poc/internal/config"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/metrics"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/tracing"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/alerting"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/cost"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/ensemble"
	pkgio "github.com/naveedhsk/finops-ai-observability-poc/pkg/io"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/csv"
)

// Phase names used for spans and the processing duration histogram.
const (
	PhaseLoad      = "load"
	PhaseDetect    = "detect"
	PhaseSummarize = "summarize"
	PhaseAlert     = "alert"
)

// Outcome is everything a run produced.
type Outcome struct {
	Table   cost.Table
	Dropped int
	Stats   csv.Stats
	Result  *ensemble.Result
	Summary ensemble.Summary
	Report  *alerting.Report
}

// Pipeline wires the loader, the ensemble, the alert generator and the
// report writers.
type Pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	writers []pkgio.Writer
	now     func() time.Time
	open    func(path string) (pkgio.Reader, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithWriter adds a report writer. Writers run in the order added.
func WithWriter(w pkgio.Writer) Option {
	return func(p *Pipeline) {
		p.writers = append(p.writers, w)
	}
}

// WithClock overrides the report clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	p.open = p.openCSV
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p
}

func (p *Pipeline) openCSV(path string) (pkgio.Reader, error) {
	return csv.NewReader(path,
		csv.WithDateColumn(p.cfg.Input.DateColumn),
		csv.WithCostColumn(p.cfg.Input.CostColumn),
		csv.WithGroupColumn(p.cfg.Input.GroupColumn),
	)
}

// Run executes all phases. Writers are closed before Run returns.
func (p *Pipeline) Run(ctx context.Context) (out *Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.run",
		attribute.String("input.path", p.cfg.Input.Path))
	defer func() { tracing.End(span, err) }()
	defer func() {
		for _, w := range p.writers {
			if cerr := w.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("closing writer: %w", cerr))
			}
		}
	}()

	p.logger.Info("starting cost anomaly detection pipeline",
		zap.String("input", p.cfg.Input.Path),
		zap.String("trace_id", tracing.TraceIDFromContext(ctx)))
	start := time.Now()

	out = &Outcome{}
	if err := p.load(ctx, out); err != nil {
		return nil, err
	}
	if err := p.detect(ctx, out); err != nil {
		return nil, err
	}
	p.summarize(ctx, out)
	if err := p.alert(ctx, out); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline completed",
		zap.Int("records", out.Summary.TotalRecords),
		zap.Int("anomalies", out.Summary.AnomalyCount),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (p *Pipeline) load(ctx context.Context, out *Outcome) (err error) {
	_, span := tracing.StartSpan(ctx, "pipeline."+PhaseLoad)
	defer func() { tracing.End(span, err) }()
	start := time.Now()

	r, err := p.open(p.cfg.Input.Path)
	if err != nil {
		return fmt.Errorf("opening cost data: %w", err)
	}
	defer r.Close()

	table, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading cost data: %w", err)
	}
	if c, ok := r.(*csv.Reader); ok {
		out.Dropped = c.Dropped()
	}
	out.Table = table
	out.Stats = csv.Describe(table)

	p.metrics.RecordIngestion(table.Len(), out.Dropped, out.Stats.TotalCost)
	p.metrics.ObservePhase(PhaseLoad, time.Since(start))
	span.SetAttributes(
		attribute.Int("records", table.Len()),
		attribute.Int("dropped", out.Dropped),
		attribute.Bool("grouped", table.Grouped))

	p.logger.Info("loaded cost data",
		zap.Int("records", table.Len()),
		zap.Int("dropped", out.Dropped),
		zap.Bool("grouped", table.Grouped),
		zap.Float64("total_cost", out.Stats.TotalCost),
		zap.Float64("average_cost", out.Stats.AverageCost))
	if out.Dropped > 0 {
		p.logger.Warn("dropped invalid rows", zap.Int("rows", out.Dropped))
	}
	return nil
}

func (p *Pipeline) detect(ctx context.Context, out *Outcome) (err error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline."+PhaseDetect)
	defer func() { tracing.End(span, err) }()

	ens, err := ensemble.New(p.cfg.Detection, ensemble.WithLogger(p.logger))
	if err != nil {
		return fmt.Errorf("creating detector ensemble: %w", err)
	}
	res, err := ens.Detect(ctx, out.Table)
	if err != nil {
		return fmt.Errorf("detecting anomalies: %w", err)
	}
	out.Result = res

	failed := make(map[detectors.Method]bool, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.Method] = true
	}
	for _, m := range res.Methods {
		p.metrics.RecordDetector(m, res.Triggers[m], failed[m], res.Durations[m])
	}

	threshold := out.Stats.AverageCost
	for _, rec := range res.Anomalies() {
		p.metrics.RecordAnomaly(rec.Amount)
		p.logger.Warn("anomaly detected",
			zap.Time("date", rec.Date),
			zap.String("service", rec.Group),
			zap.Float64("amount", rec.Amount),
			zap.Float64("threshold", threshold))
	}
	p.metrics.ObservePhase(PhaseDetect, res.Elapsed)

	span.SetAttributes(
		attribute.String("state", res.State.String()),
		attribute.Int("anomalies", res.AnomalyCount()),
		attribute.Int("failures", len(res.Failures)))
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, out *Outcome) {
	_, span := tracing.StartSpan(ctx, "pipeline."+PhaseSummarize)
	defer span.End()
	start := time.Now()

	out.Summary = out.Result.Summary()
	p.metrics.ObservePhase(PhaseSummarize, time.Since(start))
	span.SetAttributes(
		attribute.Int("anomalies", out.Summary.AnomalyCount),
		attribute.Float64("anomaly_rate", out.Summary.AnomalyRate))
}

func (p *Pipeline) alert(ctx context.Context, out *Outcome) (err error) {
	_, span := tracing.StartSpan(ctx, "pipeline."+PhaseAlert)
	defer func() { tracing.End(span, err) }()
	start := time.Now()

	gen := alerting.NewGenerator(alerting.WithClock(p.now), alerting.WithLogger(p.logger))
	out.Report = gen.Generate(out.Result.Records, out.Summary)
	for _, a := range out.Report.Alerts {
		p.metrics.RecordAlert(string(a.Severity))
	}

	for _, w := range p.writers {
		if err := w.Write(out.Report); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	p.metrics.ObservePhase(PhaseAlert, time.Since(start))
	span.SetAttributes(attribute.Int("alerts", out.Report.AlertCount))
	return nil
}
