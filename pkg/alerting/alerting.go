// Package alerting turns annotated cost records into severity-ranked alerts.
package alerting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/ensemble"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// UnknownService labels alerts for records without a group.
const UnknownService = "Unknown"

// SeverityFor maps a severity score to a Severity.
func SeverityFor(score float64) Severity {
	switch {
	case score >= 3:
		return SeverityCritical
	case score >= 2:
		return SeverityHigh
	case score >= 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Details carries the raw detector diagnostics of an alert.
type Details struct {
	AnomalyScore int     `json:"anomaly_score"`
	ZScore       float64 `json:"zscore"`
	IFScore      float64 `json:"if_score"`
	IQRLower     float64 `json:"iqr_lower"`
	IQRUpper     float64 `json:"iqr_upper"`
}

// Alert describes one anomalous cost record.
type Alert struct {
	ID               string    `json:"alert_id"`
	Timestamp        time.Time `json:"timestamp"`
	Severity         Severity  `json:"severity"`
	SeverityScore    float64   `json:"severity_score"`
	Date             string    `json:"date"`
	Service          string    `json:"service"`
	CostUSD          float64   `json:"cost_usd"`
	AverageCost      float64   `json:"average_cost"`
	DeviationPct     float64   `json:"deviation_pct"`
	Confidence       float64   `json:"confidence"`
	DetectionMethods []string  `json:"detection_methods"`
	Details          Details   `json:"details"`
	Recommendation   string    `json:"recommendation"`
}

// Report is the complete output of one alerting run.
type Report struct {
	ID                   string           `json:"report_id"`
	GeneratedAt          time.Time        `json:"generated_at"`
	Summary              ensemble.Summary `json:"summary"`
	Alerts               []Alert          `json:"alerts"`
	AlertCount           int              `json:"alert_count"`
	SeverityDistribution map[string]int   `json:"severity_distribution"`
}

// Count returns the number of alerts with the given severity.
func (r *Report) Count(s Severity) int {
	n := 0
	for _, a := range r.Alerts {
		if a.Severity == s {
			n++
		}
	}
	return n
}

// Generator builds alert reports.
type Generator struct {
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds a report with one alert per anomalous record, sorted by
// severity score, highest first. Ties keep input order.
func (g *Generator) Generate(records []ensemble.AnnotatedRecord, summary ensemble.Summary) *Report {
	now := g.now()
	report := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: now,
		Summary:     summary,
		Alerts:      []Alert{},
	}

	avg := averageCost(records)
	for i, rec := range records {
		if !rec.IsAnomaly {
			continue
		}
		report.Alerts = append(report.Alerts, g.alert(i, rec, avg, now))
	}

	sort.SliceStable(report.Alerts, func(i, j int) bool {
		return report.Alerts[i].SeverityScore > report.Alerts[j].SeverityScore
	})

	report.AlertCount = len(report.Alerts)
	report.SeverityDistribution = make(map[string]int, len(Severities))
	for _, s := range Severities {
		report.SeverityDistribution[strings.ToLower(string(s))] = report.Count(s)
	}

	if report.AlertCount == 0 {
		g.logger.Info("no anomalies detected, all costs within normal range")
	} else {
		g.logger.Info("generated alerts",
			zap.Int("alerts", report.AlertCount),
			zap.Int("critical", report.Count(SeverityCritical)),
			zap.Int("high", report.Count(SeverityHigh)))
	}
	return report
}

func (g *Generator) alert(row int, rec ensemble.AnnotatedRecord, avg float64, now time.Time) Alert {
	score := rec.Confidence * float64(rec.ConsensusScore)
	severity := SeverityFor(score)

	service := rec.Group
	if service == "" {
		service = UnknownService
	}

	var deviation float64
	if avg > 0 {
		deviation = (rec.Amount - avg) / avg * 100
	}

	methods := make([]string, 0, rec.ConsensusScore)
	for _, m := range rec.FlaggedBy() {
		methods = append(methods, m.Title())
	}

	return Alert{
		ID:               fmt.Sprintf("ALERT-%s-%d", now.Format("20060102-150405"), row),
		Timestamp:        now,
		Severity:         severity,
		SeverityScore:    score,
		Date:             rec.Date.Format("2006-01-02"),
		Service:          service,
		CostUSD:          rec.Amount,
		AverageCost:      avg,
		DeviationPct:     deviation,
		Confidence:       rec.Confidence,
		DetectionMethods: methods,
		Details: Details{
			AnomalyScore: rec.ConsensusScore,
			ZScore:       rec.ZScore,
			IFScore:      rec.OutlierScore,
			IQRLower:     rec.IQRLower,
			IQRUpper:     rec.IQRUpper,
		},
		Recommendation: Recommendation(severity, service, rec.Amount),
	}
}

// Recommendation returns the fixed advice text for a severity.
func Recommendation(s Severity, service string, amount float64) string {
	switch s {
	case SeverityCritical:
		return fmt.Sprintf("IMMEDIATE ACTION REQUIRED: Investigate %s cost spike of %s. "+
			"Check for unauthorized usage, misconfigurations, or runaway processes.", service, FormatUSD(amount))
	case SeverityHigh:
		return fmt.Sprintf("HIGH PRIORITY: Review %s costs. Verify this usage was planned. "+
			"Consider setting up cost alerts and budget limits.", service)
	case SeverityMedium:
		return fmt.Sprintf("REVIEW RECOMMENDED: Monitor %s for continued elevated costs. "+
			"Document if this is expected seasonal variation.", service)
	default:
		return fmt.Sprintf("FYI: Slight variation in %s costs detected. "+
			"No immediate action required but keep monitoring.", service)
	}
}

func averageCost(records []ensemble.AnnotatedRecord) float64 {
	amounts := make([]float64, len(records))
	for i, r := range records {
		amounts[i] = r.Amount
	}
	return detectors.Mean(amounts)
}

// FormatUSD renders v as dollars rounded to cents with thousands separators.
func FormatUSD(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + "." + frac
}
