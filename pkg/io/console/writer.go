// Package console prints alert reports for humans.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/alerting"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

// DefaultTop is the number of alerts printed in full.
const DefaultTop = 10

var rule = strings.Repeat("=", 80)

// Writer renders reports as plain text.
type Writer struct {
	out io.Writer
	top int
}

// Option configures a console writer.
type Option func(*Writer)

// WithTop sets how many alerts are printed in full.
func WithTop(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.top = n
		}
	}
}

// NewWriter creates a Writer printing to out.
func NewWriter(out io.Writer, opts ...Option) *Writer {
	w := &Writer{out: out, top: DefaultTop}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write prints the report header, severity breakdown, top alerts, method
// performance and per-service breakdown.
func (w *Writer) Write(report *alerting.Report) error {
	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "\n%s\nFINOPS ANOMALY DETECTION ALERT REPORT\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Records Analyzed: %d\n", s.TotalRecords)
	fmt.Fprintf(&b, "Anomalies Detected: %d\n", s.AnomalyCount)
	fmt.Fprintf(&b, "Detection Rate: %.2f%%\n", s.AnomalyRate*100)
	fmt.Fprintf(&b, "Total Cost Analyzed: %s\n", alerting.FormatUSD(s.TotalCost))
	fmt.Fprintf(&b, "Anomalous Cost: %s\n", alerting.FormatUSD(s.AnomalyCost))
	fmt.Fprintf(&b, "%s\n", rule)

	if len(report.Alerts) == 0 {
		fmt.Fprintf(&b, "\nNo anomalies detected - all costs within normal range!\n%s\n\n", rule)
		_, err := io.WriteString(w.out, b.String())
		return err
	}

	fmt.Fprintf(&b, "\nSEVERITY BREAKDOWN:\n")
	for _, sev := range alerting.Severities {
		fmt.Fprintf(&b, "   %-9s %d\n", string(sev)+":", report.Count(sev))
	}

	dash := strings.Repeat("-", 80)
	fmt.Fprintf(&b, "\n%s\nTOP ALERTS (by severity):\n%s\n", dash, dash)
	for i, a := range report.Alerts {
		if i == w.top {
			break
		}
		fmt.Fprintf(&b, "\n[%s] Alert #%d: %s\n", a.Severity, i+1, a.ID)
		fmt.Fprintf(&b, "   Severity: %s (Score: %.2f)\n", a.Severity, a.SeverityScore)
		fmt.Fprintf(&b, "   Date: %s\n", a.Date)
		fmt.Fprintf(&b, "   Service: %s\n", a.Service)
		fmt.Fprintf(&b, "   Cost: %s (Avg: %s)\n", alerting.FormatUSD(a.CostUSD), alerting.FormatUSD(a.AverageCost))
		fmt.Fprintf(&b, "   Deviation: %+.1f%%\n", a.DeviationPct)
		fmt.Fprintf(&b, "   Confidence: %.0f%%\n", a.Confidence*100)
		fmt.Fprintf(&b, "   Methods: %s\n", strings.Join(a.DetectionMethods, ", "))
		fmt.Fprintf(&b, "   -> %s\n", a.Recommendation)
	}
	if extra := len(report.Alerts) - w.top; extra > 0 {
		fmt.Fprintf(&b, "\n... and %d more alerts (see JSON report for full details)\n", extra)
	}
	fmt.Fprintf(&b, "\n%s\n", rule)

	if len(s.MethodsUsed) > 0 {
		fmt.Fprintf(&b, "\nDETECTION METHODS PERFORMANCE:\n")
		for _, m := range detectors.Methods {
			if n, ok := s.MethodsUsed[m]; ok {
				fmt.Fprintf(&b, "   - %s: %d detections\n", m.Title(), n)
			}
		}
	}

	if len(s.ByService) > 0 {
		fmt.Fprintf(&b, "\nANOMALIES BY SERVICE:\n")
		names := make([]string, 0, len(s.ByService))
		for name := range s.ByService {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g := s.ByService[name]
			if g.AnomalyCount == 0 {
				continue
			}
			fmt.Fprintf(&b, "   - %s: %d/%d (%.1f%%)\n", name, g.AnomalyCount, g.TotalRecords, g.AnomalyRate*100)
		}
	}
	fmt.Fprintf(&b, "\n%s\n\n", rule)

	_, err := io.WriteString(w.out, b.String())
	return err
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}
