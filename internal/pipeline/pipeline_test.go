package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/naveedhsk/finops-ai-observability-poc/internal/config"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/metrics"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/alerting"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/cost"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/ensemble"
	pkgio "github.com/naveedhsk/finops-ai-observability-poc/pkg/io"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/console"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/csv"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/json"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// writeCostFile writes 29 days at $100 and one day at $1000 plus one
// unparseable row.
func writeCostFile(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,cost_usd\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		amount := 100.0
		if i == 14 {
			amount = 1000
		}
		fmt.Fprintf(&b, "%s,%.2f\n", day.AddDate(0, 0, i).Format("2006-01-02"), amount)
	}
	b.WriteString("yesterday,55\n")

	path := filepath.Join(t.TempDir(), "costs.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T, input string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Input.Path = input
	cfg.Alerts.OutputDir = t.TempDir()
	return cfg
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestRun(t *testing.T) {
	spans := recordSpans(t)
	cfg := testConfig(t, writeCostFile(t))

	jw, err := json.NewWriter(cfg.Alerts.OutputDir)
	require.NoError(t, err)
	var screen bytes.Buffer
	m := metrics.New()

	p := New(cfg,
		WithMetrics(m),
		WithClock(func() time.Time { return fixedNow }),
		WithWriter(console.NewWriter(&screen)),
		WithWriter(jw),
	)
	out, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30, out.Table.Len())
	assert.Equal(t, 1, out.Dropped)
	assert.Equal(t, 3900.0, out.Stats.TotalCost)
	assert.Equal(t, ensemble.StateSufficient, out.Result.State)

	assert.Equal(t, 1, out.Summary.AnomalyCount)
	assert.Equal(t, 1000.0, out.Summary.AnomalyCost)
	require.Equal(t, 1, out.Report.AlertCount)
	alert := out.Report.Alerts[0]
	assert.Equal(t, alerting.SeverityCritical, alert.Severity)
	assert.Equal(t, 1000.0, alert.CostUSD)
	assert.Equal(t, 1.0, alert.Confidence)

	assert.Contains(t, screen.String(), "FINOPS ANOMALY DETECTION ALERT REPORT")
	assert.Equal(t, filepath.Join(cfg.Alerts.OutputDir, "alerts_20240301_120000.json"), jw.LastPath())
	assert.FileExists(t, jw.LastPath())

	assert.Equal(t, 30.0, testutil.ToFloat64(m.RecordsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped))
	assert.Equal(t, 3900.0, testutil.ToFloat64(m.CostAnalyzed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnomaliesDetected))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.AnomalyAmount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectorTriggers.WithLabelValues("zscore")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsGenerated.WithLabelValues("CRITICAL")))

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"pipeline.load", "pipeline.detect", "pipeline.summarize", "pipeline.alert", "pipeline.run",
	}, names)
}

func TestRunInsufficientData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"date,cost_usd,service_name\n2024-01-01,10,EC2\n2024-01-02,5000,EC2\n"), 0o644))

	out, err := New(testConfig(t, path)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ensemble.StateInsufficient, out.Result.State)
	assert.Zero(t, out.Summary.AnomalyCount)
	assert.Zero(t, out.Report.AlertCount)
	assert.Equal(t, 0.0, out.Summary.AnomalyRate)
}

func TestRunMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,amount\n2024-01-01,10\n"), 0o644))

	_, err := New(testConfig(t, path)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, csv.ErrMissingColumn))
}

func TestRunMissingFile(t *testing.T) {
	_, err := New(testConfig(t, filepath.Join(t.TempDir(), "absent.csv"))).Run(context.Background())
	assert.Error(t, err)
}

type fakeReader struct {
	table  cost.Table
	closed bool
}

func (r *fakeReader) Read() (cost.Table, error) { return r.table, nil }
func (r *fakeReader) Close() error              { r.closed = true; return nil }

type failingWriter struct{ closed bool }

func (w *failingWriter) Write(*alerting.Report) error { return errors.New("disk full") }
func (w *failingWriter) Close() error                 { w.closed = true; return nil }

func TestRunWriterFailure(t *testing.T) {
	src := &fakeReader{table: cost.Table{Records: []cost.Record{
		{Date: fixedNow, Amount: 1},
	}}}
	w := &failingWriter{}

	p := New(testConfig(t, "unused.csv"), WithWriter(w))
	p.open = func(string) (pkgio.Reader, error) { return src, nil }

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, src.closed)
	assert.True(t, w.closed)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(t, writeCostFile(t))).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
