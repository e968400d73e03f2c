package io_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/alerting"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/cost"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/ensemble"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/console"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/csv"
	jsonio "github.com/naveedhsk/finops-ai-observability-poc/pkg/io/json"
)

var (
	_ io.Reader = (*csv.Reader)(nil)
	_ io.Writer = (*jsonio.Writer)(nil)
	_ io.Writer = (*console.Writer)(nil)
)

func sampleReport(t *testing.T, alerts int) *alerting.Report {
	t.Helper()
	var records []ensemble.AnnotatedRecord
	for i := 0; i < 20; i++ {
		records = append(records, ensemble.AnnotatedRecord{
			Record: cost.Record{Date: time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC), Amount: 100, Group: "EC2"},
		})
	}
	for i := 0; i < alerts; i++ {
		records[i].Amount = 1500
		records[i].ZScoreFlag = true
		records[i].IQRFlag = true
		records[i].ConsensusScore = 2
		records[i].IsAnomaly = true
		records[i].Confidence = 0.5
	}
	now := time.Date(2025, 2, 1, 12, 30, 0, 0, time.UTC)
	gen := alerting.NewGenerator(alerting.WithClock(func() time.Time { return now }))
	return gen.Generate(records, ensemble.Summarize(records, true))
}

func TestJSONWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "alerts")
	w, err := jsonio.NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	report := sampleReport(t, 1)
	require.NoError(t, w.Write(report))

	assert.Equal(t, filepath.Join(dir, "alerts_20250201_123000.json"), w.LastPath())

	raw, err := os.ReadFile(w.LastPath())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, float64(1), got["alert_count"])
	assert.Contains(t, got, "summary")
	assert.Contains(t, got, "severity_distribution")
	alertsField, ok := got["alerts"].([]any)
	require.True(t, ok)
	assert.Len(t, alertsField, 1)
}

func TestJSONWriterKeepsReportsFromSameSecond(t *testing.T) {
	dir := t.TempDir()
	w, err := jsonio.NewWriter(dir)
	require.NoError(t, err)

	first, second := sampleReport(t, 1), sampleReport(t, 2)
	require.NoError(t, w.Write(first))
	firstPath := w.LastPath()
	require.NoError(t, w.Write(second))
	secondPath := w.LastPath()
	require.NoError(t, w.Write(second))

	assert.Equal(t, filepath.Join(dir, "alerts_20250201_123000.json"), firstPath)
	assert.Equal(t, filepath.Join(dir, "alerts_20250201_123000_1.json"), secondPath)
	assert.Equal(t, filepath.Join(dir, "alerts_20250201_123000_2.json"), w.LastPath())

	var got struct {
		ReportID   string `json:"report_id"`
		AlertCount int    `json:"alert_count"`
	}
	raw, err := os.ReadFile(firstPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, first.ID, got.ReportID)
	assert.Equal(t, 1, got.AlertCount)

	raw, err = os.ReadFile(secondPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, second.ID, got.ReportID)
	assert.Equal(t, 2, got.AlertCount)
}

func TestConsoleWriter(t *testing.T) {
	t.Run("with alerts", func(t *testing.T) {
		var buf bytes.Buffer
		w := console.NewWriter(&buf, console.WithTop(2))

		require.NoError(t, w.Write(sampleReport(t, 3)))

		out := buf.String()
		assert.Contains(t, out, "FINOPS ANOMALY DETECTION ALERT REPORT")
		assert.Contains(t, out, "Anomalies Detected: 3")
		assert.Contains(t, out, "Total Cost Analyzed: $6,200.00")
		assert.Contains(t, out, "Alert #2")
		assert.NotContains(t, out, "Alert #3")
		assert.Contains(t, out, "... and 1 more alerts")
		assert.Contains(t, out, "Z-Score: 3 detections")
		assert.Contains(t, out, "EC2: 3/20 (15.0%)")
	})

	t.Run("no alerts", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, console.NewWriter(&buf).Write(sampleReport(t, 0)))
		assert.Contains(t, buf.String(), "No anomalies detected")
	})
}
