package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/naveedhsk/finops-ai-observability-poc/internal/metrics"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommandWithIO(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeCosts(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,service_name,cost_usd\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		amount := 100.0
		if i == 20 {
			amount = 1000
		}
		fmt.Fprintf(&b, "%s,EC2,%.2f\n", day.AddDate(0, 0, i).Format("2006-01-02"), amount)
	}
	path := filepath.Join(t.TempDir(), "costs.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "costguard dev (commit none, built unknown)\n", out)
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	out, logs, err := execute(t, "detect",
		"--input", writeCosts(t),
		"--output-dir", dir,
		"--metrics-addr", "127.0.0.1:0",
		"--log-level", "info",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "FINOPS ANOMALY DETECTION ALERT REPORT")
	assert.Contains(t, out, "Anomalies Detected: 1")
	assert.Contains(t, logs, "alert report saved")
	assert.Contains(t, logs, "serving metrics")

	saved, err := filepath.Glob(filepath.Join(dir, "alerts_*.json"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestDetectNoSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	_, _, err := execute(t, "detect", "--input", writeCosts(t), "--output-dir", dir, "--save=false")
	require.NoError(t, err)
	assert.NoDirExists(t, dir)
}

func TestDetectConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "costguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
input:
  path: %s
alerts:
  save: false
detection:
  min_samples: 40
`, writeCosts(t))), 0o644))

	out, logs, err := execute(t, "detect", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Anomalies Detected: 0")
	assert.Contains(t, logs, "insufficient data")
}

func TestDetectInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "detect", "--input", writeCosts(t), "--contamination", "0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contamination")
}

func TestDetectHoldRequiresAddr(t *testing.T) {
	_, _, err := execute(t, "detect", "--input", writeCosts(t), "--hold")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.hold")
}

func TestDetectMissingInput(t *testing.T) {
	_, _, err := execute(t, "detect", "--input", filepath.Join(t.TempDir(), "absent.csv"), "--save=false")
	assert.Error(t, err)
}

func TestDetectRejectsArgs(t *testing.T) {
	_, _, err := execute(t, "detect", "extra")
	assert.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	m := metrics.New()
	m.RecordIngestion(5, 0, 50)

	addr, stop, err := serveMetrics("127.0.0.1:0", m, zap.NewNop())
	require.NoError(t, err)
	defer stop()

	get := func(path string) (int, string) {
		resp, err := http.Get("http://" + addr + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "finops_data_ingestion_total 5")

	code, _ = get("/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServeMetricsAddrInUse(t *testing.T) {
	addr, stop, err := serveMetrics("127.0.0.1:0", metrics.New(), zap.NewNop())
	require.NoError(t, err)
	defer stop()

	_, _, err = serveMetrics(addr, metrics.New(), zap.NewNop())
	assert.Error(t, err)
}
