// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

// Metrics holds the pipeline collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	RecordsIngested    prometheus.Counter
	RowsDropped        prometheus.Counter
	AnomaliesDetected  prometheus.Counter
	AnomalyAmount      prometheus.Gauge
	CostAnalyzed       prometheus.Gauge
	ProcessingDuration *prometheus.HistogramVec
	DetectorTriggers   *prometheus.CounterVec
	DetectorFailures   *prometheus.CounterVec
	DetectorDuration   *prometheus.HistogramVec
	AlertsGenerated    *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finops_data_ingestion_total",
			Help: "Total number of cost records ingested",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finops_data_rows_dropped_total",
			Help: "Total number of input rows dropped during ingestion",
		}),
		AnomaliesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finops_anomalies_detected_total",
			Help: "Total number of cost anomalies detected",
		}),
		AnomalyAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finops_anomaly_amount_usd",
			Help: "Dollar amount of the most recently detected anomaly",
		}),
		CostAnalyzed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finops_total_cost_analyzed_usd",
			Help: "Total cost amount analyzed",
		}),
		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finops_processing_duration_seconds",
			Help:    "Time spent processing cost data",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"phase"}),
		DetectorTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finops_detector_triggers_total",
			Help: "Total number of rows flagged per detection method",
		}, []string{"method"}),
		DetectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finops_detector_failures_total",
			Help: "Total number of detector runs that failed and were downgraded",
		}, []string{"method"}),
		DetectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finops_detector_duration_seconds",
			Help:    "Detector run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		}, []string{"method"}),
		AlertsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finops_alerts_generated_total",
			Help: "Total number of alerts generated by severity",
		}, []string{"severity"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.RecordsIngested,
		m.RowsDropped,
		m.AnomaliesDetected,
		m.AnomalyAmount,
		m.CostAnalyzed,
		m.ProcessingDuration,
		m.DetectorTriggers,
		m.DetectorFailures,
		m.DetectorDuration,
		m.AlertsGenerated,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIngestion records a completed load.
func (m *Metrics) RecordIngestion(records, dropped int, totalCost float64) {
	m.RecordsIngested.Add(float64(records))
	m.RowsDropped.Add(float64(dropped))
	m.CostAnalyzed.Set(totalCost)
}

// RecordAnomaly records a single anomalous amount.
func (m *Metrics) RecordAnomaly(amount float64) {
	m.AnomaliesDetected.Inc()
	m.AnomalyAmount.Set(amount)
}

// RecordDetector records the outcome of one detector run.
func (m *Metrics) RecordDetector(method detectors.Method, triggers int, failed bool, d time.Duration) {
	m.DetectorTriggers.WithLabelValues(method.String()).Add(float64(triggers))
	if failed {
		m.DetectorFailures.WithLabelValues(method.String()).Inc()
	}
	m.DetectorDuration.WithLabelValues(method.String()).Observe(d.Seconds())
}

// ObservePhase records the duration of a pipeline phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.ProcessingDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordAlert counts one alert of the given severity.
func (m *Metrics) RecordAlert(severity string) {
	m.AlertsGenerated.WithLabelValues(severity).Inc()
}
