package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/naveedhsk/finops-ai-observability-poc/internal/config"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/logging"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/metrics"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/pipeline"
	"github.com/naveedhsk/finops-ai-observability-poc/internal/tracing"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/console"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/io/json"
)

const shutdownTimeout = 5 * time.Second

func newDetectCmd() *cobra.Command {
	var configPath string
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect cost anomalies in a CSV file and report alerts",
		Example: `  costguard detect --input data/aws_costs.csv
  costguard detect --config costguard.yaml --metrics-addr :8000 --hold`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runDetect(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	f.StringP("input", "i", d.Input.Path, "cost CSV file")
	f.Float64("contamination", d.Detection.Contamination, "expected anomaly fraction for the isolation forest")
	f.Float64("z-score-threshold", d.Detection.ZScoreThreshold, "z-score above which a cost is flagged")
	f.Float64("iqr-multiplier", d.Detection.IQRMultiplier, "IQR fence multiplier")
	f.Int("min-samples", d.Detection.MinSamples, "minimum records for detection and per-service analysis")
	f.StringP("output-dir", "o", d.Alerts.OutputDir, "directory for saved alert reports")
	f.Bool("save", d.Alerts.Save, "save the alert report as JSON")
	f.Int("top", d.Alerts.Top, "number of alerts printed in full")
	f.String("log-level", d.Logging.Level, "log level: debug, info, warn or error")
	f.String("log-file", d.Logging.File, "also write JSON logs to this rotated file")
	f.String("metrics-addr", d.Metrics.Addr, "serve Prometheus metrics on this address")
	f.Bool("hold", d.Metrics.Hold, "keep serving metrics after the run until interrupted")
	f.String("otlp-endpoint", d.Tracing.Endpoint, "OTLP/HTTP collector for traces")
	return cmd
}

func runDetect(cmd *cobra.Command, cfg *config.Config) (err error) {
	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SamplingRate)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := shutdownTracing(sctx); serr != nil {
			logger.Warn("trace exporter shutdown failed", zap.Error(serr))
		}
	}()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		_, stopServer, err := serveMetrics(cfg.Metrics.Addr, m, logger)
		if err != nil {
			return err
		}
		defer stopServer()
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithWriter(console.NewWriter(cmd.OutOrStdout(), console.WithTop(cfg.Alerts.Top))),
	}
	var saved *json.Writer
	if cfg.Alerts.Save {
		saved, err = json.NewWriter(cfg.Alerts.OutputDir)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithWriter(saved))
	}

	if _, err := pipeline.New(cfg, opts...).Run(ctx); err != nil {
		return err
	}
	if saved != nil {
		logger.Info("alert report saved", zap.String("path", saved.LastPath()))
	}

	if cfg.Metrics.Hold {
		logger.Info("metrics endpoint held open, press Ctrl+C to exit",
			zap.String("addr", cfg.Metrics.Addr))
		<-ctx.Done()
		logger.Info("shutting down")
	}
	return nil
}

// serveMetrics starts the /metrics and /healthz endpoints. It returns the
// bound address and a function that stops the server.
func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	bound := ln.Addr().String()
	logger.Info("serving metrics", zap.String("addr", bound))

	return bound, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
