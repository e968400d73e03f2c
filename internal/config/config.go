// Package config loads costguard settings from defaults, a YAML file,
// COSTGUARD_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/ensemble"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "COSTGUARD"

// Config is the complete application configuration.
type Config struct {
	Detection ensemble.Config `mapstructure:"detection"`
	Input     InputConfig     `mapstructure:"input"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// InputConfig locates the cost data.
type InputConfig struct {
	Path        string `mapstructure:"path"`
	DateColumn  string `mapstructure:"date_column"`
	CostColumn  string `mapstructure:"cost_column"`
	GroupColumn string `mapstructure:"group_column"`
}

// AlertsConfig controls report output.
type AlertsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Save      bool   `mapstructure:"save"`
	Top       int    `mapstructure:"top"`
}

// LoggingConfig controls the application logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
	// Hold keeps the endpoint up after the run until interrupted.
	Hold bool `mapstructure:"hold"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector; empty disables tracing.
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Detection: ensemble.DefaultConfig(),
		Input: InputConfig{
			Path:        "data/aws_costs.csv",
			DateColumn:  "date",
			CostColumn:  "cost_usd",
			GroupColumn: "service_name",
		},
		Alerts: AlertsConfig{
			OutputDir: "alerts",
			Save:      true,
			Top:       10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  "finops-ai-detector",
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"input":             "input.path",
	"contamination":     "detection.contamination",
	"z-score-threshold": "detection.z_score_threshold",
	"iqr-multiplier":    "detection.iqr_multiplier",
	"min-samples":       "detection.min_samples",
	"output-dir":        "alerts.output_dir",
	"save":              "alerts.save",
	"top":               "alerts.top",
	"log-level":         "logging.level",
	"log-file":          "logging.file",
	"metrics-addr":      "metrics.addr",
	"hold":              "metrics.hold",
	"otlp-endpoint":     "tracing.endpoint",
}

// Load builds a Config. path may be empty; a missing file is not an
// error. Flags that were set explicitly override every other source.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("detection.contamination", d.Detection.Contamination)
	v.SetDefault("detection.z_score_threshold", d.Detection.ZScoreThreshold)
	v.SetDefault("detection.iqr_multiplier", d.Detection.IQRMultiplier)
	v.SetDefault("detection.min_samples", d.Detection.MinSamples)
	v.SetDefault("detection.estimators", d.Detection.Estimators)
	v.SetDefault("detection.max_samples", d.Detection.MaxSamples)
	v.SetDefault("detection.seed", d.Detection.Seed)

	v.SetDefault("input.path", d.Input.Path)
	v.SetDefault("input.date_column", d.Input.DateColumn)
	v.SetDefault("input.cost_column", d.Input.CostColumn)
	v.SetDefault("input.group_column", d.Input.GroupColumn)

	v.SetDefault("alerts.output_dir", d.Alerts.OutputDir)
	v.SetDefault("alerts.save", d.Alerts.Save)
	v.SetDefault("alerts.top", d.Alerts.Top)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.hold", d.Metrics.Hold)

	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Input.Path == "" {
		errs = append(errs, errors.New("input.path is required"))
	}
	if c.Input.DateColumn == "" || c.Input.CostColumn == "" {
		errs = append(errs, errors.New("input.date_column and input.cost_column are required"))
	}
	if c.Alerts.Save && c.Alerts.OutputDir == "" {
		errs = append(errs, errors.New("alerts.output_dir is required when alerts.save is set"))
	}
	if c.Alerts.Top < 1 {
		errs = append(errs, fmt.Errorf("alerts.top must be at least 1, got %d", c.Alerts.Top))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampling_rate must be in [0, 1], got %v", c.Tracing.SamplingRate))
	}
	if c.Metrics.Hold && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.hold requires metrics.addr"))
	}
	return errors.Join(errs...)
}
