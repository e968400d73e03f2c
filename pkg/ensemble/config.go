package ensemble

import (
	"errors"
	"fmt"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/group"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/iqr"
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors/zscore"
)

// Config holds the tuning parameters of the ensemble.
type Config struct {
	// Contamination is the expected proportion of outliers for the isolation forest.
	Contamination float64 `mapstructure:"contamination" json:"contamination"`
	// ZScoreThreshold applies to both the global and the per-group z-score tests.
	ZScoreThreshold float64 `mapstructure:"z_score_threshold" json:"z_score_threshold"`
	// IQRMultiplier scales the interquartile range when building the fences.
	IQRMultiplier float64 `mapstructure:"iqr_multiplier" json:"iqr_multiplier"`
	// MinSamples gates both the whole run and every group.
	MinSamples int `mapstructure:"min_samples" json:"min_samples"`
	// Estimators is the number of isolation trees.
	Estimators int `mapstructure:"estimators" json:"estimators"`
	// MaxSamples caps the subsample each isolation tree is built from.
	MaxSamples int `mapstructure:"max_samples" json:"max_samples"`
	// Seed makes the isolation forest reproducible.
	Seed int64 `mapstructure:"seed" json:"seed"`
}

// DefaultConfig returns the standard ensemble configuration.
func DefaultConfig() Config {
	return Config{
		Contamination:   0.05,
		ZScoreThreshold: zscore.DefaultThreshold,
		IQRMultiplier:   iqr.DefaultMultiplier,
		MinSamples:      group.DefaultMinSamples,
		Estimators:      100,
		MaxSamples:      256,
		Seed:            42,
	}
}

// Validate reports every out-of-range parameter.
func (c Config) Validate() error {
	var errs []error
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("contamination must be in (0, 0.5], got %v", c.Contamination))
	}
	if c.ZScoreThreshold <= 0 {
		errs = append(errs, fmt.Errorf("z_score_threshold must be positive, got %v", c.ZScoreThreshold))
	}
	if c.IQRMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("iqr_multiplier must be positive, got %v", c.IQRMultiplier))
	}
	if c.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("min_samples must be at least 1, got %d", c.MinSamples))
	}
	if c.Estimators < 1 {
		errs = append(errs, fmt.Errorf("estimators must be at least 1, got %d", c.Estimators))
	}
	if c.MaxSamples < 2 {
		errs = append(errs, fmt.Errorf("max_samples must be at least 2, got %d", c.MaxSamples))
	}
	return errors.Join(errs...)
}
