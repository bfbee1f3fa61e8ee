// Package config handles twin daemon configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/gate"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/service"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region types

// Config is the root configuration structure.
type Config struct {
	DBPath     string          `yaml:"db_path"`
	ListenAddr string          `yaml:"listen_addr"`
	LogMode    string          `yaml:"log_mode"` // "prod" | "dev"
	HistoryCap int             `yaml:"history_cap"`
	Gate       GateSection     `yaml:"gate"`
	Filter     FilterSection   `yaml:"filter"`
	Ensemble   EnsembleSection `yaml:"ensemble"`
}

// GateSection holds admission-gate settings.
type GateSection struct {
	MinQuality      float64 `yaml:"min_quality"`
	MaxFutureSkewH  float64 `yaml:"max_future_skew_hours"`
	MaxAgeDays      float64 `yaml:"max_age_days"`
	AttenuateBelowQ float64 `yaml:"attenuate_below_quality"`
}

// FilterSection holds per-variable filter settings.
type FilterSection struct {
	VarianceFloor      float64 `yaml:"variance_floor"`
	SmoothingAlpha     float64 `yaml:"smoothing_alpha"`
	OutlierThreshold   float64 `yaml:"outlier_threshold"`
	OutlierAttenuation float64 `yaml:"outlier_attenuation"`
	MaxGain            float64 `yaml:"max_gain"`
}

// EnsembleSection holds ensemble filter settings.
type EnsembleSection struct {
	Members   int     `yaml:"members"`
	Inflation float64 `yaml:"inflation"`
}

// #endregion types

// #region defaults

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DBPath:     "twin_state.db",
		ListenAddr: "localhost:50061",
		LogMode:    "prod",
		HistoryCap: 500,
		Gate: GateSection{
			MinQuality:      0.05,
			MaxFutureSkewH:  1.0,
			MaxAgeDays:      30,
			AttenuateBelowQ: 0.5,
		},
		Filter: FilterSection{
			VarianceFloor:      1e-4,
			SmoothingAlpha:     0.3,
			OutlierThreshold:   9.0,
			OutlierAttenuation: 0.1,
			MaxGain:            1.0,
		},
		Ensemble: EnsembleSection{
			Members:   50,
			Inflation: 1.02,
		},
	}
}

// #endregion defaults

// #region load

// Load reads configuration: defaults, overlaid by the YAML file at path if
// it exists, overlaid by environment variables. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.DBPath = envOr("TWIN_DB", cfg.DBPath)
	cfg.ListenAddr = envOr("TWIN_LISTEN", cfg.ListenAddr)
	cfg.LogMode = envOr("TWIN_LOG_MODE", cfg.LogMode)
	cfg.HistoryCap = envOrInt("TWIN_HISTORY_CAP", cfg.HistoryCap)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HistoryCap <= 0 {
		return fmt.Errorf("history_cap must be positive, got %d", c.HistoryCap)
	}
	if c.LogMode != "prod" && c.LogMode != "dev" {
		return fmt.Errorf("log_mode must be prod or dev, got %q", c.LogMode)
	}
	if c.Ensemble.Members < 2 {
		return fmt.Errorf("ensemble members must be at least 2, got %d", c.Ensemble.Members)
	}
	return nil
}

// #endregion load

// #region service

// Service maps the file configuration onto a runtime service configuration,
// leaving unspecified knobs at their package defaults.
func (c *Config) Service() service.Config {
	sc := service.DefaultConfig()
	sc.HistoryCap = c.HistoryCap
	sc.Gate = gate.GateConfig{
		MinQuality:      c.Gate.MinQuality,
		MaxFutureSkew:   c.Gate.MaxFutureSkewH,
		MaxAgeDays:      c.Gate.MaxAgeDays,
		AttenuateBelowQ: c.Gate.AttenuateBelowQ,
	}
	sc.Measure = twin.MeasureConfig{
		VarianceFloor:      c.Filter.VarianceFloor,
		SmoothingAlpha:     c.Filter.SmoothingAlpha,
		OutlierThreshold:   c.Filter.OutlierThreshold,
		OutlierAttenuation: c.Filter.OutlierAttenuation,
		MaxGain:            c.Filter.MaxGain,
	}
	sc.Ensemble.Members = c.Ensemble.Members
	sc.Ensemble.Inflation = c.Ensemble.Inflation
	return sc
}

// #endregion service

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// #endregion helpers
