package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run the backup monitor.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Processing ProcessingConfig `yaml:"processing"`
	Detection  DetectionConfig  `yaml:"detection"`
	Reporting  ReportingConfig  `yaml:"reporting"`
}

// ServerConfig controls the dashboard HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// IngestConfig controls normalization of raw backup metadata.
type IngestConfig struct {
	// Timezone applied to zone-less timestamps, e.g. "UTC" or "Europe/Berlin".
	Timezone string `yaml:"timezone"`
}

// ClassifierConfig controls rule-pack loading for backup type assignment.
type ClassifierConfig struct {
	RulesPath   string `yaml:"rulesPath"`
	DefaultType string `yaml:"defaultType"`
}

// ProcessingConfig controls the period aggregator.
type ProcessingConfig struct {
	// WeekStart names the first day of the weekly bucket. Monday unless
	// configured otherwise.
	WeekStart string `yaml:"weekStart"`
}

// SeverityBandsConfig holds the deviation cut points, in standard-deviation
// units, that map a breach onto a severity. Values must be strictly
// increasing from Low to Critical.
type SeverityBandsConfig struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// ThresholdOverrideConfig partially overrides detection thresholds for one
// backup type or one granularity. Zero fields inherit the global value.
type ThresholdOverrideConfig struct {
	ThresholdMultiplier float64 `yaml:"thresholdMultiplier"`
	MinSamples          int     `yaml:"minSamples"`
	LookbackLimit       int     `yaml:"lookbackLimit"`
}

// DetectionConfig controls the anomaly detector.
type DetectionConfig struct {
	ThresholdMultiplier  float64                            `yaml:"thresholdMultiplier"`
	MinSamples           int                                `yaml:"minSamples"`
	LookbackLimit        int                                `yaml:"lookbackLimit"`
	SeverityBands        SeverityBandsConfig                `yaml:"severityBands"`
	TypeOverrides        map[string]ThresholdOverrideConfig `yaml:"typeOverrides"`
	GranularityOverrides map[string]ThresholdOverrideConfig `yaml:"granularityOverrides"`
}

// ReportingConfig controls report output.
type ReportingConfig struct {
	OutputDir string   `yaml:"outputDir"`
	Formats   []string `yaml:"formats"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BACKUP_MONITOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Ingest:  IngestConfig{Timezone: "UTC"},
		Classifier: ClassifierConfig{
			RulesPath:   "configs/rules/classification.yaml",
			DefaultType: "unknown",
		},
		Processing: ProcessingConfig{WeekStart: "monday"},
		Detection: DetectionConfig{
			ThresholdMultiplier: 2.0,
			MinSamples:          5,
			LookbackLimit:       30,
			SeverityBands:       SeverityBandsConfig{Low: 2, Medium: 3, High: 4, Critical: 6},
		},
		Reporting: ReportingConfig{
			OutputDir: "reports/output",
			Formats:   []string{"json", "csv", "html"},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKUP_MONITOR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("BACKUP_MONITOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("BACKUP_MONITOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKUP_MONITOR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("BACKUP_MONITOR_RULES_PATH"); v != "" {
		cfg.Classifier.RulesPath = v
	}
	if v := os.Getenv("BACKUP_MONITOR_OUTPUT_DIR"); v != "" {
		cfg.Reporting.OutputDir = v
	}
	if v := os.Getenv("BACKUP_MONITOR_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.MinSamples = n
		}
	}
	if v := os.Getenv("BACKUP_MONITOR_LOOKBACK_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.LookbackLimit = n
		}
	}
	if v := os.Getenv("BACKUP_MONITOR_THRESHOLD_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.ThresholdMultiplier = f
		}
	}
}

// WeekStartDay resolves the configured week start into a weekday.
func (c ProcessingConfig) WeekStartDay() (time.Weekday, error) {
	switch strings.ToLower(c.WeekStart) {
	case "", "monday":
		return time.Monday, nil
	case "sunday":
		return time.Sunday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return time.Monday, fmt.Errorf("unsupported week start %q", c.WeekStart)
	}
}

// Location resolves the configured ingest timezone.
func (c IngestConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
