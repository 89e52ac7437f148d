package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

// SeverityBands holds the deviation cut points, in standard-deviation units,
// separating the four severities. Bands must be strictly increasing so that a
// larger deviation never maps to a lower severity.
type SeverityBands struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

// DefaultSeverityBands returns the stock cut points: >2σ low, >3σ medium,
// >4σ high, >6σ critical.
func DefaultSeverityBands() SeverityBands {
	return SeverityBands{Low: 2, Medium: 3, High: 4, Critical: 6}
}

// ThresholdOverride partially overrides detection thresholds for one backup
// type or granularity. Zero fields inherit the next level down.
type ThresholdOverride struct {
	ThresholdMultiplier float64
	MinSamples          int
	LookbackLimit       int
}

// DetectorConfig is the full detector configuration. Overrides resolve
// per-backup-type first, then per-granularity, then the global values.
type DetectorConfig struct {
	// ThresholdMultiplier is the number of standard deviations from the
	// historical mean that constitutes a breach.
	ThresholdMultiplier float64
	// MinSamples is the minimum history length required before detection
	// runs; shorter histories yield no anomalies and no error.
	MinSamples int
	// LookbackLimit caps how many most-recent historical aggregates are
	// considered; older entries are truncated first.
	LookbackLimit int

	Bands                SeverityBands
	TypeOverrides        map[string]ThresholdOverride
	GranularityOverrides map[models.Granularity]ThresholdOverride
}

// Detector evaluates aggregates against historical baselines. It is a pure
// function of its inputs and safe for concurrent use.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector validates cfg once and returns a detector. Malformed
// configuration is rejected here, never per call.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.ThresholdMultiplier <= 0 {
		return nil, utils.NewValidationError("thresholdMultiplier", "",
			fmt.Sprintf("must be positive, got %v", cfg.ThresholdMultiplier))
	}
	if cfg.MinSamples < 1 {
		return nil, utils.NewValidationError("minSamples", "",
			fmt.Sprintf("must be at least 1, got %d", cfg.MinSamples))
	}
	if cfg.LookbackLimit < 1 {
		return nil, utils.NewValidationError("lookbackLimit", "",
			fmt.Sprintf("must be at least 1, got %d", cfg.LookbackLimit))
	}
	if cfg.Bands == (SeverityBands{}) {
		cfg.Bands = DefaultSeverityBands()
	}
	b := cfg.Bands
	if b.Low <= 0 || b.Medium <= b.Low || b.High <= b.Medium || b.Critical <= b.High {
		return nil, utils.NewValidationError("severityBands", "",
			"cut points must be positive and strictly increasing")
	}
	for name, o := range cfg.TypeOverrides {
		if err := validateOverride("typeOverrides."+name, o); err != nil {
			return nil, err
		}
	}
	for g, o := range cfg.GranularityOverrides {
		if err := validateOverride("granularityOverrides."+string(g), o); err != nil {
			return nil, err
		}
	}
	return &Detector{cfg: cfg}, nil
}

func validateOverride(field string, o ThresholdOverride) error {
	if o.ThresholdMultiplier < 0 || o.MinSamples < 0 || o.LookbackLimit < 0 {
		return utils.NewValidationError(field, "", "override values must not be negative")
	}
	return nil
}

// thresholds is the resolved effective configuration for one subject.
type thresholds struct {
	multiplier float64
	minSamples int
	lookback   int
}

func (d *Detector) resolve(backupType string, granularity models.Granularity) thresholds {
	t := thresholds{
		multiplier: d.cfg.ThresholdMultiplier,
		minSamples: d.cfg.MinSamples,
		lookback:   d.cfg.LookbackLimit,
	}
	apply := func(o ThresholdOverride) {
		if o.ThresholdMultiplier > 0 {
			t.multiplier = o.ThresholdMultiplier
		}
		if o.MinSamples > 0 {
			t.minSamples = o.MinSamples
		}
		if o.LookbackLimit > 0 {
			t.lookback = o.LookbackLimit
		}
	}
	if o, ok := d.cfg.GranularityOverrides[granularity]; ok {
		apply(o)
	}
	if o, ok := d.cfg.TypeOverrides[backupType]; ok {
		apply(o)
	}
	return t
}

// metricCheck binds one baseline metric to the anomaly types it may emit.
// The low variant only fires below the baseline, high only above, so one
// comparison never produces both directions.
type metricCheck struct {
	name  string
	value func(models.AggregatedMetrics) float64
	high  models.AnomalyType
	low   models.AnomalyType
}

var metricChecks = []metricCheck{
	{
		name:  "average_duration",
		value: func(m models.AggregatedMetrics) float64 { return m.AverageDuration },
		high:  models.AnomalyDurationHigh,
		low:   models.AnomalyDurationLow,
	},
	{
		name:  "max_duration",
		value: func(m models.AggregatedMetrics) float64 { return m.MaxDuration },
		high:  models.AnomalyDurationHigh,
	},
	{
		name:  "total_count",
		value: func(m models.AggregatedMetrics) float64 { return float64(m.TotalCount) },
		high:  models.AnomalyCountHigh,
		low:   models.AnomalyCountLow,
	},
	{
		name:  "failure_rate",
		value: func(m models.AggregatedMetrics) float64 { return m.FailureRate },
		high:  models.AnomalyFailureRateHigh,
	},
	{
		name:  "success_rate",
		value: func(m models.AggregatedMetrics) float64 { return m.SuccessRate },
		low:   models.AnomalySuccessRateLow,
	},
}

// Detect evaluates subject against its history and returns the anomalies
// found, in metric-check order. History entries of a different backup type or
// granularity are ignored; after truncation to the lookback window, a history
// shorter than the minimum sample count yields an empty result without error.
func (d *Detector) Detect(subject models.AggregatedMetrics, history []models.AggregatedMetrics) []models.Anomaly {
	t := d.resolve(subject.BackupType, subject.Granularity)

	filtered := make([]models.AggregatedMetrics, 0, len(history))
	for _, h := range history {
		if h.BackupType == subject.BackupType && h.Granularity == subject.Granularity {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) > t.lookback {
		filtered = filtered[len(filtered)-t.lookback:]
	}
	if len(filtered) < t.minSamples {
		return nil
	}

	now := time.Now().UTC()
	var anomalies []models.Anomaly
	for _, check := range metricChecks {
		values := make([]float64, len(filtered))
		for i, h := range filtered {
			values[i] = check.value(h)
		}
		if a, ok := d.evaluate(check, check.value(subject), values, t.multiplier); ok {
			a.Period = subject.Period
			a.Granularity = subject.Granularity
			a.BackupType = subject.BackupType
			a.DetectedAt = now
			anomalies = append(anomalies, a)
		}
	}
	return anomalies
}

// evaluate applies the breach rule |observed - mean| > multiplier * stddev
// for one metric. A zero-stddev baseline cannot be divided through: any
// non-zero deviation from it is maximum severity, zero deviation is no
// anomaly.
func (d *Detector) evaluate(check metricCheck, observed float64, values []float64, multiplier float64) (models.Anomaly, bool) {
	m := mean(values)
	sd := stdDev(values, m)
	dev := observed - m

	anomalyType, ok := directionType(check, dev)
	if !ok {
		return models.Anomaly{}, false
	}

	a := models.Anomaly{
		Type:           anomalyType,
		Metric:         check.name,
		Observed:       observed,
		Baseline:       m,
		BaselineStdDev: sd,
		DeviationPct:   deviationPct(dev, m),
	}

	if sd == 0 {
		if dev == 0 {
			return models.Anomaly{}, false
		}
		a.Severity = models.SeverityCritical
		return a, true
	}

	if math.Abs(dev) <= multiplier*sd {
		return models.Anomaly{}, false
	}
	sigma := math.Abs(dev) / sd
	a.DeviationSigma = sigma
	a.Severity = d.severityFor(sigma)
	return a, true
}

func directionType(check metricCheck, dev float64) (models.AnomalyType, bool) {
	switch {
	case dev > 0 && check.high != "":
		return check.high, true
	case dev < 0 && check.low != "":
		return check.low, true
	}
	return "", false
}

func deviationPct(dev, mean float64) float64 {
	if mean == 0 {
		if dev == 0 {
			return 0
		}
		return math.Copysign(100, dev)
	}
	return dev / mean * 100
}

func (d *Detector) severityFor(sigma float64) models.AnomalySeverity {
	b := d.cfg.Bands
	switch {
	case sigma > b.Critical:
		return models.SeverityCritical
	case sigma > b.High:
		return models.SeverityHigh
	case sigma > b.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// DetectionPair couples a subject aggregate with its historical window.
type DetectionPair struct {
	Subject models.AggregatedMetrics
	History []models.AggregatedMetrics
}

// BatchFilter optionally narrows a batch run to one backup type and/or
// granularity before evaluation.
type BatchFilter struct {
	BackupType  string
	Granularity models.Granularity
}

// DetectBatch evaluates each pair in input order and concatenates the
// results. Output ordering follows input order, not severity.
func (d *Detector) DetectBatch(pairs []DetectionPair, filter *BatchFilter) []models.Anomaly {
	var anomalies []models.Anomaly
	for _, pair := range pairs {
		if filter != nil {
			if filter.BackupType != "" && pair.Subject.BackupType != filter.BackupType {
				continue
			}
			if filter.Granularity != "" && pair.Subject.Granularity != filter.Granularity {
				continue
			}
		}
		anomalies = append(anomalies, d.Detect(pair.Subject, pair.History)...)
	}
	return anomalies
}
