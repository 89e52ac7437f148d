package engine

import (
	"testing"
	"time"

	"github.com/miradorstack/backup-monitor/internal/models"
)

func testDetector(t *testing.T, cfg DetectorConfig) *Detector {
	t.Helper()
	if cfg.ThresholdMultiplier == 0 {
		cfg.ThresholdMultiplier = 2
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 5
	}
	if cfg.LookbackLimit == 0 {
		cfg.LookbackLimit = 30
	}
	d, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d
}

// subject builds an aggregate varying only the average duration; all other
// tracked metrics stay constant so only one check can fire.
func durationAggregate(day int, avg float64) models.AggregatedMetrics {
	start := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
	return models.AggregatedMetrics{
		Period:          models.Period{Start: start, End: start},
		Granularity:     models.GranularityDaily,
		BackupType:      "database",
		AverageDuration: avg,
		TotalCount:      1,
		SuccessCount:    1,
		SuccessRate:     100,
	}
}

func durationHistory(avgs ...float64) []models.AggregatedMetrics {
	history := make([]models.AggregatedMetrics, len(avgs))
	for i, avg := range avgs {
		history[i] = durationAggregate(i+1, avg)
	}
	return history
}

func TestDetectInsufficientHistory(t *testing.T) {
	d := testDetector(t, DetectorConfig{MinSamples: 5})
	anomalies := d.Detect(durationAggregate(10, 500), durationHistory(100, 100, 100, 100))
	if anomalies != nil {
		t.Fatalf("expected no anomalies with short history, got %d", len(anomalies))
	}
}

func TestDetectDurationSpikeFlatBaseline(t *testing.T) {
	d := testDetector(t, DetectorConfig{})
	history := durationHistory(100, 100, 100, 100, 100, 100, 100, 100, 100)

	anomalies := d.Detect(durationAggregate(10, 1000), history)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	a := anomalies[0]
	if a.Type != models.AnomalyDurationHigh || a.Metric != "average_duration" {
		t.Fatalf("unexpected anomaly %+v", a)
	}
	// Zero spread in the baseline: any deviation is maximum severity.
	if a.Severity != models.SeverityCritical {
		t.Fatalf("expected critical severity for zero-stddev baseline, got %s", a.Severity)
	}
	if a.Baseline != 100 || a.Observed != 1000 {
		t.Fatalf("unexpected baseline/observed %v/%v", a.Baseline, a.Observed)
	}
	if a.DeviationPct != 900 {
		t.Fatalf("unexpected deviation pct %v", a.DeviationPct)
	}
}

func TestDetectDurationSpikeSeverityBands(t *testing.T) {
	d := testDetector(t, DetectorConfig{})
	// Mean 100, population stddev 10.
	history := durationHistory(90, 110, 90, 110, 90, 110)

	anomalies := d.Detect(durationAggregate(10, 150), history)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	a := anomalies[0]
	if a.DeviationSigma != 5 {
		t.Fatalf("expected 5 sigma, got %v", a.DeviationSigma)
	}
	// 5 sigma sits between the high (4) and critical (6) cut points.
	if a.Severity != models.SeverityHigh {
		t.Fatalf("expected high severity at 5 sigma, got %s", a.Severity)
	}
	if a.BaselineStdDev != 10 {
		t.Fatalf("expected population stddev 10, got %v", a.BaselineStdDev)
	}
}

func TestDetectWithinThresholdNoAnomaly(t *testing.T) {
	d := testDetector(t, DetectorConfig{})
	history := durationHistory(90, 110, 90, 110, 90, 110)

	// 115 is 1.5 sigma from the mean, under the 2-sigma multiplier.
	if anomalies := d.Detect(durationAggregate(10, 115), history); len(anomalies) != 0 {
		t.Fatalf("expected no anomalies, got %+v", anomalies)
	}
}

func TestDetectDurationDrop(t *testing.T) {
	d := testDetector(t, DetectorConfig{})
	history := durationHistory(90, 110, 90, 110, 90, 110)

	anomalies := d.Detect(durationAggregate(10, 20), history)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	if anomalies[0].Type != models.AnomalyDurationLow {
		t.Fatalf("expected duration_low, got %s", anomalies[0].Type)
	}
}

func TestDetectFailureRateHigh(t *testing.T) {
	d := testDetector(t, DetectorConfig{})

	history := make([]models.AggregatedMetrics, 6)
	for i := range history {
		m := durationAggregate(i+1, 100)
		// Mean failure rate 5, population stddev 5.
		if i%2 == 0 {
			m.FailureRate = 10
			m.SuccessRate = 90
		} else {
			m.SuccessRate = 100
		}
		history[i] = m
	}

	subject := durationAggregate(10, 100)
	subject.FailureRate = 40
	subject.SuccessRate = 60

	anomalies := d.Detect(subject, history)
	var failureHigh *models.Anomaly
	for i := range anomalies {
		if anomalies[i].Type == models.AnomalyFailureRateHigh {
			failureHigh = &anomalies[i]
		}
	}
	if failureHigh == nil {
		t.Fatalf("expected failure_rate_high among %+v", anomalies)
	}
	// 35 points over a stddev of 5 is 7 sigma.
	if failureHigh.Severity != models.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", failureHigh.Severity)
	}
}

func TestDetectSuccessRateOnlyFiresLow(t *testing.T) {
	d := testDetector(t, DetectorConfig{})

	history := durationHistory(100, 100, 100, 100, 100, 100)
	for i := range history {
		history[i].SuccessRate = 50 + float64(i%2)*10
	}

	// Success rate well above baseline: no success_rate anomaly fires.
	above := durationAggregate(10, 100)
	above.SuccessRate = 100
	for _, a := range d.Detect(above, history) {
		if a.Metric == "success_rate" {
			t.Fatalf("success_rate must not fire above baseline: %+v", a)
		}
	}

	below := durationAggregate(10, 100)
	below.SuccessRate = 5
	found := false
	for _, a := range d.Detect(below, history) {
		if a.Type == models.AnomalySuccessRateLow {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected success_rate_low below baseline")
	}
}

func TestDetectLookbackTruncation(t *testing.T) {
	d := testDetector(t, DetectorConfig{MinSamples: 5, LookbackLimit: 5})

	// Old noisy history followed by a flat recent window. Only the recent
	// window may count.
	history := durationHistory(1000, 1200, 900, 1100, 1000, 100, 100, 100, 100, 100)

	if anomalies := d.Detect(durationAggregate(20, 100), history); len(anomalies) != 0 {
		t.Fatalf("lookback window leaked old history: %+v", anomalies)
	}
}

func TestDetectIgnoresForeignHistory(t *testing.T) {
	d := testDetector(t, DetectorConfig{MinSamples: 5})

	history := durationHistory(100, 100, 100, 100, 100)
	history[0].BackupType = "vm"
	history[1].Granularity = models.GranularityWeekly

	// Only 3 matching entries remain, under the minimum sample count.
	if anomalies := d.Detect(durationAggregate(10, 1000), history); anomalies != nil {
		t.Fatalf("expected foreign history to be filtered out, got %+v", anomalies)
	}
}

func TestDetectTypeOverride(t *testing.T) {
	d := testDetector(t, DetectorConfig{
		MinSamples: 5,
		TypeOverrides: map[string]ThresholdOverride{
			"database": {MinSamples: 10},
		},
	})

	history := durationHistory(100, 100, 100, 100, 100, 100)
	if anomalies := d.Detect(durationAggregate(10, 1000), history); anomalies != nil {
		t.Fatalf("type override should raise the sample floor, got %+v", anomalies)
	}
}

func TestDetectTypeOverrideBeatsGranularityOverride(t *testing.T) {
	d := testDetector(t, DetectorConfig{
		MinSamples: 5,
		GranularityOverrides: map[models.Granularity]ThresholdOverride{
			models.GranularityDaily: {MinSamples: 20},
		},
		TypeOverrides: map[string]ThresholdOverride{
			"database": {MinSamples: 3},
		},
	})

	history := durationHistory(100, 100, 100, 100)
	anomalies := d.Detect(durationAggregate(10, 1000), history)
	if len(anomalies) != 1 {
		t.Fatalf("type override must win over granularity override, got %+v", anomalies)
	}
}

func TestNewDetectorValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  DetectorConfig
	}{
		{"zero multiplier", DetectorConfig{ThresholdMultiplier: 0, MinSamples: 5, LookbackLimit: 30}},
		{"zero min samples", DetectorConfig{ThresholdMultiplier: 2, MinSamples: 0, LookbackLimit: 30}},
		{"zero lookback", DetectorConfig{ThresholdMultiplier: 2, MinSamples: 5, LookbackLimit: 0}},
		{"non-increasing bands", DetectorConfig{
			ThresholdMultiplier: 2, MinSamples: 5, LookbackLimit: 30,
			Bands: SeverityBands{Low: 3, Medium: 2, High: 4, Critical: 6},
		}},
		{"negative override", DetectorConfig{
			ThresholdMultiplier: 2, MinSamples: 5, LookbackLimit: 30,
			TypeOverrides: map[string]ThresholdOverride{"database": {MinSamples: -1}},
		}},
	}
	for _, tc := range cases {
		if _, err := NewDetector(tc.cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestDetectBatch(t *testing.T) {
	d := testDetector(t, DetectorConfig{MinSamples: 5})

	dbHistory := durationHistory(100, 100, 100, 100, 100)
	vmHistory := durationHistory(100, 100, 100, 100, 100)
	for i := range vmHistory {
		vmHistory[i].BackupType = "vm"
	}
	vmSubject := durationAggregate(10, 1000)
	vmSubject.BackupType = "vm"

	pairs := []DetectionPair{
		{Subject: durationAggregate(10, 1000), History: dbHistory},
		{Subject: vmSubject, History: vmHistory},
	}

	all := d.DetectBatch(pairs, nil)
	if len(all) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(all))
	}
	// Output preserves input order.
	if all[0].BackupType != "database" || all[1].BackupType != "vm" {
		t.Fatalf("batch output out of order: %+v", all)
	}

	filtered := d.DetectBatch(pairs, &BatchFilter{BackupType: "vm"})
	if len(filtered) != 1 || filtered[0].BackupType != "vm" {
		t.Fatalf("filter kept wrong pairs: %+v", filtered)
	}
}
