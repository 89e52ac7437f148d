package models

import "time"

// AnomalyType enumerates the directional anomaly classes the detector emits.
type AnomalyType string

const (
	AnomalyDurationHigh    AnomalyType = "duration_high"
	AnomalyDurationLow     AnomalyType = "duration_low"
	AnomalyCountHigh       AnomalyType = "count_high"
	AnomalyCountLow        AnomalyType = "count_low"
	AnomalyFailureRateHigh AnomalyType = "failure_rate_high"
	AnomalySuccessRateLow  AnomalyType = "success_rate_low"
)

// AnomalySeverity captures impact levels.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown severities
// rank 0.
func (s AnomalySeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Anomaly is a derived, stateless fact: one metric of one aggregate breached
// its historical baseline. A detection run produces a fresh set each time;
// anomalies are never mutated after creation.
type Anomaly struct {
	Type     AnomalyType     `json:"type"`
	Severity AnomalySeverity `json:"severity"`
	Metric   string          `json:"metric"`

	Observed       float64 `json:"observed"`
	Baseline       float64 `json:"baseline"`
	BaselineStdDev float64 `json:"baseline_stddev"`
	DeviationPct   float64 `json:"deviation_pct"`
	DeviationSigma float64 `json:"deviation_sigma"`

	Period      Period      `json:"period"`
	Granularity Granularity `json:"granularity"`
	BackupType  string      `json:"backup_type"`

	DetectedAt time.Time `json:"detected_at"`
}
