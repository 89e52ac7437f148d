package models

import "time"

// Granularity identifies the aggregation window size.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Valid reports whether the granularity is one of the supported windows.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// Period is a closed calendar window. Start and End are midnight-UTC dates;
// for daily buckets Start equals End.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AggregatedMetrics summarises all backup runs of one backup type inside one
// period bucket. Produced by the aggregator and immutable afterwards.
// Invariant: SuccessCount + FailureCount + PartialCount == TotalCount.
// Rates are percentages, fixed at 0 when TotalCount is 0.
type AggregatedMetrics struct {
	Period      Period      `json:"period"`
	Granularity Granularity `json:"granularity"`
	BackupType  string      `json:"backup_type"`

	AverageDuration float64 `json:"average_duration"`
	MinDuration     float64 `json:"min_duration"`
	MaxDuration     float64 `json:"max_duration"`
	TotalDuration   float64 `json:"total_duration"`

	TotalCount   int `json:"total_count"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	PartialCount int `json:"partial_count"`

	// DurationSamples counts the records that contributed to the duration
	// statistics. Records without a usable duration are tallied in the
	// status counts but excluded here.
	DurationSamples int `json:"duration_samples"`

	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`
}

// AggregateSet bundles the three granularities produced by one batch pass
// over a record set.
type AggregateSet struct {
	Daily   []AggregatedMetrics `json:"daily"`
	Weekly  []AggregatedMetrics `json:"weekly"`
	Monthly []AggregatedMetrics `json:"monthly"`
}

// ByGranularity returns the slice for the requested granularity.
func (s AggregateSet) ByGranularity(g Granularity) []AggregatedMetrics {
	switch g {
	case GranularityDaily:
		return s.Daily
	case GranularityWeekly:
		return s.Weekly
	case GranularityMonthly:
		return s.Monthly
	}
	return nil
}
