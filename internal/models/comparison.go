package models

// MetricDelta captures the change of a single numeric field between two
// comparable periods. Percent is nil when the previous value was zero and the
// current value is not; there is no meaningful percentage in that case.
type MetricDelta struct {
	Metric   string   `json:"metric"`
	Current  float64  `json:"current"`
	Previous float64  `json:"previous"`
	Absolute float64  `json:"absolute"`
	Percent  *float64 `json:"percent"`
}

// PeriodComparison relates an aggregate to its immediate predecessor of the
// same granularity and backup type. When no predecessor was observed,
// HasBaseline is false, Previous is nil and Deltas is empty; deltas are never
// fabricated against a zero baseline.
type PeriodComparison struct {
	Granularity Granularity        `json:"granularity"`
	BackupType  string             `json:"backup_type"`
	Current     AggregatedMetrics  `json:"current"`
	Previous    *AggregatedMetrics `json:"previous,omitempty"`
	Deltas      []MetricDelta      `json:"deltas,omitempty"`
	HasBaseline bool               `json:"has_baseline"`
}

// Delta returns the named delta if the comparison carries one.
func (c PeriodComparison) Delta(metric string) (MetricDelta, bool) {
	for _, d := range c.Deltas {
		if d.Metric == metric {
			return d, true
		}
	}
	return MetricDelta{}, false
}
