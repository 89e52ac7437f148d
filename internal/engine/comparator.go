package engine

import (
	"fmt"
	"sort"

	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

// Comparator computes deltas between an aggregate and its immediate
// predecessor of the same granularity and backup type.
type Comparator struct{}

// NewComparator constructs a Comparator.
func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare builds a PeriodComparison for current against previous. A nil
// previous means no prior period was observed: the comparison carries current
// only, with HasBaseline false and no deltas. Mismatched granularity or
// backup type is a caller error.
func (c *Comparator) Compare(current models.AggregatedMetrics, previous *models.AggregatedMetrics) (models.PeriodComparison, error) {
	if previous == nil {
		return models.PeriodComparison{
			Granularity: current.Granularity,
			BackupType:  current.BackupType,
			Current:     current,
			HasBaseline: false,
		}, nil
	}

	if previous.Granularity != current.Granularity {
		return models.PeriodComparison{}, utils.NewValidationError("granularity", "",
			fmt.Sprintf("cannot compare %s against %s", current.Granularity, previous.Granularity))
	}
	if previous.BackupType != current.BackupType {
		return models.PeriodComparison{}, utils.NewValidationError("backup_type", "",
			fmt.Sprintf("cannot compare %q against %q", current.BackupType, previous.BackupType))
	}

	deltas := []models.MetricDelta{
		delta("average_duration", current.AverageDuration, previous.AverageDuration),
		delta("min_duration", current.MinDuration, previous.MinDuration),
		delta("max_duration", current.MaxDuration, previous.MaxDuration),
		delta("total_duration", current.TotalDuration, previous.TotalDuration),
		delta("total_count", float64(current.TotalCount), float64(previous.TotalCount)),
		delta("success_count", float64(current.SuccessCount), float64(previous.SuccessCount)),
		delta("failure_count", float64(current.FailureCount), float64(previous.FailureCount)),
		delta("partial_count", float64(current.PartialCount), float64(previous.PartialCount)),
		delta("success_rate", current.SuccessRate, previous.SuccessRate),
		delta("failure_rate", current.FailureRate, previous.FailureRate),
	}

	prev := *previous
	return models.PeriodComparison{
		Granularity: current.Granularity,
		BackupType:  current.BackupType,
		Current:     current,
		Previous:    &prev,
		Deltas:      deltas,
		HasBaseline: true,
	}, nil
}

// CompareSeries pairs each aggregate with its immediate predecessor. The
// series is ordered by absolute period start time before pairing, so a
// December/January boundary compares chronologically rather than by month
// number. All elements must share one granularity and backup type. The first
// element always comes back without a baseline.
func (c *Comparator) CompareSeries(series []models.AggregatedMetrics) ([]models.PeriodComparison, error) {
	if len(series) == 0 {
		return nil, nil
	}

	for _, m := range series[1:] {
		if m.Granularity != series[0].Granularity {
			return nil, utils.NewValidationError("granularity", "", "series mixes granularities")
		}
		if m.BackupType != series[0].BackupType {
			return nil, utils.NewValidationError("backup_type", "", "series mixes backup types")
		}
	}

	ordered := append([]models.AggregatedMetrics(nil), series...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Period.Start.Before(ordered[j].Period.Start)
	})

	comparisons := make([]models.PeriodComparison, 0, len(ordered))
	for i := range ordered {
		var previous *models.AggregatedMetrics
		if i > 0 {
			previous = &ordered[i-1]
		}
		comparison, err := c.Compare(ordered[i], previous)
		if err != nil {
			return nil, err
		}
		comparisons = append(comparisons, comparison)
	}
	return comparisons, nil
}

// delta computes absolute and percentage change for one field. Percentage is
// undefined (nil) when the previous value was zero and the current is not;
// when both are zero the change is an honest zero.
func delta(metric string, current, previous float64) models.MetricDelta {
	d := models.MetricDelta{
		Metric:   metric,
		Current:  current,
		Previous: previous,
		Absolute: current - previous,
	}
	if previous == 0 {
		if current == 0 {
			zero := 0.0
			d.Percent = &zero
		}
		return d
	}
	pct := d.Absolute / previous * 100
	d.Percent = &pct
	return d
}
