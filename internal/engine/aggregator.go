package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

// PeriodFilter restricts aggregation to the single bucket containing Bucket.
// The filter is applied while grouping, so unrelated buckets are never
// materialized.
type PeriodFilter struct {
	Bucket time.Time
}

// Aggregator buckets backup records into daily, weekly and monthly windows
// and computes per-bucket, per-backup-type statistics. It holds no mutable
// state and is safe for concurrent use.
type Aggregator struct {
	weekStart time.Weekday
}

// NewAggregator constructs an aggregator using the given week start day.
func NewAggregator(weekStart time.Weekday) *Aggregator {
	return &Aggregator{weekStart: weekStart}
}

type bucketKey struct {
	start      time.Time
	backupType string
}

// Aggregate groups records into buckets of the requested granularity and
// returns one AggregatedMetrics per (bucket, backup type) pair, sorted by
// period start then backup type. An empty input yields an empty result.
func (a *Aggregator) Aggregate(records []models.BackupRecord, granularity models.Granularity, filter *PeriodFilter) ([]models.AggregatedMetrics, error) {
	if !granularity.Valid() {
		return nil, utils.NewValidationError("granularity", "", fmt.Sprintf("unknown granularity %q", granularity))
	}

	var filterStart time.Time
	if filter != nil {
		filterStart = a.bucketStart(filter.Bucket, granularity)
	}

	groups := make(map[bucketKey][]models.BackupRecord)
	for _, record := range records {
		start := a.bucketStart(record.StartTime, granularity)
		if filter != nil && !start.Equal(filterStart) {
			continue
		}
		key := bucketKey{start: start, backupType: record.BackupType}
		groups[key] = append(groups[key], record)
	}

	result := make([]models.AggregatedMetrics, 0, len(groups))
	for key, group := range groups {
		period := a.periodFor(key.start, granularity)
		result = append(result, computeMetrics(group, period, granularity, key.backupType))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Period.Start.Equal(result[j].Period.Start) {
			return result[i].Period.Start.Before(result[j].Period.Start)
		}
		return result[i].BackupType < result[j].BackupType
	})

	return result, nil
}

// AggregateAll computes daily, weekly and monthly aggregates in one batch.
// All three views derive from the same record set, never from each other.
func (a *Aggregator) AggregateAll(records []models.BackupRecord) (models.AggregateSet, error) {
	daily, err := a.Aggregate(records, models.GranularityDaily, nil)
	if err != nil {
		return models.AggregateSet{}, err
	}
	weekly, err := a.Aggregate(records, models.GranularityWeekly, nil)
	if err != nil {
		return models.AggregateSet{}, err
	}
	monthly, err := a.Aggregate(records, models.GranularityMonthly, nil)
	if err != nil {
		return models.AggregateSet{}, err
	}
	return models.AggregateSet{Daily: daily, Weekly: weekly, Monthly: monthly}, nil
}

// bucketStart maps a record timestamp onto the start date of its bucket.
// Bucketing uses the start time's calendar date only; a run that crosses
// midnight stays in the bucket it started in.
func (a *Aggregator) bucketStart(t time.Time, granularity models.Granularity) time.Time {
	date := utils.DateOf(t)
	switch granularity {
	case models.GranularityWeekly:
		offset := (int(date.Weekday()) - int(a.weekStart) + 7) % 7
		return date.AddDate(0, 0, -offset)
	case models.GranularityMonthly:
		return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return date
	}
}

func (a *Aggregator) periodFor(start time.Time, granularity models.Granularity) models.Period {
	switch granularity {
	case models.GranularityWeekly:
		return models.Period{Start: start, End: start.AddDate(0, 0, 6)}
	case models.GranularityMonthly:
		// Day 0 of the next month is the last day of this month, which
		// also carries December into the next year correctly.
		end := time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		return models.Period{Start: start, End: end}
	default:
		return models.Period{Start: start, End: start}
	}
}

// computeMetrics folds one bucket's records into an AggregatedMetrics value.
// Records without a usable duration stay in the status tallies but are
// excluded from the duration statistics; that keeps counts honest without
// letting bad samples skew averages.
func computeMetrics(records []models.BackupRecord, period models.Period, granularity models.Granularity, backupType string) models.AggregatedMetrics {
	m := models.AggregatedMetrics{
		Period:      period,
		Granularity: granularity,
		BackupType:  backupType,
		TotalCount:  len(records),
	}

	first := true
	for _, record := range records {
		switch record.Status {
		case models.StatusSuccess:
			m.SuccessCount++
		case models.StatusFailure:
			m.FailureCount++
		case models.StatusPartial:
			m.PartialCount++
		}

		if !record.HasDuration() {
			continue
		}
		d := record.DurationSeconds
		m.TotalDuration += d
		if first || d < m.MinDuration {
			m.MinDuration = d
		}
		if first || d > m.MaxDuration {
			m.MaxDuration = d
		}
		m.DurationSamples++
		first = false
	}

	if m.DurationSamples > 0 {
		m.AverageDuration = m.TotalDuration / float64(m.DurationSamples)
	}
	if m.TotalCount > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalCount) * 100
		m.FailureRate = float64(m.FailureCount) / float64(m.TotalCount) * 100
	}

	return m
}
