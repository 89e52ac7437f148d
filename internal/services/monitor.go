package services

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/backup-monitor/internal/classify"
	"github.com/miradorstack/backup-monitor/internal/engine"
	"github.com/miradorstack/backup-monitor/internal/ingest"
	"github.com/miradorstack/backup-monitor/internal/metrics"
	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

// Snapshot is the immutable output of one monitoring run, held for read-only
// consumers such as the dashboard API and the report generator.
type Snapshot struct {
	RunID       string                                           `json:"run_id"`
	GeneratedAt time.Time                                        `json:"generated_at"`
	RecordCount int                                              `json:"record_count"`
	Aggregates  models.AggregateSet                              `json:"aggregates"`
	Comparisons map[models.Granularity][]models.PeriodComparison `json:"comparisons"`
	Anomalies   []models.Anomaly                                 `json:"anomalies"`
}

// MonitorService orchestrates one pass of the engine: ingest, classify,
// aggregate, compare, detect. The engine components are pure; the service
// only guards the latest snapshot for concurrent readers.
type MonitorService struct {
	logger     *slog.Logger
	loader     *ingest.Loader
	classifier *classify.Classifier
	aggregator *engine.Aggregator
	comparator *engine.Comparator
	detector   *engine.Detector
	latencies  *utils.LatencyTracker

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewMonitorService wires the pipeline components together.
func NewMonitorService(
	logger *slog.Logger,
	loader *ingest.Loader,
	classifier *classify.Classifier,
	aggregator *engine.Aggregator,
	comparator *engine.Comparator,
	detector *engine.Detector,
) *MonitorService {
	return &MonitorService{
		logger:     utils.ComponentLogger(logger, "monitor"),
		loader:     loader,
		classifier: classifier,
		aggregator: aggregator,
		comparator: comparator,
		detector:   detector,
		latencies:  utils.NewLatencyTracker(256),
	}
}

// RunFile loads a backup feed from disk and processes it.
func (s *MonitorService) RunFile(path string) (*Snapshot, error) {
	if s.loader == nil {
		return nil, fmt.Errorf("loader not configured")
	}
	records, err := s.loader.LoadFile(path)
	if err != nil {
		metrics.ObserveRun(0, metrics.OutcomeError)
		return nil, err
	}
	return s.Run(records)
}

// Run processes an already-normalized record set and publishes the resulting
// snapshot.
func (s *MonitorService) Run(records []models.BackupRecord) (*Snapshot, error) {
	start := time.Now()

	if s.classifier != nil {
		records = s.classifier.Apply(records)
	}

	aggregates, err := s.aggregator.AggregateAll(records)
	if err != nil {
		metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
		return nil, fmt.Errorf("aggregate records: %w", err)
	}

	comparisons := make(map[models.Granularity][]models.PeriodComparison, 3)
	var anomalies []models.Anomaly
	for _, granularity := range []models.Granularity{
		models.GranularityDaily,
		models.GranularityWeekly,
		models.GranularityMonthly,
	} {
		series := aggregates.ByGranularity(granularity)
		groups, order := groupByType(series)

		for _, backupType := range order {
			group := groups[backupType]
			compared, err := s.comparator.CompareSeries(group)
			if err != nil {
				metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
				return nil, fmt.Errorf("compare %s/%s: %w", granularity, backupType, err)
			}
			comparisons[granularity] = append(comparisons[granularity], compared...)

			pairs := make([]engine.DetectionPair, 0, len(group))
			for i := range group {
				pairs = append(pairs, engine.DetectionPair{
					Subject: group[i],
					History: group[:i],
				})
			}
			anomalies = append(anomalies, s.detector.DetectBatch(pairs, nil)...)
		}
	}

	snapshot := &Snapshot{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		RecordCount: len(records),
		Aggregates:  aggregates,
		Comparisons: comparisons,
		Anomalies:   anomalies,
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	duration := time.Since(start)
	s.latencies.Observe(duration)
	metrics.ObserveRun(duration, metrics.OutcomeSuccess)
	metrics.AddRecordsIngested(len(records))
	for _, a := range anomalies {
		metrics.ObserveAnomaly(string(a.Severity))
	}

	s.logger.Info("monitoring run completed",
		slog.String("run_id", snapshot.RunID),
		slog.Int("records", len(records)),
		slog.Int("daily_buckets", len(aggregates.Daily)),
		slog.Int("anomalies", len(anomalies)),
		slog.Duration("elapsed", duration))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("run latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return snapshot, nil
}

// Snapshot returns the result of the most recent run, or nil before the
// first run completes.
func (s *MonitorService) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// groupByType splits a series by backup type, preserving chronological order
// inside each group, and returns the types sorted for deterministic output.
func groupByType(series []models.AggregatedMetrics) (map[string][]models.AggregatedMetrics, []string) {
	groups := make(map[string][]models.AggregatedMetrics)
	for _, m := range series {
		groups[m.BackupType] = append(groups[m.BackupType], m)
	}
	order := make([]string, 0, len(groups))
	for backupType := range groups {
		order = append(order, backupType)
	}
	sort.Strings(order)
	return groups, order
}
