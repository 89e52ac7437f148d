package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/backup-monitor/internal/classify"
	"github.com/miradorstack/backup-monitor/internal/engine"
	"github.com/miradorstack/backup-monitor/internal/ingest"
	"github.com/miradorstack/backup-monitor/internal/models"
)

func testMonitor(t *testing.T) *MonitorService {
	t.Helper()

	classifier, err := classify.NewClassifier("", "unknown", nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	detector, err := engine.NewDetector(engine.DetectorConfig{
		ThresholdMultiplier: 2,
		MinSamples:          5,
		LookbackLimit:       30,
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	return NewMonitorService(
		nil,
		ingest.NewLoader(nil, nil),
		classifier,
		engine.NewAggregator(time.Monday),
		engine.NewComparator(),
		detector,
	)
}

func flatWeek(spikeLastDay bool) []models.BackupRecord {
	records := make([]models.BackupRecord, 0, 6)
	for day := 0; day < 6; day++ {
		duration := 100.0
		if spikeLastDay && day == 5 {
			duration = 1000
		}
		start := time.Date(2025, 3, 10+day, 1, 0, 0, 0, time.UTC)
		records = append(records, models.BackupRecord{
			BackupID:        "db-" + start.Format("20060102"),
			BackupType:      "database",
			StartTime:       start,
			EndTime:         start.Add(time.Duration(duration) * time.Second),
			Status:          models.StatusSuccess,
			DurationSeconds: duration,
		})
	}
	return records
}

func TestRunProducesSnapshot(t *testing.T) {
	monitor := testMonitor(t)

	snapshot, err := monitor.Run(flatWeek(true))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snapshot.RunID == "" {
		t.Fatalf("expected run id")
	}
	if snapshot.RecordCount != 6 {
		t.Fatalf("expected 6 records, got %d", snapshot.RecordCount)
	}
	if len(snapshot.Aggregates.Daily) != 6 {
		t.Fatalf("expected 6 daily buckets, got %d", len(snapshot.Aggregates.Daily))
	}

	daily := snapshot.Comparisons[models.GranularityDaily]
	if len(daily) != 6 {
		t.Fatalf("expected 6 daily comparisons, got %d", len(daily))
	}
	if daily[0].HasBaseline {
		t.Fatalf("first period must have no baseline")
	}
	if !daily[1].HasBaseline {
		t.Fatalf("second period must carry a baseline")
	}

	// The spike on the last day breaches the flat five-day baseline.
	found := false
	for _, a := range snapshot.Anomalies {
		if a.Type == models.AnomalyDurationHigh && a.BackupType == "database" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a duration_high anomaly, got %+v", snapshot.Anomalies)
	}

	if got := monitor.Snapshot(); got != snapshot {
		t.Fatalf("Snapshot() should return the latest run result")
	}
}

func TestRunQuietWeekNoAnomalies(t *testing.T) {
	monitor := testMonitor(t)

	snapshot, err := monitor.Run(flatWeek(false))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(snapshot.Anomalies) != 0 {
		t.Fatalf("flat history produced anomalies: %+v", snapshot.Anomalies)
	}
}

func TestRunClassifiesUntypedRecords(t *testing.T) {
	monitor := testMonitor(t)

	records := flatWeek(false)
	for i := range records {
		records[i].BackupType = ""
	}

	snapshot, err := monitor.Run(records)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, m := range snapshot.Aggregates.Daily {
		if m.BackupType != "unknown" {
			t.Fatalf("expected default type, got %q", m.BackupType)
		}
	}
}

func TestSnapshotBeforeFirstRun(t *testing.T) {
	if snapshot := testMonitor(t).Snapshot(); snapshot != nil {
		t.Fatalf("expected nil snapshot before the first run")
	}
}

func TestRunFile(t *testing.T) {
	monitor := testMonitor(t)

	path := filepath.Join(t.TempDir(), "feed.json")
	feed := `[{"backup_id": "b1", "start_time": "2025-03-10T01:00:00Z", "end_time": "2025-03-10T01:30:00Z", "status": "success", "backup_type": "database"}]`
	if err := os.WriteFile(path, []byte(feed), 0644); err != nil {
		t.Fatalf("write feed: %v", err)
	}

	snapshot, err := monitor.RunFile(path)
	if err != nil {
		t.Fatalf("run file: %v", err)
	}
	if snapshot.RecordCount != 1 {
		t.Fatalf("expected 1 record, got %d", snapshot.RecordCount)
	}

	if _, err := monitor.RunFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing feed")
	}
}
