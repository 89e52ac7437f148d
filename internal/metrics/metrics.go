package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed monitoring runs.
	OutcomeSuccess = "success"
	// OutcomeError labels runs that failed during ingest or processing.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backup_monitor",
			Name:      "runs_total",
			Help:      "Total number of monitoring runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "backup_monitor",
			Name:      "run_seconds",
			Help:      "Monitoring run latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	recordsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "backup_monitor",
			Name:      "records_ingested_total",
			Help:      "Total number of backup records accepted by ingestion.",
		},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backup_monitor",
			Name:      "anomalies_total",
			Help:      "Total number of anomalies detected, partitioned by severity.",
		},
		[]string{"severity"},
	)
)

// Register attaches backup-monitor collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		recordsIngestedTotal,
		anomaliesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a monitoring run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// AddRecordsIngested counts accepted backup records.
func AddRecordsIngested(n int) {
	if n > 0 {
		recordsIngestedTotal.Add(float64(n))
	}
}

// ObserveAnomaly counts one detected anomaly by severity.
func ObserveAnomaly(severity string) {
	anomaliesTotal.WithLabelValues(severity).Inc()
}
