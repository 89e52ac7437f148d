package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/services"
)

const dateLayout = "2006-01-02"

// metricsFilter narrows dashboard queries by date range and backup type.
type metricsFilter struct {
	start      time.Time
	end        time.Time
	backupType string
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// snapshotOr503 fetches the latest snapshot or answers 503 when no run has
// completed yet.
func (s *Server) snapshotOr503(c *gin.Context) *services.Snapshot {
	snapshot := s.monitor.Snapshot()
	if snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no monitoring run completed yet"})
		return nil
	}
	return snapshot
}

func parseFilter(c *gin.Context) (metricsFilter, bool) {
	var f metricsFilter
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
			return f, false
		}
		f.start = t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
			return f, false
		}
		f.end = t
	}
	f.backupType = c.Query("backup_type")
	return f, true
}

func (f metricsFilter) matchPeriod(p models.Period, backupType string) bool {
	if f.backupType != "" && backupType != f.backupType {
		return false
	}
	if !f.start.IsZero() && p.End.Before(f.start) {
		return false
	}
	if !f.end.IsZero() && p.Start.After(f.end) {
		return false
	}
	return true
}

func granularityParam(c *gin.Context) (models.Granularity, bool) {
	g := models.Granularity(c.Param("granularity"))
	if !g.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "granularity must be daily, weekly or monthly"})
		return "", false
	}
	return g, true
}

func (s *Server) handleDashboard(c *gin.Context) {
	snapshot := s.snapshotOr503(c)
	if snapshot == nil {
		return
	}
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	daily := make([]models.AggregatedMetrics, 0, len(snapshot.Aggregates.Daily))
	summary := gin.H{}
	var totalBackups, successCount, failureCount int
	for _, m := range snapshot.Aggregates.Daily {
		if !filter.matchPeriod(m.Period, m.BackupType) {
			continue
		}
		daily = append(daily, m)
		totalBackups += m.TotalCount
		successCount += m.SuccessCount
		failureCount += m.FailureCount
	}

	anomalies := make([]models.Anomaly, 0, len(snapshot.Anomalies))
	severities := map[models.AnomalySeverity]int{}
	for _, a := range snapshot.Anomalies {
		if !filter.matchPeriod(a.Period, a.BackupType) {
			continue
		}
		anomalies = append(anomalies, a)
		severities[a.Severity]++
	}

	summary["run_id"] = snapshot.RunID
	summary["generated_at"] = snapshot.GeneratedAt
	summary["total_backups"] = totalBackups
	summary["success_count"] = successCount
	summary["failure_count"] = failureCount
	summary["anomaly_count"] = len(anomalies)
	summary["critical_anomalies"] = severities[models.SeverityCritical]

	c.JSON(http.StatusOK, gin.H{
		"summary":   summary,
		"metrics":   daily,
		"anomalies": anomalies,
	})
}

func (s *Server) handleAggregates(c *gin.Context) {
	snapshot := s.snapshotOr503(c)
	if snapshot == nil {
		return
	}
	granularity, ok := granularityParam(c)
	if !ok {
		return
	}
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	series := snapshot.Aggregates.ByGranularity(granularity)
	result := make([]models.AggregatedMetrics, 0, len(series))
	for _, m := range series {
		if filter.matchPeriod(m.Period, m.BackupType) {
			result = append(result, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"granularity": granularity, "aggregates": result})
}

func (s *Server) handleComparisons(c *gin.Context) {
	snapshot := s.snapshotOr503(c)
	if snapshot == nil {
		return
	}
	granularity, ok := granularityParam(c)
	if !ok {
		return
	}
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	comparisons := snapshot.Comparisons[granularity]
	result := make([]models.PeriodComparison, 0, len(comparisons))
	for _, cmp := range comparisons {
		if filter.matchPeriod(cmp.Current.Period, cmp.BackupType) {
			result = append(result, cmp)
		}
	}
	c.JSON(http.StatusOK, gin.H{"granularity": granularity, "comparisons": result})
}

func (s *Server) handleAnomalies(c *gin.Context) {
	snapshot := s.snapshotOr503(c)
	if snapshot == nil {
		return
	}
	filter, ok := parseFilter(c)
	if !ok {
		return
	}
	severity := models.AnomalySeverity(c.Query("severity"))

	result := make([]models.Anomaly, 0, len(snapshot.Anomalies))
	for _, a := range snapshot.Anomalies {
		if !filter.matchPeriod(a.Period, a.BackupType) {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		result = append(result, a)
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": result})
}
