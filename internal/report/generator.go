package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/backup-monitor/internal/config"
	"github.com/miradorstack/backup-monitor/internal/models"
)

// Summary condenses a report into headline numbers.
type Summary struct {
	TotalPeriods      int `json:"total_periods"`
	TotalBackups      int `json:"total_backups"`
	SuccessCount      int `json:"success_count"`
	FailureCount      int `json:"failure_count"`
	PartialCount      int `json:"partial_count"`
	AnomalyCount      int `json:"anomaly_count"`
	CriticalAnomalies int `json:"critical_anomalies"`
}

// Report is the serializable bundle handed to downstream consumers.
type Report struct {
	RunID       string                    `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	ReportType  string                    `json:"report_type"`
	Metrics     []models.AggregatedMetrics `json:"metrics"`
	Comparisons []models.PeriodComparison  `json:"comparisons,omitempty"`
	Anomalies   []models.Anomaly           `json:"anomalies,omitempty"`
	Summary     Summary                    `json:"summary"`
}

// Generator renders reports as JSON, CSV and HTML files in the configured
// output directory.
type Generator struct {
	outputDir string
	formats   []string
	logger    *slog.Logger
}

// NewGenerator constructs a generator from reporting configuration.
func NewGenerator(cfg config.ReportingConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{"json"}
	}
	return &Generator{outputDir: cfg.OutputDir, formats: formats, logger: logger}
}

// Build assembles a Report with a fresh run identifier.
func (g *Generator) Build(reportType string, metrics []models.AggregatedMetrics, comparisons []models.PeriodComparison, anomalies []models.Anomaly) Report {
	summary := Summary{
		TotalPeriods: len(metrics),
		AnomalyCount: len(anomalies),
	}
	for _, m := range metrics {
		summary.TotalBackups += m.TotalCount
		summary.SuccessCount += m.SuccessCount
		summary.FailureCount += m.FailureCount
		summary.PartialCount += m.PartialCount
	}
	for _, a := range anomalies {
		if a.Severity == models.SeverityCritical {
			summary.CriticalAnomalies++
		}
	}
	return Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		ReportType:  reportType,
		Metrics:     metrics,
		Comparisons: comparisons,
		Anomalies:   anomalies,
		Summary:     summary,
	}
}

// Write renders the report in every configured format and returns the path
// written per format.
func (g *Generator) Write(report Report) (map[string]string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	stamp := report.GeneratedAt.Format("20060102-150405")
	written := make(map[string]string, len(g.formats))
	for _, format := range g.formats {
		path := filepath.Join(g.outputDir, fmt.Sprintf("%s_%s.%s", report.ReportType, stamp, format))
		var err error
		switch format {
		case "json":
			err = g.writeJSON(path, report)
		case "csv":
			err = g.writeCSV(path, report)
		case "html":
			err = g.writeHTML(path, report)
		default:
			return nil, fmt.Errorf("unsupported report format %q", format)
		}
		if err != nil {
			return nil, fmt.Errorf("write %s report: %w", format, err)
		}
		written[format] = path
	}

	g.logger.Info("report written",
		slog.String("run_id", report.RunID),
		slog.String("type", report.ReportType),
		slog.Int("formats", len(written)))
	return written, nil
}

func (g *Generator) writeJSON(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var csvHeader = []string{
	"period_start", "period_end", "granularity", "backup_type",
	"total_count", "success_count", "failure_count", "partial_count",
	"average_duration", "min_duration", "max_duration", "total_duration",
	"success_rate", "failure_rate",
}

func (g *Generator) writeCSV(path string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, m := range report.Metrics {
		row := []string{
			m.Period.Start.Format("2006-01-02"),
			m.Period.End.Format("2006-01-02"),
			string(m.Granularity),
			m.BackupType,
			strconv.Itoa(m.TotalCount),
			strconv.Itoa(m.SuccessCount),
			strconv.Itoa(m.FailureCount),
			strconv.Itoa(m.PartialCount),
			formatFloat(m.AverageDuration),
			formatFloat(m.MinDuration),
			formatFloat(m.MaxDuration),
			formatFloat(m.TotalDuration),
			formatFloat(m.SuccessRate),
			formatFloat(m.FailureRate),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Backup {{.ReportType}} report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: right; }
th { background: #f0f0f0; }
td.label, th.label { text-align: left; }
.severity-critical { color: #b00020; font-weight: bold; }
.severity-high { color: #d06000; }
</style>
</head>
<body>
<h1>Backup {{.ReportType}} report</h1>
<p>Run {{.RunID}} generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<h2>Summary</h2>
<p>{{.Summary.TotalBackups}} backups over {{.Summary.TotalPeriods}} periods:
{{.Summary.SuccessCount}} succeeded, {{.Summary.FailureCount}} failed,
{{.Summary.PartialCount}} partial. {{.Summary.AnomalyCount}} anomalies
({{.Summary.CriticalAnomalies}} critical).</p>
<h2>Metrics</h2>
<table>
<tr><th class="label">Period</th><th class="label">Type</th><th>Count</th><th>Success</th><th>Failure</th><th>Partial</th><th>Avg (s)</th><th>Max (s)</th><th>Success %</th></tr>
{{range .Metrics}}
<tr>
<td class="label">{{.Period.Start.Format "2006-01-02"}} – {{.Period.End.Format "2006-01-02"}}</td>
<td class="label">{{.BackupType}}</td>
<td>{{.TotalCount}}</td><td>{{.SuccessCount}}</td><td>{{.FailureCount}}</td><td>{{.PartialCount}}</td>
<td>{{printf "%.1f" .AverageDuration}}</td><td>{{printf "%.1f" .MaxDuration}}</td>
<td>{{printf "%.1f" .SuccessRate}}</td>
</tr>
{{end}}
</table>
{{if .Anomalies}}
<h2>Anomalies</h2>
<table>
<tr><th class="label">Period</th><th class="label">Type</th><th class="label">Anomaly</th><th class="label">Severity</th><th>Observed</th><th>Baseline</th><th>Deviation %</th></tr>
{{range .Anomalies}}
<tr>
<td class="label">{{.Period.Start.Format "2006-01-02"}}</td>
<td class="label">{{.BackupType}}</td>
<td class="label">{{.Type}}</td>
<td class="label severity-{{.Severity}}">{{.Severity}}</td>
<td>{{printf "%.1f" .Observed}}</td><td>{{printf "%.1f" .Baseline}}</td>
<td>{{printf "%.1f" .DeviationPct}}</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))

func (g *Generator) writeHTML(path string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return htmlTemplate.Execute(f, report)
}
