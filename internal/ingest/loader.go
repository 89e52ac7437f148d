package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

// Loader parses raw backup metadata feeds into normalized BackupRecords.
// Records that violate the ingestion contract are rejected here, before the
// engine ever sees them.
type Loader struct {
	logger   *slog.Logger
	location *time.Location
}

// NewLoader constructs a loader. Zone-less timestamps are interpreted in loc;
// nil means UTC.
func NewLoader(logger *slog.Logger, loc *time.Location) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Loader{logger: logger, location: loc}
}

// rawRecord mirrors the upstream JSON feed before normalization.
type rawRecord struct {
	BackupID     string         `json:"backup_id"`
	StartTime    string         `json:"start_time"`
	EndTime      string         `json:"end_time"`
	Status       string         `json:"status"`
	BackupType   string         `json:"backup_type"`
	SourceSystem string         `json:"source_system"`
	Metadata     map[string]any `json:"metadata"`
}

// LoadFile reads and parses a JSON file of backup records.
func (l *Loader) LoadFile(path string) ([]models.BackupRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup feed %s: %w", path, err)
	}
	records, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse backup feed %s: %w", path, err)
	}
	return records, nil
}

// Parse decodes a JSON array of raw backup records and normalizes each one.
// All failing records are reported together so a bad feed can be fixed in one
// pass.
func (l *Loader) Parse(data []byte) ([]models.BackupRecord, error) {
	var raw []rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode backup feed: %w", err)
	}

	records := make([]models.BackupRecord, 0, len(raw))
	var errs []error
	for idx, r := range raw {
		record, err := l.normalize(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", idx, err))
			continue
		}
		records = append(records, record)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	l.logger.Debug("backup feed parsed", slog.Int("records", len(records)))
	return records, nil
}

func (l *Loader) normalize(raw rawRecord) (models.BackupRecord, error) {
	if raw.BackupID == "" {
		return models.BackupRecord{}, utils.NewValidationError("backup_id", "", "must not be empty")
	}

	start, err := utils.ParseTimestamp(raw.StartTime, l.location)
	if err != nil {
		return models.BackupRecord{}, utils.NewValidationError("start_time", raw.BackupID, err.Error())
	}
	end, err := utils.ParseTimestamp(raw.EndTime, l.location)
	if err != nil {
		return models.BackupRecord{}, utils.NewValidationError("end_time", raw.BackupID, err.Error())
	}
	if end.Before(start) {
		return models.BackupRecord{}, utils.NewValidationError("end_time", raw.BackupID, "must not precede start_time")
	}

	status := models.BackupStatus(strings.ToLower(raw.Status))
	if !status.Valid() {
		return models.BackupRecord{}, utils.NewValidationError("status", raw.BackupID,
			fmt.Sprintf("unknown status %q", raw.Status))
	}

	return models.BackupRecord{
		BackupID:        raw.BackupID,
		BackupType:      raw.BackupType,
		StartTime:       start.UTC(),
		EndTime:         end.UTC(),
		Status:          status,
		SourceSystem:    raw.SourceSystem,
		Metadata:        raw.Metadata,
		DurationSeconds: utils.DurationSeconds(start, end),
	}, nil
}
