package models

import "time"

// BackupStatus enumerates the terminal outcome of a backup job run.
type BackupStatus string

const (
	StatusSuccess BackupStatus = "success"
	StatusFailure BackupStatus = "failure"
	StatusPartial BackupStatus = "partial"
)

// Valid reports whether the status is one of the known outcomes.
func (s BackupStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusPartial:
		return true
	}
	return false
}

// BackupRecord is a normalized backup job execution supplied by the ingestion
// layer. DurationSeconds is computed once during normalization and never
// recomputed downstream; a negative value marks a record whose duration could
// not be derived.
type BackupRecord struct {
	BackupID        string         `json:"backup_id"`
	BackupType      string         `json:"backup_type,omitempty"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Status          BackupStatus   `json:"status"`
	SourceSystem    string         `json:"source_system,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// HasDuration reports whether the record carries a usable duration sample.
func (r BackupRecord) HasDuration() bool {
	return r.DurationSeconds >= 0
}
