package utils

import (
	"fmt"
	"time"
)

// timestampLayouts lists the accepted wire formats, tried in order. RFC3339
// comes first; the bare layouts cover feeds that omit zone information.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

// ParseTimestamp parses a backup feed timestamp. Zone-less values are
// interpreted in loc (UTC when loc is nil).
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// DateOf truncates a timestamp to its midnight-UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DurationSeconds converts a start/end pair into seconds. Returns a negative
// value when end precedes start so callers can treat the sample as invalid
// instead of silently swapping.
func DurationSeconds(start, end time.Time) float64 {
	return end.Sub(start).Seconds()
}
