package utils

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-10T01:00:00Z", time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)},
		{"2025-03-10T01:00:00.250Z", time.Date(2025, 3, 10, 1, 0, 0, 250000000, time.UTC)},
		{"2025-03-10T01:00:00", time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)},
		{"2025-03-10 01:00:00", time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)},
		{"2025-03-10 01:00:00.500000", time.Date(2025, 3, 10, 1, 0, 0, 500000000, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, nil)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parse %q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestParseTimestampLocation(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	got, err := ParseTimestamp("2025-03-10T12:00:00", cet)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("zone-less value not read in location: %v", got)
	}

	// An explicit zone in the value wins over the configured location.
	got, err = ParseTimestamp("2025-03-10T12:00:00Z", cet)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("explicit zone overridden: %v", got)
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2025-13-40T99:00:00Z"} {
		if _, err := ParseTimestamp(in, nil); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestDateOf(t *testing.T) {
	in := time.Date(2025, 3, 10, 23, 59, 59, 0, time.FixedZone("CET", 3600))
	got := DateOf(in)
	// 23:59 CET is 22:59 UTC, still March 10th.
	if !got.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected midnight UTC of the same day, got %v", got)
	}
}

func TestDurationSeconds(t *testing.T) {
	start := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	if got := DurationSeconds(start, start.Add(90*time.Second)); got != 90 {
		t.Fatalf("expected 90, got %v", got)
	}
	if got := DurationSeconds(start, start.Add(-time.Second)); got >= 0 {
		t.Fatalf("expected negative duration for reversed pair, got %v", got)
	}
}
