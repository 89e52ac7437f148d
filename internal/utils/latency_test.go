package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(100)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if got := tracker.Count(); got != 10 {
		t.Fatalf("expected 10 samples, got %d", got)
	}
	if got := tracker.Percentile(0); got != time.Millisecond {
		t.Fatalf("expected min 1ms, got %v", got)
	}
	if got := tracker.Percentile(100); got != 10*time.Millisecond {
		t.Fatalf("expected max 10ms, got %v", got)
	}
	if got := tracker.Percentile(50); got < 4*time.Millisecond || got > 6*time.Millisecond {
		t.Fatalf("unexpected median %v", got)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	tracker := NewLatencyTracker(10)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("expected zero percentile without samples, got %v", got)
	}
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(5)
	for i := 1; i <= 20; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if got := tracker.Count(); got != 5 {
		t.Fatalf("expected 5 retained samples, got %d", got)
	}
	// Oldest samples are dropped, so the minimum is from the recent window.
	if got := tracker.Percentile(0); got != 16*time.Millisecond {
		t.Fatalf("expected 16ms minimum, got %v", got)
	}
}
