package system

import (
	"testing"
	"time"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockNowSecondPrecision checks sub-second components are dropped.
func TestClockNowSecondPrecision(t *testing.T) {
	t.Parallel()

	got := New().Now()
	if got.Nanosecond() != 0 {
		t.Fatalf("expected whole seconds, got %v", got)
	}
	if got.Format("2006-01-02 15:04:05") != got.Format(time.DateTime) {
		t.Fatalf("unexpected formatting for %v", got)
	}
}
