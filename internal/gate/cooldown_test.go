package gate

import (
	"testing"
	"time"
)

func TestCooldownBlocksWithinInterval(t *testing.T) {
	r := NewCooldownRegistry(15 * time.Minute)
	t0 := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)

	if !r.Available("EURUSD", t0) {
		t.Fatalf("fresh instrument must be available")
	}
	r.MarkAccepted("EURUSD", t0)

	if r.Available("EURUSD", t0.Add(5*time.Minute)) {
		t.Fatalf("EURUSD must be cooling 5 minutes after acceptance")
	}
	if got := r.Remaining("EURUSD", t0.Add(5*time.Minute)); got != 10*time.Minute {
		t.Fatalf("want 10m remaining, got %v", got)
	}
	if !r.Available("EURUSD", t0.Add(15*time.Minute)) {
		t.Fatalf("cooldown must lift exactly at the interval")
	}
}

func TestCooldownPerInstrument(t *testing.T) {
	r := NewCooldownRegistry(15 * time.Minute)
	t0 := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)
	r.MarkAccepted("EURUSD", t0)
	if !r.Available("GBPUSD", t0.Add(time.Second)) {
		t.Fatalf("cooldown must not leak across instruments")
	}
}

func TestCooldownOverwrite(t *testing.T) {
	r := NewCooldownRegistry(10 * time.Minute)
	t0 := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)
	r.MarkAccepted("EURUSD", t0)
	r.MarkAccepted("EURUSD", t0.Add(10*time.Minute))
	if r.Available("EURUSD", t0.Add(15*time.Minute)) {
		t.Fatalf("second acceptance must restart the window")
	}
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("one entry per instrument, got %d", len(snap))
	}
}
