package stealth

import (
	"testing"
	"time"

	"TradeVeil/pkg/config"
)

func profileTable() *ProfileTable {
	return NewProfileTable(map[string]config.ProfileConfig{
		"strict_desk": {
			MaxTradesPerHour:      4,
			MaxDailyProfitPct:     2.0,
			RequiresForcedLosses:  true,
			SpreadFingerprintPips: 1.2,
			ExecFingerprintMs:     80,
		},
		"loose_desk": {
			MaxTradesPerHour:      20,
			MaxDailyProfitPct:     10.0,
			SpreadFingerprintPips: 2.8,
			ExecFingerprintMs:     400,
		},
	})
}

func TestDetectWithinTolerance(t *testing.T) {
	table := profileTable()

	p := table.Detect(1.3, 100)
	if p == nil || p.Name != "strict_desk" {
		t.Fatalf("want strict_desk, got %v", p)
	}
	p = table.Detect(2.6, 350)
	if p == nil || p.Name != "loose_desk" {
		t.Fatalf("want loose_desk, got %v", p)
	}
	if p := table.Detect(5.0, 1000); p != nil {
		t.Fatalf("fingerprint far from every profile matched %s", p.Name)
	}
}

func TestCeilingTrackerHourlyTrades(t *testing.T) {
	c := NewCeilingTracker()
	p := &Profile{Name: "strict", MaxTradesPerHour: 3}
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if c.Exceeded(p, now) {
			t.Fatalf("exceeded after %d trades, cap is 3", i)
		}
		c.NoteTrade(now.Add(time.Duration(i) * time.Minute))
	}
	if !c.Exceeded(p, now.Add(3*time.Minute)) {
		t.Fatalf("not exceeded at the hourly cap")
	}
	// the window rolls, old trades age out
	if c.Exceeded(p, now.Add(2*time.Hour)) {
		t.Fatalf("still exceeded after the hour window rolled")
	}
}

func TestCeilingTrackerDailyProfit(t *testing.T) {
	c := NewCeilingTracker()
	p := &Profile{Name: "strict", MaxDailyProfitPct: 2.0}
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	c.NoteProfit(1.5, now)
	if c.Exceeded(p, now) {
		t.Fatalf("exceeded below the daily cap")
	}
	c.NoteProfit(0.6, now.Add(time.Hour))
	if !c.Exceeded(p, now.Add(time.Hour)) {
		t.Fatalf("not exceeded at 2.1%% against a 2.0%% cap")
	}
	// profit resets at the UTC day boundary
	nextDay := now.Add(24 * time.Hour)
	if c.Exceeded(p, nextDay) {
		t.Fatalf("profit ceiling carried across the day boundary")
	}
	if got := c.DailyProfit(nextDay); got != 0 {
		t.Fatalf("daily profit after reset = %v, want 0", got)
	}
}

func TestNilProfileNeverExceeded(t *testing.T) {
	c := NewCeilingTracker()
	now := time.Now()
	for i := 0; i < 100; i++ {
		c.NoteTrade(now)
		c.NoteProfit(1.0, now)
	}
	if c.Exceeded(nil, now) {
		t.Fatalf("ceilings applied without a detected profile")
	}
}
