package stealth

import (
	"math"
	"sync"
	"time"

	"TradeVeil/pkg/config"
)

// Profile describes a counterparty's known enforcement thresholds. A detected
// profile tightens the scheduler's ceilings: trades above the hourly rate or
// profit above the daily cap are skipped instead of dispatched.
type Profile struct {
	Name                 string
	MaxTradesPerHour     int
	MaxDailyProfitPct    float64
	RequiresForcedLosses bool

	spreadPips float64
	execMs     float64
}

// spread and execution-latency fingerprints have to match within these
// tolerances before a profile is considered detected.
const (
	spreadTolerance = 0.5
	execToleranceMs = 150
)

// ProfileTable matches observed execution characteristics against configured
// counterparty fingerprints.
type ProfileTable struct {
	profiles []Profile
}

func NewProfileTable(cfg map[string]config.ProfileConfig) *ProfileTable {
	t := &ProfileTable{}
	for name, p := range cfg {
		t.profiles = append(t.profiles, Profile{
			Name:                 name,
			MaxTradesPerHour:     p.MaxTradesPerHour,
			MaxDailyProfitPct:    p.MaxDailyProfitPct,
			RequiresForcedLosses: p.RequiresForcedLosses,
			spreadPips:           p.SpreadFingerprintPips,
			execMs:               float64(p.ExecFingerprintMs),
		})
	}
	return t
}

// Detect returns the profile whose fingerprint is closest to the observed
// averages, or nil when nothing matches within tolerance.
func (t *ProfileTable) Detect(avgSpreadPips, avgExecMs float64) *Profile {
	var best *Profile
	bestDist := math.MaxFloat64
	for i := range t.profiles {
		p := &t.profiles[i]
		ds := math.Abs(p.spreadPips - avgSpreadPips)
		de := math.Abs(p.execMs - avgExecMs)
		if ds > spreadTolerance || de > execToleranceMs {
			continue
		}
		dist := ds/spreadTolerance + de/execToleranceMs
		if dist < bestDist {
			bestDist = dist
			best = p
		}
	}
	return best
}

// CeilingTracker accumulates dispatched trades and realized profit so the
// scheduler can stay under a detected profile's enforcement thresholds.
// Profit resets at the UTC day boundary, trade counts roll over a one hour
// window.
type CeilingTracker struct {
	mu     sync.Mutex
	trades []time.Time
	day    time.Time
	profit float64
}

func NewCeilingTracker() *CeilingTracker { return &CeilingTracker{} }

// NoteTrade records a dispatched (non-skipped) directive.
func (c *CeilingTracker) NoteTrade(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	c.trades = append(c.trades, now)
}

// NoteProfit accumulates realized profit percent reported by fills.
func (c *CeilingTracker) NoteProfit(pct float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDay(now)
	c.profit += pct
}

// Exceeded reports whether dispatching another trade now would breach either
// of the profile's ceilings.
func (c *CeilingTracker) Exceeded(p *Profile, now time.Time) bool {
	if p == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	c.rollDay(now)
	if p.MaxTradesPerHour > 0 && len(c.trades) >= p.MaxTradesPerHour {
		return true
	}
	if p.MaxDailyProfitPct > 0 && c.profit >= p.MaxDailyProfitPct {
		return true
	}
	return false
}

// DailyProfit returns the profit accumulated in the current UTC day.
func (c *CeilingTracker) DailyProfit(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDay(now)
	return c.profit
}

func (c *CeilingTracker) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(c.trades) && !c.trades[i].After(cutoff) {
		i++
	}
	c.trades = c.trades[i:]
}

func (c *CeilingTracker) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(c.day) {
		c.day = day
		c.profit = 0
	}
}
