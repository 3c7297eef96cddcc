package market

import (
	"errors"
	"math"
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
	"TradeVeil/pkg/config"
)

func testRegimeConfig() config.RegimeConfig {
	return config.RegimeConfig{
		TrendLookback:      50,
		ATRPeriod:          14,
		RangingSlopePips:   0.5,
		SlopeStrengthScale: 20,
		LevelMaxPips:       50,
		MaxLevels:          5,
		MaxSpreadPips:      5,
	}
}

// trendBars builds n bars drifting by slopePips per bar around a base price.
func trendBars(n int, base, slopePips float64) []models.PriceBar {
	bars := make([]models.PriceBar, 0, n)
	start := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC) // London/NY overlap
	for i := 0; i < n; i++ {
		c := base + float64(i)*slopePips*0.0001
		bars = append(bars, models.PriceBar{
			Instrument: "EURUSD",
			Timestamp:  start.Add(time.Duration(i) * time.Minute),
			Open:       c - 0.0001,
			High:       c + 0.0010,
			Low:        c - 0.0010,
			Close:      c,
			Volume:     1000,
			Spread:     0.0001,
		})
	}
	return bars
}

func TestAnalyzeInsufficientData(t *testing.T) {
	a := NewAnalyzer(testRegimeConfig())
	_, err := a.Analyze(trendBars(3, 1.1, 0))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("want ErrInsufficientData, got %v", err)
	}
}

func TestAnalyzeBullishTrend(t *testing.T) {
	a := NewAnalyzer(testRegimeConfig())
	ms, err := a.Analyze(trendBars(60, 1.1000, 2.0))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ms.Trend != models.TrendBullish {
		t.Fatalf("want bullish, got %s", ms.Trend)
	}
	if ms.TrendStrength <= 0 || ms.TrendStrength > 100 {
		t.Fatalf("strength out of range: %v", ms.TrendStrength)
	}
}

func TestAnalyzeRangingFlat(t *testing.T) {
	a := NewAnalyzer(testRegimeConfig())
	ms, err := a.Analyze(trendBars(60, 1.1000, 0.1))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ms.Trend != models.TrendRanging {
		t.Fatalf("want ranging, got %s (strength %v)", ms.Trend, ms.TrendStrength)
	}
	if ms.TrendStrength != 0 {
		t.Fatalf("ranging strength should be 0, got %v", ms.TrendStrength)
	}
}

func TestAnalyzeVolatilityBuckets(t *testing.T) {
	a := NewAnalyzer(testRegimeConfig())
	// True range is ~20 pips per bar (high-low = 0.0020).
	ms, err := a.Analyze(trendBars(60, 1.1000, 0))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ms.Volatility != models.VolNormal {
		t.Fatalf("want normal volatility at ~20 pips ATR, got %s (%v pips)", ms.Volatility, ms.ATRPips)
	}
}

func TestAnalyzeFieldRanges(t *testing.T) {
	a := NewAnalyzer(testRegimeConfig())
	ms, err := a.Analyze(trendBars(120, 1.1000, 1.2))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ms.SessionQuality < 0 || ms.SessionQuality > 1 {
		t.Fatalf("session quality out of range: %v", ms.SessionQuality)
	}
	if ms.LiquidityScore < 0 || ms.LiquidityScore > 1 {
		t.Fatalf("liquidity out of range: %v", ms.LiquidityScore)
	}
	if len(ms.KeyLevels) > 5 {
		t.Fatalf("too many key levels: %d", len(ms.KeyLevels))
	}
	for _, kl := range ms.KeyLevels {
		if kl.Strength < 0 || kl.Strength > 1 {
			t.Fatalf("level strength out of range: %v", kl.Strength)
		}
	}
	// Levels sorted by proximity to last close.
	last := ms.KeyLevels
	price := 1.1000 + 119*1.2*0.0001
	for i := 1; i < len(last); i++ {
		if math.Abs(last[i].Price-price) < math.Abs(last[i-1].Price-price) {
			t.Fatalf("levels not sorted by proximity")
		}
	}
}

func TestSessionLookup(t *testing.T) {
	cases := []struct {
		hour int
		want Session
	}{
		{3, SessionAsian},
		{9, SessionLondon},
		{13, SessionOverlap},
		{18, SessionNewYork},
		{22, SessionDead},
	}
	for _, tc := range cases {
		ts := time.Date(2025, 3, 3, tc.hour, 0, 0, 0, time.UTC)
		if got := SessionAt(ts); got != tc.want {
			t.Fatalf("hour %d: want %s, got %s", tc.hour, tc.want, got)
		}
	}
	if QualityAt(time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)) != 1.0 {
		t.Fatalf("overlap should have top quality")
	}
}
