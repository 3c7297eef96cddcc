package strategy

import (
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
)

func flatBars(n int, base float64) []models.PriceBar {
	start := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, models.PriceBar{
			Instrument: "EURUSD",
			Timestamp:  start.Add(time.Duration(i) * time.Minute),
			Open:       base,
			High:       base + 0.0008,
			Low:        base - 0.0008,
			Close:      base,
			Volume:     1000,
			Spread:     0.0001,
		})
	}
	return bars
}

func TestBreakoutLong(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	bars := flatBars(40, 1.1000)
	last := &bars[len(bars)-1]
	last.Close = 1.1020 // well above the 20-bar high plus buffer
	last.High = 1.1022
	last.Open = 1.1005

	ms := baseStructure()
	ms.ATRPips = 20
	ms.Volatility = models.VolNormal

	cand := lib.Analyze(models.StrategyBreakout, bars, ms)
	if cand == nil {
		t.Fatalf("expected breakout candidate")
	}
	if cand.Direction != models.DirLong {
		t.Fatalf("want long, got %s", cand.Direction)
	}
	if !(cand.Stop < cand.Entry && cand.Entry < cand.Target) {
		t.Fatalf("long ordering violated: stop=%v entry=%v target=%v", cand.Stop, cand.Entry, cand.Target)
	}
	if cand.Confidence < 0 || cand.Confidence > 100 {
		t.Fatalf("confidence out of range: %v", cand.Confidence)
	}
	if !cand.ExpiresAt.After(cand.CreatedAt) {
		t.Fatalf("expiry must exceed creation")
	}
}

func TestBreakoutNoSignalInsideRange(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	ms := baseStructure()
	ms.ATRPips = 20
	if cand := lib.Analyze(models.StrategyBreakout, flatBars(40, 1.1000), ms); cand != nil {
		t.Fatalf("flat market should not break out, got %+v", cand)
	}
}

func TestLevelReactionLongAtSupport(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	bars := flatBars(30, 1.1002)
	last := &bars[len(bars)-1]
	last.Open = 1.0999
	last.Close = 1.1002 // bullish bar near the support

	ms := baseStructure()
	ms.ATRPips = 20
	ms.KeyLevels = []models.KeyLevel{{Price: 1.1000, Kind: models.LevelSupport, Strength: 0.8}}

	cand := lib.Analyze(models.StrategyLevelReaction, bars, ms)
	if cand == nil {
		t.Fatalf("expected level reaction candidate")
	}
	if cand.Direction != models.DirLong {
		t.Fatalf("want long off support, got %s", cand.Direction)
	}
	if !(cand.Stop < cand.Entry && cand.Entry < cand.Target) {
		t.Fatalf("long ordering violated: %+v", cand)
	}
}

func TestLevelReactionWeakLevelIgnored(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	bars := flatBars(30, 1.1002)
	ms := baseStructure()
	ms.ATRPips = 20
	ms.KeyLevels = []models.KeyLevel{{Price: 1.1000, Kind: models.LevelSupport, Strength: 0.1}}
	if cand := lib.Analyze(models.StrategyLevelReaction, bars, ms); cand != nil {
		t.Fatalf("weak level should be ignored")
	}
}

func TestTrendContinuationShort(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	// Falling closes with a final up-wick that fails.
	start := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, 0, 40)
	for i := 0; i < 40; i++ {
		c := 1.1100 - float64(i)*0.0004
		bars = append(bars, models.PriceBar{
			Instrument: "EURUSD",
			Timestamp:  start.Add(time.Duration(i) * time.Minute),
			Open:       c + 0.0002,
			High:       c + 0.0006,
			Low:        c - 0.0006,
			Close:      c,
			Volume:     1000,
			Spread:     0.0001,
		})
	}
	// Final bar spikes back up toward the moving average and fails.
	last := &bars[len(bars)-1]
	last.High = last.Close + 0.0040
	last.Open = last.Close + 0.0030

	ms := baseStructure()
	ms.Trend = models.TrendBearish
	ms.TrendStrength = 80
	ms.ATRPips = 20
	ms.Volatility = models.VolNormal

	cand := lib.Analyze(models.StrategyTrend, bars, ms)
	if cand == nil {
		t.Fatalf("expected trend continuation candidate")
	}
	if cand.Direction != models.DirShort {
		t.Fatalf("want short, got %s", cand.Direction)
	}
	if !(cand.Target < cand.Entry && cand.Entry < cand.Stop) {
		t.Fatalf("short ordering violated: %+v", cand)
	}
}

func TestMeanReversionFadesStretch(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	bars := flatBars(30, 1.1000)
	last := &bars[len(bars)-1]
	last.Close = 1.1040 // ~2 ATR above the 20-bar mean at 20-pip ATR
	last.Open = 1.1035
	last.High = 1.1042

	ms := baseStructure()
	ms.ATRPips = 20

	cand := lib.Analyze(models.StrategyReversion, bars, ms)
	if cand == nil {
		t.Fatalf("expected reversion candidate")
	}
	if cand.Direction != models.DirShort {
		t.Fatalf("stretched above mean should fade short, got %s", cand.Direction)
	}
	if !(cand.Target < cand.Entry && cand.Entry < cand.Stop) {
		t.Fatalf("short ordering violated: %+v", cand)
	}
}

func TestMeanReversionRequiresRanging(t *testing.T) {
	lib := NewLibrary(5 * time.Minute)
	bars := flatBars(30, 1.1000)
	ms := baseStructure()
	ms.Trend = models.TrendBullish
	ms.ATRPips = 20
	if cand := lib.Analyze(models.StrategyReversion, bars, ms); cand != nil {
		t.Fatalf("reversion must not fire in a trend")
	}
}

func TestFallbacksBounded(t *testing.T) {
	for _, tag := range Tags() {
		fb := Fallbacks(tag)
		if len(fb) > 2 {
			t.Fatalf("%s declares %d fallbacks, max is 2", tag, len(fb))
		}
		for _, f := range fb {
			if f == tag {
				t.Fatalf("%s lists itself as fallback", tag)
			}
		}
	}
}
