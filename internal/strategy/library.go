package strategy

import (
	"math"
	"time"

	talib "github.com/markcheno/go-talib"

	"TradeVeil/internal/domain/models"
)

// AnalyzeFunc turns recent bars and a structure snapshot into an optional
// candidate. Pure: no shared state, no side effects.
type AnalyzeFunc func(bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal

// Declaration order doubles as the scorer's tie-break order.
var declarationOrder = []models.StrategyTag{
	models.StrategyBreakout,
	models.StrategyLevelReaction,
	models.StrategyTrend,
	models.StrategyReversion,
}

// fallbacks lists up to two backup strategies tried when the primary
// produces no candidate. Backups must clear the stricter fallback floor.
var fallbacks = map[models.StrategyTag][]models.StrategyTag{
	models.StrategyBreakout:      {models.StrategyTrend, models.StrategyLevelReaction},
	models.StrategyLevelReaction: {models.StrategyReversion},
	models.StrategyTrend:         {models.StrategyBreakout},
	models.StrategyReversion:     {models.StrategyLevelReaction},
}

// Library dispatches the closed set of strategy variants via a lookup table.
type Library struct {
	ttl   time.Duration
	table map[models.StrategyTag]AnalyzeFunc
}

// NewLibrary builds the strategy table. ttl bounds candidate lifetime.
func NewLibrary(ttl time.Duration) *Library {
	l := &Library{ttl: ttl}
	l.table = map[models.StrategyTag]AnalyzeFunc{
		models.StrategyBreakout:      l.breakout,
		models.StrategyLevelReaction: l.levelReaction,
		models.StrategyTrend:         l.trendContinuation,
		models.StrategyReversion:     l.meanReversion,
	}
	return l
}

// Tags returns the strategy tags in declaration order.
func Tags() []models.StrategyTag { return declarationOrder }

// Fallbacks returns the backup ordering for a tag.
func Fallbacks(tag models.StrategyTag) []models.StrategyTag { return fallbacks[tag] }

// Analyze runs one strategy. Unknown tags and misses return nil.
func (l *Library) Analyze(tag models.StrategyTag, bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal {
	fn, ok := l.table[tag]
	if !ok {
		return nil
	}
	return fn(bars, ms)
}

func (l *Library) candidate(tag models.StrategyTag, ms models.MarketStructure, dir models.Direction, confidence, entry, stop, target float64) *models.CandidateSignal {
	return &models.CandidateSignal{
		Instrument: ms.Instrument,
		Direction:  dir,
		Strategy:   tag,
		Confidence: math.Max(0, math.Min(100, confidence)),
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		CreatedAt:  ms.Timestamp,
		ExpiresAt:  ms.Timestamp.Add(l.ttl),
	}
}

const breakoutLookback = 20

// breakout fires when the last close clears the recent high/low band with
// volatility behind it.
func (l *Library) breakout(bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal {
	if len(bars) < breakoutLookback+1 {
		return nil
	}
	last := bars[len(bars)-1]
	prior := bars[len(bars)-1-breakoutLookback : len(bars)-1]

	hi, lo := prior[0].High, prior[0].Low
	for _, b := range prior {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}

	pip := models.PipSize(ms.Instrument)
	atr := ms.ATRPips * pip
	if atr <= 0 {
		return nil
	}
	buffer := 2 * pip

	conf := 55 + ms.SessionQuality*20 + ms.LiquidityScore*15
	switch {
	case last.Close > hi+buffer:
		entry := last.Close
		return l.candidate(models.StrategyBreakout, ms, models.DirLong, conf,
			entry, entry-1.5*atr, entry+2.5*atr)
	case last.Close < lo-buffer:
		entry := last.Close
		return l.candidate(models.StrategyBreakout, ms, models.DirShort, conf,
			entry, entry+1.5*atr, entry-2.5*atr)
	}
	return nil
}

// levelReaction fades into bounces off the nearest strong key level.
func (l *Library) levelReaction(bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal {
	if len(ms.KeyLevels) == 0 || len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]
	pip := models.PipSize(ms.Instrument)
	atr := ms.ATRPips * pip
	if atr <= 0 {
		return nil
	}

	level := ms.KeyLevels[0] // nearest by construction
	if level.Strength < 0.3 {
		return nil
	}
	if math.Abs(last.Close-level.Price) > 5*pip {
		return nil
	}

	conf := 50 + level.Strength*30 + ms.LiquidityScore*15
	bullishBar := last.Close > last.Open

	if level.Kind == models.LevelSupport && bullishBar {
		entry := last.Close
		stop := level.Price - 1.0*atr
		return l.candidate(models.StrategyLevelReaction, ms, models.DirLong, conf,
			entry, stop, entry+2*(entry-stop))
	}
	if level.Kind == models.LevelResistance && !bullishBar {
		entry := last.Close
		stop := level.Price + 1.0*atr
		return l.candidate(models.StrategyLevelReaction, ms, models.DirShort, conf,
			entry, stop, entry-2*(stop-entry))
	}
	return nil
}

// trendContinuation joins an established trend after a shallow pullback.
func (l *Library) trendContinuation(bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal {
	if ms.Trend == models.TrendRanging || ms.TrendStrength < 30 || len(bars) < 21 {
		return nil
	}
	last := bars[len(bars)-1]
	pip := models.PipSize(ms.Instrument)
	atr := ms.ATRPips * pip
	if atr <= 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ema := talib.Ema(closes, 20)
	anchor := ema[len(ema)-1]

	conf := 45 + ms.TrendStrength*0.35 + ms.SessionQuality*15

	if ms.Trend == models.TrendBullish && last.Low <= anchor+atr && last.Close > last.Open {
		entry := last.Close
		return l.candidate(models.StrategyTrend, ms, models.DirLong, conf,
			entry, entry-1.5*atr, entry+3*atr)
	}
	if ms.Trend == models.TrendBearish && last.High >= anchor-atr && last.Close < last.Open {
		entry := last.Close
		return l.candidate(models.StrategyTrend, ms, models.DirShort, conf,
			entry, entry+1.5*atr, entry-3*atr)
	}
	return nil
}

const reversionLookback = 20

// meanReversion fades stretched moves back toward the rolling mean while the
// market ranges.
func (l *Library) meanReversion(bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal {
	if ms.Trend != models.TrendRanging || len(bars) < reversionLookback {
		return nil
	}
	last := bars[len(bars)-1]
	pip := models.PipSize(ms.Instrument)
	atr := ms.ATRPips * pip
	if atr <= 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	sma := talib.Sma(closes, reversionLookback)
	mean := sma[len(sma)-1]

	stretch := (last.Close - mean) / atr
	if math.Abs(stretch) < 1.5 {
		return nil
	}

	conf := 50 + math.Min(math.Abs(stretch)*10, 25) + ms.LiquidityScore*10
	if stretch > 0 {
		entry := last.Close
		return l.candidate(models.StrategyReversion, ms, models.DirShort, conf,
			entry, entry+1.2*atr, mean)
	}
	entry := last.Close
	return l.candidate(models.StrategyReversion, ms, models.DirLong, conf,
		entry, entry-1.2*atr, mean)
}
