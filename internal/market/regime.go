package market

import (
	"fmt"
	"math"
	"sort"

	talib "github.com/markcheno/go-talib"

	"TradeVeil/internal/domain/models"
	"TradeVeil/pkg/config"
)

// Analyzer derives a MarketStructure snapshot from an instrument history.
type Analyzer struct {
	cfg config.RegimeConfig
}

// NewAnalyzer creates a regime analyzer with the given tunables.
func NewAnalyzer(cfg config.RegimeConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze computes trend, volatility regime, key levels, session quality and
// liquidity from the rolling buffer. Returns ErrInsufficientData when fewer
// bars than the trend lookback are available.
func (a *Analyzer) Analyze(bars []models.PriceBar) (models.MarketStructure, error) {
	if len(bars) < a.cfg.TrendLookback {
		return models.MarketStructure{}, fmt.Errorf("%w: %d bars, need %d",
			models.ErrInsufficientData, len(bars), a.cfg.TrendLookback)
	}

	last := bars[len(bars)-1]
	pip := models.PipSize(last.Instrument)

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	trend, strength := a.trend(closes, pip)
	atrPips, regime := a.volatility(highs, lows, closes, pip)
	levels := a.keyLevels(bars, last.Close, pip)

	ms := models.MarketStructure{
		Instrument:     last.Instrument,
		Timestamp:      last.Timestamp,
		Trend:          trend,
		TrendStrength:  strength,
		KeyLevels:      levels,
		Volatility:     regime,
		ATRPips:        atrPips,
		SessionQuality: a.sessionQuality(bars),
		LiquidityScore: a.liquidity(bars, pip),
	}
	return ms, nil
}

// trend fits closes over the lookback window and converts the slope to
// pips per bar. Slopes under the ranging threshold flatten to ranging.
func (a *Analyzer) trend(closes []float64, pip float64) (models.Trend, float64) {
	window := closes[len(closes)-a.cfg.TrendLookback:]
	slopes := talib.LinearRegSlope(window, len(window))
	slopePips := slopes[len(slopes)-1] / pip

	if math.Abs(slopePips) < a.cfg.RangingSlopePips {
		return models.TrendRanging, 0
	}
	strength := math.Min(100, math.Abs(slopePips)*a.cfg.SlopeStrengthScale)
	if slopePips > 0 {
		return models.TrendBullish, strength
	}
	return models.TrendBearish, strength
}

// volatility buckets a Wilder-style ATR expressed in pips.
func (a *Analyzer) volatility(highs, lows, closes []float64, pip float64) (float64, models.VolatilityRegime) {
	if len(closes) < a.cfg.ATRPeriod+1 {
		return 0, models.VolLow
	}
	atr := talib.Atr(highs, lows, closes, a.cfg.ATRPeriod)
	atrPips := atr[len(atr)-1] / pip

	switch {
	case atrPips < 15:
		return atrPips, models.VolLow
	case atrPips < 50:
		return atrPips, models.VolNormal
	case atrPips < 100:
		return atrPips, models.VolHigh
	default:
		return atrPips, models.VolExtreme
	}
}

var levelPercentiles = []float64{10, 25, 50, 75, 90}

// keyLevels clusters recent highs and lows at fixed percentiles, keeps those
// within reach of the current price, and returns the nearest ones sorted by
// proximity.
func (a *Analyzer) keyLevels(bars []models.PriceBar, price, pip float64) []models.KeyLevel {
	window := bars
	if len(window) > a.cfg.TrendLookback {
		window = window[len(window)-a.cfg.TrendLookback:]
	}
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, b := range window {
		highs[i] = b.High
		lows[i] = b.Low
	}

	candidates := make([]float64, 0, 2*len(levelPercentiles))
	for _, p := range levelPercentiles {
		candidates = append(candidates, percentile(highs, p), percentile(lows, p))
	}

	maxDist := a.cfg.LevelMaxPips * pip
	levels := make([]models.KeyLevel, 0, len(candidates))
	for _, lv := range candidates {
		if math.Abs(lv-price) > maxDist {
			continue
		}
		kind := models.LevelResistance
		if lv < price {
			kind = models.LevelSupport
		}
		levels = append(levels, models.KeyLevel{
			Price:    lv,
			Kind:     kind,
			Strength: levelStrength(window, lv, pip),
		})
	}
	sort.Slice(levels, func(i, j int) bool {
		return math.Abs(levels[i].Price-price) < math.Abs(levels[j].Price-price)
	})
	if len(levels) > a.cfg.MaxLevels {
		levels = levels[:a.cfg.MaxLevels]
	}
	return levels
}

// levelStrength counts bars touching the level within a small tolerance.
func levelStrength(bars []models.PriceBar, level, pip float64) float64 {
	tol := 3 * pip
	touches := 0
	for _, b := range bars {
		if math.Abs(b.High-level) <= tol || math.Abs(b.Low-level) <= tol {
			touches++
		}
	}
	return math.Min(1, float64(touches)/10)
}

// sessionQuality looks up the base quality by trading session and nudges it
// up when recent volume runs more than 20% over the rolling average.
func (a *Analyzer) sessionQuality(bars []models.PriceBar) float64 {
	last := bars[len(bars)-1]
	q := QualityAt(last.Timestamp)

	recent := avgVolume(bars, 10)
	rolling := avgVolume(bars, len(bars))
	if rolling > 0 && recent > 1.2*rolling {
		q = math.Min(1, q+0.1)
	}
	return q
}

// liquidity averages a volume-adequacy term and a spread-tightness term,
// each clamped to [0,1].
func (a *Analyzer) liquidity(bars []models.PriceBar, pip float64) float64 {
	recent := avgVolume(bars, 10)
	rolling := avgVolume(bars, len(bars))
	volTerm := 0.0
	if rolling > 0 {
		volTerm = clamp01(recent / rolling)
	}

	spreadPips := bars[len(bars)-1].Spread / pip
	spreadTerm := clamp01(1 - spreadPips/a.cfg.MaxSpreadPips)

	return (volTerm + spreadTerm) / 2
}

func avgVolume(bars []models.PriceBar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}
	sum := 0.0
	for _, b := range bars[len(bars)-n:] {
		sum += b.Volume
	}
	return sum / float64(n)
}

// percentile computes the p-th percentile with linear interpolation.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
