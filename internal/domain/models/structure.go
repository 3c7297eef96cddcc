package models

import "time"

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendRanging Trend = "ranging"
)

type VolatilityRegime string

const (
	VolLow     VolatilityRegime = "low"
	VolNormal  VolatilityRegime = "normal"
	VolHigh    VolatilityRegime = "high"
	VolExtreme VolatilityRegime = "extreme"
)

type LevelKind string

const (
	LevelSupport    LevelKind = "support"
	LevelResistance LevelKind = "resistance"
)

// KeyLevel is a price level derived from percentile clustering of recent
// highs and lows, ordered by proximity to the current price.
type KeyLevel struct {
	Price    float64
	Kind     LevelKind
	Strength float64 // 0..1, from touch count in the window
}

// MarketStructure is a point-in-time snapshot of market conditions for one
// instrument. It is recomputed on demand from the rolling history and never
// persisted; all numeric fields stay within their declared ranges.
type MarketStructure struct {
	Instrument     string
	Timestamp      time.Time
	Trend          Trend
	TrendStrength  float64 // 0..100
	KeyLevels      []KeyLevel
	Volatility     VolatilityRegime
	ATRPips        float64
	SessionQuality float64 // 0..1
	LiquidityScore float64 // 0..1
}
