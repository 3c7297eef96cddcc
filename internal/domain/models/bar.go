package models

import (
	"strings"
	"time"
)

// PriceBar is the normalized OHLCV record the engine consumes.
// Bars are immutable once appended to an instrument history.
type PriceBar struct {
	Instrument string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Spread     float64 // quote-unit spread observed at bar close
}

// PipSize returns the pip-equivalent for an instrument: 0.01 for
// two-decimal (JPY-quoted) pairs, 0.0001 otherwise.
func PipSize(instrument string) float64 {
	if strings.HasSuffix(strings.ToUpper(instrument), "JPY") {
		return 0.01
	}
	return 0.0001
}

// LotPrecision returns the number of decimals sizes are rounded to.
func LotPrecision(instrument string) int32 { return 2 }
