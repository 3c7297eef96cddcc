package strategy

import (
	"sync"

	"TradeVeil/internal/domain/models"
)

// Stats exposes trailing performance per strategy for the scorer.
type Stats interface {
	WinRate(tag models.StrategyTag) float64
}

const trackerWindow = 50

// WinRateTracker keeps a rolling window of trade outcomes per strategy.
// Outcomes arrive from the order-lifecycle consumer, so the tracker is
// shared across workers and guarded.
type WinRateTracker struct {
	mu       sync.RWMutex
	outcomes map[models.StrategyTag][]bool
}

func NewWinRateTracker() *WinRateTracker {
	return &WinRateTracker{outcomes: make(map[models.StrategyTag][]bool)}
}

// Record appends one closed-trade outcome for a strategy.
func (t *WinRateTracker) Record(tag models.StrategyTag, won bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	window := append(t.outcomes[tag], won)
	if len(window) > trackerWindow {
		window = window[len(window)-trackerWindow:]
	}
	t.outcomes[tag] = window
}

// WinRate returns the trailing win rate in [0,1]. Strategies with no history
// report 0.5 so scoring neither rewards nor punishes them.
func (t *WinRateTracker) WinRate(tag models.StrategyTag) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	window := t.outcomes[tag]
	if len(window) == 0 {
		return 0.5
	}
	wins := 0
	for _, w := range window {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(window))
}
