package market

import (
	"TradeVeil/internal/domain/models"
)

// DefaultWindow is the rolling buffer size per instrument.
const DefaultWindow = 500

// History is a bounded rolling buffer of price bars for one instrument.
// It is worker-local and not safe for concurrent use.
type History struct {
	instrument string
	window     int
	bars       []models.PriceBar
	head       int
	full       bool
}

// NewHistory creates a rolling buffer with the given window size.
func NewHistory(instrument string, window int) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{
		instrument: instrument,
		window:     window,
		bars:       make([]models.PriceBar, 0, window),
	}
}

// Instrument returns the instrument this history belongs to.
func (h *History) Instrument() string { return h.instrument }

// Update appends a bar, evicting the oldest once the window is exceeded.
// O(1) amortized.
func (h *History) Update(bar models.PriceBar) {
	if !h.full {
		h.bars = append(h.bars, bar)
		if len(h.bars) == h.window {
			h.full = true
		}
		return
	}
	h.bars[h.head] = bar
	h.head = (h.head + 1) % h.window
}

// Len returns the number of buffered bars.
func (h *History) Len() int { return len(h.bars) }

// Bars returns the buffered bars ordered oldest to newest. The returned
// slice is a copy and safe to retain.
func (h *History) Bars() []models.PriceBar {
	out := make([]models.PriceBar, 0, len(h.bars))
	if !h.full {
		return append(out, h.bars...)
	}
	out = append(out, h.bars[h.head:]...)
	return append(out, h.bars[:h.head]...)
}

// Last returns the newest bar, or false when empty.
func (h *History) Last() (models.PriceBar, bool) {
	if len(h.bars) == 0 {
		return models.PriceBar{}, false
	}
	if !h.full {
		return h.bars[len(h.bars)-1], true
	}
	idx := (h.head - 1 + h.window) % h.window
	return h.bars[idx], true
}

// AvgVolume returns the mean volume over the most recent n bars.
func (h *History) AvgVolume(n int) float64 {
	bars := h.Bars()
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

// AvgSpread returns the mean spread over the most recent n bars.
func (h *History) AvgSpread(n int) float64 {
	bars := h.Bars()
	if len(bars) == 0 {
		return 0
	}
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}
	sum := 0.0
	for _, b := range bars[len(bars)-n:] {
		sum += b.Spread
	}
	return sum / float64(n)
}
