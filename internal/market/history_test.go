package market

import (
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
)

func mkBar(instrument string, i int, close float64) models.PriceBar {
	return models.PriceBar{
		Instrument: instrument,
		Timestamp:  time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Open:       close - 0.0002,
		High:       close + 0.0005,
		Low:        close - 0.0005,
		Close:      close,
		Volume:     1000,
		Spread:     0.0001,
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory("EURUSD", 5)
	for i := 0; i < 8; i++ {
		h.Update(mkBar("EURUSD", i, 1.1000+float64(i)*0.0001))
	}
	if h.Len() != 5 {
		t.Fatalf("want 5 bars, got %d", h.Len())
	}
	bars := h.Bars()
	if bars[0].Close != 1.1003 {
		t.Fatalf("oldest should be bar 3, got close %v", bars[0].Close)
	}
	last, ok := h.Last()
	if !ok || last.Close != 1.1007 {
		t.Fatalf("newest should be bar 7, got %v ok=%v", last.Close, ok)
	}
}

func TestHistoryOrderPreserved(t *testing.T) {
	h := NewHistory("EURUSD", 10)
	for i := 0; i < 25; i++ {
		h.Update(mkBar("EURUSD", i, 1.0+float64(i)))
	}
	bars := h.Bars()
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("bars out of order at %d", i)
		}
	}
}

func TestHistoryAverages(t *testing.T) {
	h := NewHistory("EURUSD", 100)
	for i := 0; i < 10; i++ {
		b := mkBar("EURUSD", i, 1.1)
		b.Volume = float64(100 * (i + 1))
		h.Update(b)
	}
	got := h.AvgVolume(2)
	if got != 950 {
		t.Fatalf("avg of last two volumes: want 950, got %v", got)
	}
	if h.AvgSpread(5) != 0.0001 {
		t.Fatalf("unexpected avg spread %v", h.AvgSpread(5))
	}
}
