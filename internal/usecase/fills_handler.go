package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	"TradeVeil/internal/domain/service"
	"TradeVeil/internal/stealth"
	"TradeVeil/internal/strategy"
	pkgkafka "TradeVeil/pkg/kafka"
	applogger "TradeVeil/pkg/logger"
)

// fingerprintWindow is how many recent fills feed the rolling execution
// characteristics used for counterparty profile detection.
const fingerprintWindow = 20

// FillsHandler consumes execution reports from the order-placement
// collaborator. Each fill frees the concurrency slot it held, feeds the
// strategy win-rate tracker, and updates the stealth scheduler's view of the
// counterparty.
type FillsHandler struct {
	topic     string
	ledger    service.Ledger
	stats     *strategy.WinRateTracker
	scheduler *stealth.Scheduler
	metrics   domrepo.Metrics
	log       *applogger.Logger

	mu      sync.Mutex
	spreads []float64
	execMs  []float64
}

func NewFillsHandler(
	topic string,
	ledger service.Ledger,
	stats *strategy.WinRateTracker,
	scheduler *stealth.Scheduler,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *FillsHandler {
	return &FillsHandler{
		topic:     topic,
		ledger:    ledger,
		stats:     stats,
		scheduler: scheduler,
		metrics:   metrics,
		log:       log,
	}
}

func (h *FillsHandler) Topic() string { return h.topic }

// incoming message schema:
// {instrument, execution_id, strategy, won, profit_pct, spread_pips, exec_ms, t}
func (h *FillsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Instrument  string  `json:"instrument"`
		ExecutionID string  `json:"execution_id"`
		Strategy    string  `json:"strategy"`
		Won         bool    `json:"won"`
		ProfitPct   float64 `json:"profit_pct"`
		SpreadPips  float64 `json:"spread_pips"`
		ExecMs      float64 `json:"exec_ms"`
		T           int64   `json:"t"` // ms
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Instrument == "" || m.ExecutionID == "" {
		h.metrics.RecordError("consumer_fill_invalid")
		return nil // malformed fill, nothing to retry
	}

	if !h.ledger.Release(m.Instrument, m.ExecutionID) {
		h.log.Warn("fill for unknown execution",
			applogger.String("instrument", m.Instrument),
			applogger.String("execution_id", m.ExecutionID))
	}

	if m.Strategy != "" {
		h.stats.Record(models.StrategyTag(m.Strategy), m.Won)
	}

	now := time.Now().UTC()
	if m.T > 0 {
		now = time.UnixMilli(m.T).UTC()
	}
	h.scheduler.Ceilings().NoteProfit(m.ProfitPct, now)
	h.observe(m.SpreadPips, m.ExecMs)

	h.log.Info("fill processed",
		applogger.String("instrument", m.Instrument),
		applogger.String("execution_id", m.ExecutionID),
		applogger.Bool("won", m.Won))
	return nil
}

// observe keeps rolling averages of the counterparty's execution footprint
// and re-runs profile detection.
func (h *FillsHandler) observe(spreadPips, execMs float64) {
	if spreadPips <= 0 && execMs <= 0 {
		return
	}
	h.mu.Lock()
	h.spreads = append(h.spreads, spreadPips)
	h.execMs = append(h.execMs, execMs)
	if len(h.spreads) > fingerprintWindow {
		h.spreads = h.spreads[1:]
		h.execMs = h.execMs[1:]
	}
	avgSpread, avgExec := avg(h.spreads), avg(h.execMs)
	h.mu.Unlock()
	h.scheduler.ObserveExecution(avgSpread, avgExec)
}

func avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

var _ pkgkafka.MessageHandler = (*FillsHandler)(nil)
