package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	"TradeVeil/internal/domain/service"
	"TradeVeil/internal/gate"
	"TradeVeil/internal/market"
	"TradeVeil/internal/strategy"
	"TradeVeil/pkg/config"
	applogger "TradeVeil/pkg/logger"
)

// spreadBaseline is how many recent bars feed the normal-spread estimate
// behind the spread guard.
const spreadBaseline = 50

// Engine runs the signal decision loop. Each instrument gets its own worker
// goroutine with private history and analysis state; only the cooldown
// registry, the concurrency ledger, and the win-rate tracker are shared.
type Engine struct {
	cfg       *config.Config
	cooldown  service.CooldownGate
	validator service.Validator
	scheduler service.Scheduler
	stats     *strategy.WinRateTracker
	journal   domrepo.Journal
	publisher domrepo.Publisher
	dispatch  *Dispatcher
	metrics   domrepo.Metrics
	log       *applogger.Logger

	mu      sync.Mutex
	workers map[string]*instrumentWorker
	wg      sync.WaitGroup
	stopped bool
}

// instrumentWorker owns the per-instrument decision state.
type instrumentWorker struct {
	instrument string
	history    *market.History
	analyzer   *market.Analyzer
	scorer     *strategy.Scorer
	library    *strategy.Library
	barCh      chan *models.PriceBar
}

func NewEngine(
	cfg *config.Config,
	cooldown service.CooldownGate,
	validator service.Validator,
	scheduler service.Scheduler,
	stats *strategy.WinRateTracker,
	journal domrepo.Journal,
	publisher domrepo.Publisher,
	dispatch *Dispatcher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		cooldown:  cooldown,
		validator: validator,
		scheduler: scheduler,
		stats:     stats,
		journal:   journal,
		publisher: publisher,
		dispatch:  dispatch,
		metrics:   metrics,
		log:       log,
		workers:   make(map[string]*instrumentWorker),
	}
}

// Process routes a validated bar to its instrument worker, spawning the
// worker on first sight. Implements the pipeline's downstream interface.
func (e *Engine) Process(ctx context.Context, bar *models.PriceBar) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("engine stopped")
	}
	w, ok := e.workers[bar.Instrument]
	if !ok {
		w = &instrumentWorker{
			instrument: bar.Instrument,
			history:    market.NewHistory(bar.Instrument, e.cfg.Engine.Window),
			analyzer:   market.NewAnalyzer(e.cfg.Engine.Regime),
			scorer:     strategy.NewScorer(e.stats),
			library:    strategy.NewLibrary(e.cfg.Engine.SignalTTL),
			barCh:      make(chan *models.PriceBar, 256),
		}
		e.workers[bar.Instrument] = w
		e.wg.Add(1)
		go e.run(ctx, w)
	}
	e.mu.Unlock()

	select {
	case w.barCh <- bar:
		return nil
	default:
		e.metrics.RecordError("engine_bar_drop")
		return nil
	}
}

// Stop prevents new workers and waits for the existing ones to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, w := range e.workers {
		close(w.barCh)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, w *instrumentWorker) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-w.barCh:
			if !ok {
				return
			}
			e.cycle(ctx, w, bar)
		}
	}
}

// cycle is one full pass of the decision loop for one bar. Every outcome is
// non-fatal: the worker logs, journals where warranted, and waits for the
// next bar.
func (e *Engine) cycle(ctx context.Context, w *instrumentWorker, bar *models.PriceBar) {
	start := time.Now()
	w.history.Update(*bar)
	bars := w.history.Bars()

	ms, err := w.analyzer.Analyze(bars)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			// warmup: counted, not journaled
			e.metrics.RecordRejection(string(models.ReasonInsufficientData))
			return
		}
		e.metrics.RecordError("regime_analyze")
		e.log.Error("regime analysis failed",
			applogger.String("instrument", w.instrument),
			applogger.Error(err))
		return
	}

	cand := e.pickCandidate(w, bars, ms)
	if cand == nil {
		e.metrics.RecordRejection(string(models.ReasonNoConsensus))
		return
	}

	now := bar.Timestamp
	if !e.cooldown.Available(w.instrument, now) {
		e.reject(ctx, cand, models.ReasonCooldownActive,
			fmt.Sprintf("remaining %s", e.cooldown.Remaining(w.instrument, now).Round(time.Second)))
		return
	}

	res := e.validator.Validate(cand, bar.Spread, w.history.AvgSpread(spreadBaseline), now)
	if !res.IsValid {
		for _, reason := range res.Reasons {
			e.reject(ctx, cand, reason, "")
		}
		return
	}

	sig := e.accept(ctx, cand, res, now)
	if sig == nil {
		return
	}
	e.schedule(ctx, sig)
	e.metrics.RecordLatency("engine_cycle", time.Since(start).Seconds())
}

// pickCandidate tries the top-ranked strategy first, then up to two
// fallbacks. A fallback candidate must clear the higher fallback floor
// before it can proceed.
func (e *Engine) pickCandidate(w *instrumentWorker, bars []models.PriceBar, ms models.MarketStructure) *models.CandidateSignal {
	ranked := w.scorer.Rank(ms)
	if len(ranked) == 0 {
		return nil
	}
	if cand := w.library.Analyze(ranked[0], bars, ms); cand != nil {
		return cand
	}
	for _, tag := range strategy.Fallbacks(ranked[0]) {
		cand := w.library.Analyze(tag, bars, ms)
		if cand == nil {
			continue
		}
		if cand.Confidence < e.cfg.Engine.FallbackFloor {
			e.log.Debug("fallback candidate below floor",
				applogger.String("instrument", w.instrument),
				applogger.String("strategy", string(tag)),
				applogger.Any("confidence", cand.Confidence))
			continue
		}
		return cand
	}
	return nil
}

func (e *Engine) accept(ctx context.Context, cand *models.CandidateSignal, res models.ValidationResult, now time.Time) *models.Signal {
	confidence := cand.Confidence + res.ConfidenceDelta
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	sig := &models.Signal{
		ID:         uuid.NewString(),
		Instrument: cand.Instrument,
		Direction:  cand.Direction,
		Strategy:   cand.Strategy,
		Confidence: confidence,
		Entry:      cand.Entry,
		Stop:       cand.Stop,
		Target:     cand.Target,
		CreatedAt:  cand.CreatedAt,
		ExpiresAt:  cand.ExpiresAt,
	}

	e.cooldown.MarkAccepted(sig.Instrument, now)
	e.validator.NoteAccepted(sig)
	e.metrics.RecordSignal(sig.Instrument, string(sig.Strategy))
	e.metrics.RecordConfidence(sig.Instrument, sig.Confidence)

	if err := e.journal.RecordSignal(ctx, sig); err != nil {
		e.metrics.RecordError("journal_signal")
	}
	if err := e.publisher.PublishSignal(ctx, sig); err != nil {
		e.metrics.RecordError("publish_signal")
		e.log.Error("signal publish failed",
			applogger.String("instrument", sig.Instrument),
			applogger.Error(err))
	}
	e.log.Info("signal accepted",
		applogger.String("instrument", sig.Instrument),
		applogger.String("strategy", string(sig.Strategy)),
		applogger.String("direction", string(sig.Direction)),
		applogger.Any("confidence", sig.Confidence))
	return sig
}

func (e *Engine) schedule(ctx context.Context, sig *models.Signal) {
	d, err := e.scheduler.Schedule(sig, e.cfg.BaseSize(sig.Instrument))
	if err != nil {
		e.reject(ctx, &models.CandidateSignal{
			Instrument: sig.Instrument,
			Direction:  sig.Direction,
			Strategy:   sig.Strategy,
			Confidence: sig.Confidence,
		}, models.ReasonForErr(err), err.Error())
		return
	}
	if err := e.journal.RecordDirective(ctx, d); err != nil {
		e.metrics.RecordError("journal_directive")
	}
	if d.Skip {
		return
	}
	e.dispatch.Enqueue(d)
}

func (e *Engine) reject(ctx context.Context, cand *models.CandidateSignal, reason models.RejectReason, detail string) {
	e.metrics.RecordRejection(string(reason))
	rec := &models.Rejection{
		Instrument: cand.Instrument,
		Strategy:   cand.Strategy,
		Reason:     reason,
		Detail:     detail,
		Confidence: cand.Confidence,
		Timestamp:  time.Now().UTC(),
	}
	if err := e.journal.RecordRejection(ctx, rec); err != nil {
		e.metrics.RecordError("journal_rejection")
	}
	e.log.Debug("candidate rejected",
		applogger.String("instrument", cand.Instrument),
		applogger.String("strategy", string(cand.Strategy)),
		applogger.String("reason", string(reason)))
}

// Cooldowns exposes the registry snapshot for the export API.
func (e *Engine) Cooldowns() map[string]time.Time {
	if r, ok := e.cooldown.(*gate.CooldownRegistry); ok {
		return r.Snapshot()
	}
	return nil
}
