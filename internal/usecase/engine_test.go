package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
	"TradeVeil/internal/gate"
	"TradeVeil/internal/strategy"
	"TradeVeil/pkg/config"
	"TradeVeil/pkg/logger"
)

type noopMetrics struct{}

func (noopMetrics) RecordSignal(string, string)      {}
func (noopMetrics) RecordRejection(string)           {}
func (noopMetrics) RecordDirective(string, bool)     {}
func (noopMetrics) RecordActiveSlots(string, int)    {}
func (noopMetrics) RecordTotalSlots(int)             {}
func (noopMetrics) RecordConfidence(string, float64) {}
func (noopMetrics) RecordLatency(string, float64)    {}
func (noopMetrics) RecordError(string)               {}

type memJournal struct {
	mu         sync.Mutex
	signals    []*models.Signal
	directives []*models.ExecutionDirective
	rejections []*models.Rejection
}

func (j *memJournal) RecordSignal(_ context.Context, s *models.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals = append(j.signals, s)
	return nil
}

func (j *memJournal) RecordDirective(_ context.Context, d *models.ExecutionDirective) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.directives = append(j.directives, d)
	return nil
}

func (j *memJournal) RecordRejection(_ context.Context, r *models.Rejection) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rejections = append(j.rejections, r)
	return nil
}

func (j *memJournal) RecentSignals(context.Context, string, time.Time, int) ([]*models.Signal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*models.Signal(nil), j.signals...), nil
}

func (j *memJournal) RecentRejections(context.Context, string, string, time.Time, int) ([]*models.Rejection, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*models.Rejection(nil), j.rejections...), nil
}

func (j *memJournal) Health(context.Context) error { return nil }
func (j *memJournal) Close() error                 { return nil }

type memPublisher struct {
	mu         sync.Mutex
	signals    []*models.Signal
	directives []*models.ExecutionDirective
}

func (p *memPublisher) PublishSignal(_ context.Context, s *models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, s)
	return nil
}

func (p *memPublisher) PublishDirective(_ context.Context, d *models.ExecutionDirective) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.directives = append(p.directives, d)
	return nil
}

func (p *memPublisher) Close() error { return nil }

type stubScheduler struct {
	mu       sync.Mutex
	err      error
	skip     bool
	shuffled int
}

func (s *stubScheduler) Schedule(sig *models.Signal, baseSize float64) (*models.ExecutionDirective, error) {
	if s.err != nil {
		return nil, s.err
	}
	now := time.Now()
	return &models.ExecutionDirective{
		SignalID:    sig.ID,
		ExecutionID: "exec-" + sig.ID,
		Instrument:  sig.Instrument,
		Direction:   sig.Direction,
		Size:        baseSize,
		Entry:       sig.Entry,
		Skip:        s.skip,
		CreatedAt:   now,
		DispatchAt:  now,
		ExpiresAt:   sig.ExpiresAt,
	}, nil
}

func (s *stubScheduler) ScheduleBatch(sigs []*models.Signal, sizes []float64) ([]*models.ExecutionDirective, error) {
	out := make([]*models.ExecutionDirective, 0, len(sigs))
	for i, sig := range sigs {
		d, err := s.Schedule(sig, sizes[i])
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *stubScheduler) Shuffle([]*models.ExecutionDirective) {
	s.mu.Lock()
	s.shuffled++
	s.mu.Unlock()
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func engineCfg() *config.Config {
	cfg := &config.Config{}
	cfg.Engine = config.EngineConfig{
		Window:            500,
		MinConfidence:     60,
		FallbackFloor:     70,
		CooldownInterval:  15 * time.Minute,
		OvertradingMax:    3,
		OvertradingWindow: time.Hour,
		SpreadGuardMult:   3,
		SignalTTL:         5 * time.Minute,
		DefaultSize:       1.0,
		Regime: config.RegimeConfig{
			TrendLookback:      50,
			ATRPeriod:          14,
			RangingSlopePips:   0.5,
			SlopeStrengthScale: 20,
			LevelMaxPips:       50,
			MaxLevels:          5,
			MaxSpreadPips:      5,
		},
	}
	return cfg
}

func testEngine(t *testing.T, sched *stubScheduler) (*Engine, *memJournal, *memPublisher, *Dispatcher) {
	t.Helper()
	cfg := engineCfg()
	journal := &memJournal{}
	publisher := &memPublisher{}
	ledger := gate.NewConcurrencyLedger(1, 5, nil)
	dispatch := NewDispatcher(sched, ledger, publisher, journal, noopMetrics{}, testLogger(t))
	e := NewEngine(cfg,
		gate.NewCooldownRegistry(cfg.Engine.CooldownInterval),
		gate.NewValidator(cfg.Engine),
		sched,
		strategy.NewWinRateTracker(),
		journal, publisher, dispatch, noopMetrics{}, testLogger(t))
	return e, journal, publisher, dispatch
}

func testCandidate(now time.Time) *models.CandidateSignal {
	return &models.CandidateSignal{
		Instrument: "EURUSD",
		Direction:  models.DirLong,
		Strategy:   models.StrategyBreakout,
		Confidence: 80,
		Entry:      1.1000,
		Stop:       1.0970,
		Target:     1.1060,
		CreatedAt:  now,
		ExpiresAt:  now.Add(5 * time.Minute),
	}
}

func TestAcceptEmitsSignal(t *testing.T) {
	e, journal, publisher, _ := testEngine(t, &stubScheduler{})
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	cand := testCandidate(now)
	sig := e.accept(ctx, cand, models.ValidationResult{IsValid: true, ConfidenceDelta: 5}, now)
	if sig == nil {
		t.Fatalf("accept returned nil")
	}
	if sig.ID == "" {
		t.Fatalf("signal has no id")
	}
	if sig.Confidence != 85 {
		t.Fatalf("confidence = %v, want 85", sig.Confidence)
	}
	if len(journal.signals) != 1 || len(publisher.signals) != 1 {
		t.Fatalf("signal not journaled and published")
	}
	// accepting arms the cooldown
	if e.cooldown.Available("EURUSD", now.Add(5*time.Minute)) {
		t.Fatalf("cooldown not armed after accept")
	}
	if e.cooldown.Available("EURUSD", now.Add(16*time.Minute)) == false {
		t.Fatalf("cooldown still armed after the interval")
	}
}

func TestAcceptClampsConfidence(t *testing.T) {
	e, _, _, _ := testEngine(t, &stubScheduler{})
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	cand := testCandidate(now)
	cand.Confidence = 98
	sig := e.accept(context.Background(), cand, models.ValidationResult{IsValid: true, ConfidenceDelta: 10}, now)
	if sig.Confidence != 100 {
		t.Fatalf("confidence = %v, want clamp at 100", sig.Confidence)
	}
}

func TestScheduleRejectionJournaled(t *testing.T) {
	sched := &stubScheduler{err: fmt.Errorf("schedule EURUSD: %w", models.ErrConcurrencyExceeded)}
	e, journal, _, dispatch := testEngine(t, sched)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	sig := &models.Signal{ID: "s1", Instrument: "EURUSD", Direction: models.DirLong,
		Strategy: models.StrategyBreakout, Confidence: 80, ExpiresAt: now.Add(5 * time.Minute)}
	e.schedule(context.Background(), sig)

	if len(journal.rejections) != 1 {
		t.Fatalf("rejection not journaled")
	}
	if journal.rejections[0].Reason != models.ReasonConcurrencyExceeded {
		t.Fatalf("reason = %s, want concurrency_exceeded", journal.rejections[0].Reason)
	}
	if dispatch.Pending() != 0 {
		t.Fatalf("rejected signal reached the dispatcher")
	}
}

func TestScheduleSkipNotDispatched(t *testing.T) {
	sched := &stubScheduler{skip: true}
	e, journal, _, dispatch := testEngine(t, sched)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	sig := &models.Signal{ID: "s1", Instrument: "EURUSD", Direction: models.DirLong,
		Strategy: models.StrategyBreakout, Confidence: 80, ExpiresAt: now.Add(5 * time.Minute)}
	e.schedule(context.Background(), sig)

	// skip directives are journaled for the audit trail but never queued
	if len(journal.directives) != 1 {
		t.Fatalf("skip directive not journaled")
	}
	if dispatch.Pending() != 0 {
		t.Fatalf("skip directive queued for dispatch")
	}
}

func TestProcessSpawnsWorkerPerInstrument(t *testing.T) {
	e, journal, publisher, _ := testEngine(t, &stubScheduler{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		for _, inst := range []string{"EURUSD", "GBPUSD"} {
			bar := &models.PriceBar{
				Instrument: inst,
				Timestamp:  base.Add(time.Duration(i) * time.Minute),
				Open:       1.1000, High: 1.1010, Low: 1.0990, Close: 1.1005,
				Volume: 1000, Spread: 0.0001,
			}
			if err := e.Process(ctx, bar); err != nil {
				t.Fatalf("process: %v", err)
			}
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		n := len(e.workers)
		drained := true
		for _, w := range e.workers {
			if len(w.barCh) > 0 {
				drained = false
			}
		}
		e.mu.Unlock()
		if n == 2 && drained {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	e.mu.Lock()
	workers := len(e.workers)
	e.mu.Unlock()
	if workers != 2 {
		t.Fatalf("workers = %d, want 2", workers)
	}
	// ten bars is far below the analysis window: nothing may be emitted
	journal.mu.Lock()
	signals := len(journal.signals)
	journal.mu.Unlock()
	publisher.mu.Lock()
	published := len(publisher.signals)
	publisher.mu.Unlock()
	if signals != 0 || published != 0 {
		t.Fatalf("signals emitted during warmup")
	}
	e.Stop()
	if err := e.Process(ctx, &models.PriceBar{Instrument: "EURUSD", Timestamp: base}); err == nil {
		t.Fatalf("process accepted a bar after stop")
	}
}

func TestSentinelReasonMapping(t *testing.T) {
	if models.ReasonForErr(fmt.Errorf("wrap: %w", models.ErrCooldownActive)) != models.ReasonCooldownActive {
		t.Fatalf("wrapped sentinel lost its reason tag")
	}
	if !errors.Is(fmt.Errorf("x: %w", models.ErrConcurrencyExceeded), models.ErrConcurrencyExceeded) {
		t.Fatalf("sentinel does not survive wrapping")
	}
}
