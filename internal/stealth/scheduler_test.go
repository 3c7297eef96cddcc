package stealth

import (
	"errors"
	"math"
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
	"TradeVeil/internal/gate"
	"TradeVeil/pkg/config"
	"TradeVeil/pkg/logger"
)

func testScheduler(t *testing.T, cfg config.StealthConfig) *Scheduler {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	ledger := gate.NewConcurrencyLedger(cfg.PerInstrumentCap, cfg.TotalCap, nil)
	s, err := NewScheduler(cfg, ledger, nil, log)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func stealthCfg(level string, seed int64) config.StealthConfig {
	return config.StealthConfig{
		ProtectionLevel:  level,
		EntryDelayMin:    2 * time.Second,
		EntryDelayMax:    30 * time.Second,
		ShuffleDelayMin:  1 * time.Second,
		ShuffleDelayMax:  10 * time.Second,
		PerInstrumentCap: 100,
		TotalCap:         1000,
		Seed:             seed,
	}
}

func longSignal(id string) *models.Signal {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return &models.Signal{
		ID:         id,
		Instrument: "EURUSD",
		Direction:  models.DirLong,
		Strategy:   models.StrategyBreakout,
		Confidence: 75,
		Entry:      1.1000,
		Stop:       1.0970,
		Target:     1.1060,
		CreatedAt:  now,
		ExpiresAt:  now.Add(5 * time.Minute),
	}
}

func TestGhostSkipFrequency(t *testing.T) {
	for _, tc := range []struct {
		level string
		want  float64
	}{
		{"low", 0.05},
		{"medium", 0.12},
		{"high", 0.22},
		{"ghost", 0.33},
	} {
		s := testScheduler(t, stealthCfg(tc.level, 7))
		skipped := 0
		const trials = 4000
		for i := 0; i < trials; i++ {
			d, err := s.Schedule(longSignal("sig"), 1.0)
			if err != nil {
				t.Fatalf("%s trial %d: %v", tc.level, i, err)
			}
			if d.Skip {
				skipped++
			} else {
				s.ledger.Release(d.Instrument, d.ExecutionID)
			}
		}
		got := float64(skipped) / trials
		if math.Abs(got-tc.want) > 0.2*tc.want {
			t.Fatalf("%s: skip rate %.3f, want %.3f within 20%%", tc.level, got, tc.want)
		}
	}
}

func TestEntryDelayBand(t *testing.T) {
	cfg := stealthCfg("high", 11) // multiplier 1.5: band [3s, 45s]
	s := testScheduler(t, cfg)
	for i := 0; i < 500; i++ {
		d, err := s.Schedule(longSignal("sig"), 1.0)
		if err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
		if d.Skip {
			continue
		}
		if d.EntryDelay < 3*time.Second || d.EntryDelay > 45*time.Second {
			t.Fatalf("delay %v outside [3s, 45s]", d.EntryDelay)
		}
		if !d.DispatchAt.Equal(d.CreatedAt.Add(d.EntryDelay)) {
			t.Fatalf("DispatchAt %v != CreatedAt+delay", d.DispatchAt)
		}
		s.ledger.Release(d.Instrument, d.ExecutionID)
	}
}

func TestSizeJitterBandAndSigns(t *testing.T) {
	s := testScheduler(t, stealthCfg("medium", 13)) // band 3..7%
	const base = 1.0
	up, down := 0, 0
	for i := 0; i < 500; i++ {
		d, err := s.Schedule(longSignal("sig"), base)
		if err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
		if d.Skip {
			continue
		}
		dev := math.Abs(d.Size-base) / base * 100
		// rounding to two decimals moves the deviation by up to half a cent
		if dev < 2.4 || dev > 7.6 {
			t.Fatalf("jitter %.2f%% outside medium band", dev)
		}
		if d.Size > base {
			up++
		} else {
			down++
		}
		s.ledger.Release(d.Instrument, d.ExecutionID)
	}
	if up == 0 || down == 0 {
		t.Fatalf("jitter never changed sign: up=%d down=%d", up, down)
	}
}

func TestPriceOffsetsPreserveOrdering(t *testing.T) {
	s := testScheduler(t, stealthCfg("ghost", 17)) // largest offsets
	for i := 0; i < 500; i++ {
		sig := longSignal("sig")
		d, err := s.Schedule(sig, 1.0)
		if err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
		if d.Skip {
			continue
		}
		if !(d.AdjustedStop < sig.Entry && sig.Entry < d.AdjustedTarget) {
			t.Fatalf("ordering broken: stop=%.5f entry=%.5f target=%.5f",
				d.AdjustedStop, sig.Entry, d.AdjustedTarget)
		}
		if math.Abs(d.AdjustedStop-sig.Stop) > 6.01*0.0001 {
			t.Fatalf("stop offset too large: %.5f from %.5f", d.AdjustedStop, sig.Stop)
		}
		s.ledger.Release(d.Instrument, d.ExecutionID)
	}
}

func TestPriceOffsetsShortDirection(t *testing.T) {
	s := testScheduler(t, stealthCfg("ghost", 19))
	for i := 0; i < 300; i++ {
		sig := longSignal("sig")
		sig.Direction = models.DirShort
		sig.Stop = 1.1030
		sig.Target = 1.0940
		d, err := s.Schedule(sig, 1.0)
		if err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
		if d.Skip {
			continue
		}
		if !(d.AdjustedTarget < sig.Entry && sig.Entry < d.AdjustedStop) {
			t.Fatalf("short ordering broken: target=%.5f entry=%.5f stop=%.5f",
				d.AdjustedTarget, sig.Entry, d.AdjustedStop)
		}
		s.ledger.Release(d.Instrument, d.ExecutionID)
	}
}

func TestConcurrencyDenied(t *testing.T) {
	cfg := stealthCfg("low", 23)
	cfg.PerInstrumentCap = 1
	cfg.TotalCap = 1
	s := testScheduler(t, cfg)

	var held *models.ExecutionDirective
	for held == nil {
		d, err := s.Schedule(longSignal("first"), 1.0)
		if err != nil {
			t.Fatalf("first schedule: %v", err)
		}
		if !d.Skip {
			held = d
		}
	}
	// slot is occupied, a second non-skipped schedule must fail
	for i := 0; i < 100; i++ {
		d, err := s.Schedule(longSignal("second"), 1.0)
		if err != nil {
			if !errors.Is(err, models.ErrConcurrencyExceeded) {
				t.Fatalf("want ErrConcurrencyExceeded, got %v", err)
			}
			return
		}
		if !d.Skip {
			t.Fatalf("second signal admitted past a full ledger")
		}
	}
	t.Fatalf("never saw an admission attempt in 100 trials")
}

func TestShuffleStaggersBatch(t *testing.T) {
	s := testScheduler(t, stealthCfg("medium", 29))
	sigs := make([]*models.Signal, 5)
	sizes := make([]float64, 5)
	for i := range sigs {
		sigs[i] = longSignal("sig")
		sigs[i].Instrument = []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD"}[i]
		sizes[i] = 1.0
	}
	out, err := s.ScheduleBatch(sigs, sizes)
	if err != nil {
		t.Fatalf("ScheduleBatch: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("want 5 directives, got %d", len(out))
	}
	if out[0].ShuffleDelay != 0 {
		t.Fatalf("first directive carries shuffle delay %v", out[0].ShuffleDelay)
	}
	for i, d := range out[1:] {
		if d.ShuffleDelay < time.Second || d.ShuffleDelay > 10*time.Second {
			t.Fatalf("directive %d shuffle delay %v outside [1s, 10s]", i+1, d.ShuffleDelay)
		}
		if !d.DispatchAt.Equal(d.CreatedAt.Add(d.TotalDelay())) {
			t.Fatalf("directive %d DispatchAt not CreatedAt+total delay", i+1)
		}
	}
}

func TestSeededDeterminism(t *testing.T) {
	run := func() []*models.ExecutionDirective {
		s := testScheduler(t, stealthCfg("medium", 31))
		out := make([]*models.ExecutionDirective, 0, 20)
		for i := 0; i < 20; i++ {
			d, err := s.Schedule(longSignal("sig"), 1.0)
			if err != nil {
				t.Fatalf("schedule: %v", err)
			}
			out = append(out, d)
			if !d.Skip {
				s.ledger.Release(d.Instrument, d.ExecutionID)
			}
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i].Skip != b[i].Skip || a[i].EntryDelay != b[i].EntryDelay ||
			a[i].Size != b[i].Size || a[i].AdjustedStop != b[i].AdjustedStop ||
			a[i].AdjustedTarget != b[i].AdjustedTarget {
			t.Fatalf("directive %d differs across identical seeds", i)
		}
	}
}

func TestUnknownLevelRejected(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cfg := stealthCfg("paranoid", 1)
	if _, err := NewScheduler(cfg, gate.NewConcurrencyLedger(1, 1, nil), nil, log); err == nil {
		t.Fatalf("expected error for unknown protection level")
	}
}

func TestCeilingSkipSurfacesForcedLossPolicy(t *testing.T) {
	cfg := stealthCfg("low", 7)
	cfg.Profiles = map[string]config.ProfileConfig{
		"tight_desk": {
			MaxTradesPerHour:      1,
			MaxDailyProfitPct:     5,
			RequiresForcedLosses:  true,
			SpreadFingerprintPips: 1.0,
			ExecFingerprintMs:     100,
		},
	}
	s := testScheduler(t, cfg)
	s.ObserveExecution(1.0, 100)
	if s.Profile() == nil {
		t.Fatalf("expected profile detection")
	}

	var first *models.ExecutionDirective
	for i := 0; i < 50; i++ {
		d, err := s.Schedule(longSignal("sig"), 1.0)
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}
		if !d.Skip {
			first = d
			break
		}
		if d.SkipCause != "ghost" {
			t.Fatalf("unexpected skip cause before ceiling: %s", d.SkipCause)
		}
	}
	if first == nil {
		t.Fatalf("no directive survived ghost skips")
	}
	s.ledger.Release(first.Instrument, first.ExecutionID)

	d, err := s.Schedule(longSignal("sig2"), 1.0)
	if err != nil {
		t.Fatalf("schedule over ceiling: %v", err)
	}
	if !d.Skip || d.SkipCause != "ceiling" {
		t.Fatalf("expected ceiling skip, got skip=%v cause=%s", d.Skip, d.SkipCause)
	}
	if !d.ForcedLossAdvised {
		t.Fatalf("expected forced-loss policy surfaced on ceiling skip")
	}
}
