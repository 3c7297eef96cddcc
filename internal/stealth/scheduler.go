package stealth

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"TradeVeil/internal/domain/models"
	"TradeVeil/internal/domain/repository"
	"TradeVeil/internal/domain/service"
	"TradeVeil/pkg/config"
	"TradeVeil/pkg/logger"
)

// Scheduler turns accepted signals into execution directives with randomized
// timing, size, and price perturbations so the dispatched flow carries no
// repeating fingerprint. All randomness flows through a single injected
// source, a fixed seed reproduces the exact directive stream.
type Scheduler struct {
	cfg     config.StealthConfig
	params  levelParams
	ledger  service.Ledger
	metrics repository.Metrics
	log     *logger.Logger

	profiles *ProfileTable
	ceilings *CeilingTracker

	profMu  sync.RWMutex
	profile *Profile

	rngMu sync.Mutex
	rng   *rand.Rand

	nowFn func() time.Time
}

func NewScheduler(cfg config.StealthConfig, ledger service.Ledger, metrics repository.Metrics, log *logger.Logger) (*Scheduler, error) {
	level, err := ParseLevel(cfg.ProtectionLevel)
	if err != nil {
		return nil, fmt.Errorf("stealth scheduler: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Scheduler{
		cfg:      cfg,
		params:   levelTable[level],
		ledger:   ledger,
		metrics:  metrics,
		log:      log,
		profiles: NewProfileTable(cfg.Profiles),
		ceilings: NewCeilingTracker(),
		rng:      rand.New(rand.NewSource(seed)),
		nowFn:    time.Now,
	}, nil
}

// Ceilings exposes the tracker so the fills consumer can report realized
// profit back into the daily cap.
func (s *Scheduler) Ceilings() *CeilingTracker { return s.ceilings }

// ObserveExecution feeds averaged execution characteristics into profile
// detection. Called by the fills consumer with rolling averages.
func (s *Scheduler) ObserveExecution(avgSpreadPips, avgExecMs float64) {
	p := s.profiles.Detect(avgSpreadPips, avgExecMs)
	s.profMu.Lock()
	prev := s.profile
	s.profile = p
	s.profMu.Unlock()
	if p != nil && (prev == nil || prev.Name != p.Name) {
		s.log.Info("counterparty profile detected",
			logger.String("profile", p.Name),
			logger.Int("max_trades_per_hour", p.MaxTradesPerHour))
	}
}

// Profile returns the currently detected counterparty profile, nil when none.
func (s *Scheduler) Profile() *Profile {
	s.profMu.RLock()
	defer s.profMu.RUnlock()
	return s.profile
}

// Schedule converts one accepted signal into a directive. A ghost-skip or a
// profile ceiling breach yields a Skip directive without consuming a
// concurrency slot. Admission failure returns ErrConcurrencyExceeded and no
// directive.
func (s *Scheduler) Schedule(sig *models.Signal, baseSize float64) (*models.ExecutionDirective, error) {
	now := s.nowFn()

	if p := s.Profile(); s.ceilings.Exceeded(p, now) {
		d := s.skipDirective(sig, now, "ceiling")
		d.ForcedLossAdvised = p != nil && p.RequiresForcedLosses
		return d, nil
	}
	if s.draw() < s.params.skipProb {
		return s.skipDirective(sig, now, "ghost"), nil
	}

	executionID := uuid.NewString()
	if !s.ledger.Admit(sig.Instrument, executionID) {
		return nil, fmt.Errorf("schedule %s: %w", sig.Instrument, models.ErrConcurrencyExceeded)
	}

	d := &models.ExecutionDirective{
		SignalID:    sig.ID,
		ExecutionID: executionID,
		Instrument:  sig.Instrument,
		Direction:   sig.Direction,
		Entry:       sig.Entry,
		CreatedAt:   now,
		ExpiresAt:   sig.ExpiresAt,
	}

	d.EntryDelay = s.entryDelay()
	d.Size = s.jitterSize(sig.Instrument, baseSize)
	d.AdjustedStop, d.AdjustedTarget = s.offsetPrices(sig)
	d.DispatchAt = now.Add(d.TotalDelay())

	s.ceilings.NoteTrade(now)
	if s.metrics != nil {
		s.metrics.RecordDirective(sig.Instrument, false)
	}
	return d, nil
}

// ScheduleBatch schedules each signal and shuffles the dispatch order of
// whatever survived. Signals denied admission are dropped from the batch.
func (s *Scheduler) ScheduleBatch(sigs []*models.Signal, baseSizes []float64) ([]*models.ExecutionDirective, error) {
	if len(sigs) != len(baseSizes) {
		return nil, fmt.Errorf("schedule batch: %d signals, %d sizes", len(sigs), len(baseSizes))
	}
	out := make([]*models.ExecutionDirective, 0, len(sigs))
	for i, sig := range sigs {
		d, err := s.Schedule(sig, baseSizes[i])
		if err != nil {
			s.log.Warn("batch signal dropped",
				logger.String("instrument", sig.Instrument),
				logger.Error(err))
			continue
		}
		out = append(out, d)
	}
	s.Shuffle(out)
	return out, nil
}

// Shuffle permutes a batch of directives and assigns each one after the
// first in the permuted order an extra staggering delay, so simultaneous
// decisions never hit the wire in decision order or at the same instant.
func (s *Scheduler) Shuffle(directives []*models.ExecutionDirective) {
	if len(directives) < 2 {
		return
	}
	s.rngMu.Lock()
	s.rng.Shuffle(len(directives), func(i, j int) {
		directives[i], directives[j] = directives[j], directives[i]
	})
	s.rngMu.Unlock()
	for i, d := range directives {
		if i == 0 {
			d.ShuffleDelay = 0
		} else {
			d.ShuffleDelay = s.uniformDuration(s.cfg.ShuffleDelayMin, s.cfg.ShuffleDelayMax)
		}
		d.DispatchAt = d.CreatedAt.Add(d.TotalDelay())
	}
}

func (s *Scheduler) skipDirective(sig *models.Signal, now time.Time, why string) *models.ExecutionDirective {
	s.log.Debug("signal skipped",
		logger.String("instrument", sig.Instrument),
		logger.String("signal_id", sig.ID),
		logger.String("cause", why))
	if s.metrics != nil {
		s.metrics.RecordDirective(sig.Instrument, true)
	}
	return &models.ExecutionDirective{
		SignalID:   sig.ID,
		Instrument: sig.Instrument,
		Direction:  sig.Direction,
		Skip:       true,
		SkipCause:  why,
		CreatedAt:  now,
		DispatchAt: now,
		ExpiresAt:  sig.ExpiresAt,
	}
}

// entryDelay draws uniformly from the configured band and scales it by the
// protection level multiplier.
func (s *Scheduler) entryDelay() time.Duration {
	base := s.uniformDuration(s.cfg.EntryDelayMin, s.cfg.EntryDelayMax)
	return time.Duration(float64(base) * s.params.delayMult)
}

// jitterSize perturbs the base size by a percentage drawn from the level's
// band, sign drawn independently, rounded to the instrument's lot precision.
func (s *Scheduler) jitterSize(instrument string, base float64) float64 {
	pct := s.uniformFloat(s.params.jitterMinPct, s.params.jitterMaxPct)
	if s.draw() < 0.5 {
		pct = -pct
	}
	size := decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(1 + pct/100)).
		Round(models.LotPrecision(instrument))
	f, _ := size.Float64()
	return f
}

// offsetPrices shifts stop and target by independent draws of 1..3 pips
// scaled by the level multiplier, each with its own sign. Offsets are clamped
// so the stop and target never cross the entry.
func (s *Scheduler) offsetPrices(sig *models.Signal) (stop, target float64) {
	pip := models.PipSize(sig.Instrument)
	stop = sig.Stop + s.pipOffset(pip)
	target = sig.Target + s.pipOffset(pip)

	// preserve stop < entry < target for longs, mirrored for shorts,
	// with at least one pip of clearance
	if sig.Direction == models.DirLong {
		stop = min(stop, sig.Entry-pip)
		target = max(target, sig.Entry+pip)
	} else {
		stop = max(stop, sig.Entry+pip)
		target = min(target, sig.Entry-pip)
	}
	return stop, target
}

func (s *Scheduler) pipOffset(pip float64) float64 {
	pips := s.uniformFloat(1, 3) * s.params.priceMult
	if s.draw() < 0.5 {
		pips = -pips
	}
	return pips * pip
}

func (s *Scheduler) draw() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *Scheduler) uniformFloat(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.draw()*(hi-lo)
}

func (s *Scheduler) uniformDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.draw()*float64(hi-lo))
}
