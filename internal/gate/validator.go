package gate

import (
	"math"
	"sync"
	"time"

	"TradeVeil/internal/domain/models"
	"TradeVeil/pkg/config"
)

type acceptedRec struct {
	at  time.Time
	dir models.Direction
}

// Validator applies the kill-switch rules and the bounded confidence
// adjustment to candidates that already cleared the cooldown gate. It keeps
// its own trailing window of accepted signals, fed via NoteAccepted, and is
// shared across workers.
type Validator struct {
	cfg config.EngineConfig

	mu     sync.Mutex
	recent map[string][]acceptedRec
}

func NewValidator(cfg config.EngineConfig) *Validator {
	return &Validator{cfg: cfg, recent: make(map[string][]acceptedRec)}
}

// Validate runs all kill switches and returns the verdict. liveSpread and
// normalSpread are in quote units; normalSpread <= 0 disables the liquidity
// guard. No retry is attempted within a cycle on rejection.
func (v *Validator) Validate(cand *models.CandidateSignal, liveSpread, normalSpread float64, now time.Time) models.ValidationResult {
	res := models.ValidationResult{IsValid: true}

	delta := v.correlationDelta(cand, now)
	res.ConfidenceDelta = delta
	adjusted := math.Max(0, math.Min(100, cand.Confidence+delta))

	if adjusted < v.cfg.MinConfidence {
		res.Reasons = append(res.Reasons, models.ReasonConfidenceFloor)
	}
	if v.acceptedInWindow(cand.Instrument, now) >= v.cfg.OvertradingMax {
		res.Reasons = append(res.Reasons, models.ReasonOvertrading)
	}
	if normalSpread > 0 && liveSpread > v.cfg.SpreadGuardMult*normalSpread {
		res.Reasons = append(res.Reasons, models.ReasonSpreadGuard)
	}

	res.IsValid = len(res.Reasons) == 0
	return res
}

// NoteAccepted records an accepted signal for the overtrading guard and
// correlation lookups.
func (v *Validator) NoteAccepted(s *models.Signal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recent[s.Instrument] = append(v.prune(s.Instrument, s.CreatedAt),
		acceptedRec{at: s.CreatedAt, dir: s.Direction})
}

// prune drops records older than the overtrading window. Caller holds mu.
func (v *Validator) prune(instrument string, now time.Time) []acceptedRec {
	cutoff := now.Add(-v.cfg.OvertradingWindow)
	recs := v.recent[instrument]
	kept := recs[:0]
	for _, r := range recs {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	v.recent[instrument] = kept
	return kept
}

func (v *Validator) acceptedInWindow(instrument string, now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.prune(instrument, now))
}

// correlationDelta nudges confidence by up to plus or minus 10 depending on
// agreement with recent signals on configured correlated instruments.
func (v *Validator) correlationDelta(cand *models.CandidateSignal, now time.Time) float64 {
	peers := v.cfg.Correlated[cand.Instrument]
	if len(peers) == 0 {
		return 0
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	delta := 0.0
	cutoff := now.Add(-v.cfg.OvertradingWindow)
	for _, peer := range peers {
		for _, r := range v.recent[peer] {
			if !r.at.After(cutoff) {
				continue
			}
			if r.dir == cand.Direction {
				delta += 5
			} else {
				delta -= 5
			}
		}
	}
	return math.Max(-10, math.Min(10, delta))
}
