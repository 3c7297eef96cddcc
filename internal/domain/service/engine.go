package service

import (
	"time"

	"TradeVeil/internal/domain/models"
)

// RegimeAnalyzer derives a MarketStructure snapshot from recent bars.
type RegimeAnalyzer interface {
	Analyze(bars []models.PriceBar) (models.MarketStructure, error)
}

// Validator applies kill-switch rules and confidence adjustment to a
// candidate before it may become a Signal.
type Validator interface {
	Validate(cand *models.CandidateSignal, liveSpread, normalSpread float64, now time.Time) models.ValidationResult
	NoteAccepted(s *models.Signal)
}

// CooldownGate enforces the per-instrument minimum interval between
// accepted signals.
type CooldownGate interface {
	Available(instrument string, now time.Time) bool
	MarkAccepted(instrument string, at time.Time)
	Remaining(instrument string, now time.Time) time.Duration
}

// Ledger tracks active execution slots per instrument and globally.
// Release is the only removal path and is driven by the external
// order-lifecycle collaborator.
type Ledger interface {
	Admit(instrument, executionID string) bool
	Release(instrument, executionID string) bool
	Active(instrument string) int
	TotalActive() int
}

// Scheduler perturbs an accepted signal into an execution directive.
type Scheduler interface {
	Schedule(sig *models.Signal, baseSize float64) (*models.ExecutionDirective, error)
	ScheduleBatch(sigs []*models.Signal, baseSizes []float64) ([]*models.ExecutionDirective, error)
	Shuffle(directives []*models.ExecutionDirective)
}
