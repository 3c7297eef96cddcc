package models

import "time"

type Direction string

const (
	DirLong  Direction = "long"
	DirShort Direction = "short"
)

// StrategyTag identifies one of the closed set of strategy variants.
type StrategyTag string

const (
	StrategyBreakout      StrategyTag = "breakout"
	StrategyLevelReaction StrategyTag = "level_reaction"
	StrategyTrend         StrategyTag = "trend_continuation"
	StrategyReversion     StrategyTag = "mean_reversion"
)

// CandidateSignal is a proposed trade opportunity prior to validation and
// cooldown gating. Discarded if validation fails.
type CandidateSignal struct {
	Instrument string
	Direction  Direction
	Strategy   StrategyTag
	Confidence float64 // 0..100
	Entry      float64
	Stop       float64
	Target     float64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Signal is an accepted candidate, assigned an id and emitted downstream.
type Signal struct {
	ID         string
	Instrument string
	Direction  Direction
	Strategy   StrategyTag
	Confidence float64
	Entry      float64
	Stop       float64
	Target     float64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// ValidationResult carries the validator verdict for one candidate.
type ValidationResult struct {
	IsValid         bool
	ConfidenceDelta float64
	Reasons         []RejectReason
}

// Rejection is the journaled record of a candidate that did not survive
// gating or validation. Exposed through the export API, never pushed to
// downstream consumers.
type Rejection struct {
	Instrument string
	Strategy   StrategyTag
	Reason     RejectReason
	Detail     string
	Confidence float64
	Timestamp  time.Time
}
