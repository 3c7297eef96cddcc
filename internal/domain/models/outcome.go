package models

import "errors"

// RejectReason tags why a cycle produced no signal or why a candidate was
// dropped. All of these are non-fatal: the loop logs and waits for the next
// market update.
type RejectReason string

const (
	ReasonInsufficientData    RejectReason = "insufficient_data"
	ReasonNoConsensus         RejectReason = "no_consensus"
	ReasonCooldownActive      RejectReason = "cooldown_active"
	ReasonConcurrencyExceeded RejectReason = "concurrency_exceeded"
	ReasonConfidenceFloor     RejectReason = "confidence_floor"
	ReasonOvertrading         RejectReason = "overtrading"
	ReasonSpreadGuard         RejectReason = "spread_guard"
	ReasonExpired             RejectReason = "expired"
)

// Sentinel errors for the non-fatal outcome taxonomy. Callers branch with
// errors.Is and journal the matching RejectReason.
var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrNoConsensus         = errors.New("no consensus")
	ErrCooldownActive      = errors.New("cooldown active")
	ErrConcurrencyExceeded = errors.New("concurrency exceeded")
)

// ReasonForErr maps a sentinel error to its journal tag.
func ReasonForErr(err error) RejectReason {
	switch {
	case errors.Is(err, ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, ErrNoConsensus):
		return ReasonNoConsensus
	case errors.Is(err, ErrCooldownActive):
		return ReasonCooldownActive
	case errors.Is(err, ErrConcurrencyExceeded):
		return ReasonConcurrencyExceeded
	default:
		return RejectReason("error")
	}
}
