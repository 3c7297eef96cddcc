package models

import "time"

// ExecutionDirective is the perturbed, concurrency-gated order of operations
// handed to the external order-placement collaborator. The core computes the
// delay values and returns immediately; it never sleeps on them.
type ExecutionDirective struct {
	SignalID       string
	ExecutionID    string
	Instrument     string
	Direction      Direction
	Size           float64
	Entry          float64
	AdjustedStop   float64
	AdjustedTarget float64
	EntryDelay     time.Duration
	ShuffleDelay   time.Duration // batch mode only; zero for the first in the permuted order
	Skip           bool
	SkipCause      string // "ghost" or "ceiling"; empty when not skipped
	// ForcedLossAdvised mirrors the active counterparty profile's policy
	// when a ceiling skip fires. Carried for the external collaborator,
	// never acted on here.
	ForcedLossAdvised bool
	DispatchAt        time.Time // scheduled emission time, CreatedAt + delays
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// TotalDelay is the full wait before the directive may be dispatched.
func (d *ExecutionDirective) TotalDelay() time.Duration {
	return d.EntryDelay + d.ShuffleDelay
}
