package repository

import (
	"context"
	"time"

	"TradeVeil/internal/domain/models"
)

// BarStream delivers per-instrument price bars from the external market-data
// collaborator.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceBar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher pushes accepted signals and execution directives to downstream
// consumers (notifier, order-placement collaborator).
type Publisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
	PublishDirective(ctx context.Context, d *models.ExecutionDirective) error
	Close() error
}

// Journal persists emitted signals, directives, and rejection records, and
// serves the export API reads.
type Journal interface {
	RecordSignal(ctx context.Context, s *models.Signal) error
	RecordDirective(ctx context.Context, d *models.ExecutionDirective) error
	RecordRejection(ctx context.Context, r *models.Rejection) error
	RecentSignals(ctx context.Context, instrument string, since time.Time, limit int) ([]*models.Signal, error)
	RecentRejections(ctx context.Context, instrument string, reason string, since time.Time, limit int) ([]*models.Rejection, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters and gauges.
type Metrics interface {
	RecordSignal(instrument, strategy string)
	RecordRejection(reason string)
	RecordDirective(instrument string, skipped bool)
	RecordActiveSlots(instrument string, n int)
	RecordTotalSlots(n int)
	RecordConfidence(instrument string, confidence float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
