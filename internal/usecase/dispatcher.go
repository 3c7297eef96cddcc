package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	"TradeVeil/internal/domain/service"
	applogger "TradeVeil/pkg/logger"
	"TradeVeil/pkg/queue"
)

// flushInterval bounds how late a directive can fire past its DispatchAt.
const flushInterval = 100 * time.Millisecond

// Dispatcher holds scheduled directives until their dispatch time and then
// publishes them. Directives that reach their scheduled time already expired
// are dropped and journaled, the slot they held is released so the
// instrument frees up.
type Dispatcher struct {
	scheduler service.Scheduler
	ledger    service.Ledger
	publisher domrepo.Publisher
	journal   domrepo.Journal
	metrics   domrepo.Metrics
	log       *applogger.Logger
	retryQ    queue.QueueService // optional; nil falls back to in-memory requeue

	mu      sync.Mutex
	intake  []*models.ExecutionDirective
	pending []*models.ExecutionDirective
	stopCh  chan struct{}
	started bool
}

func NewDispatcher(
	scheduler service.Scheduler,
	ledger service.Ledger,
	publisher domrepo.Publisher,
	journal domrepo.Journal,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *Dispatcher {
	return &Dispatcher{
		scheduler: scheduler,
		ledger:    ledger,
		publisher: publisher,
		journal:   journal,
		metrics:   metrics,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// SetRetryQueue routes failed publishes through the durable retry queue.
func (d *Dispatcher) SetRetryQueue(q queue.QueueService) { d.retryQ = q }

// Enqueue accepts a non-skip directive for deferred dispatch.
func (d *Dispatcher) Enqueue(directive *models.ExecutionDirective) {
	d.mu.Lock()
	d.intake = append(d.intake, directive)
	d.mu.Unlock()
}

// Start launches the flush loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.flush(ctx, time.Now())
			}
		}
	}()
}

// Stop halts the flush loop. Pending directives are left unsent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()
	close(d.stopCh)
}

// Pending reports how many directives are waiting for their dispatch time.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.intake) + len(d.pending)
}

// flush moves newly enqueued directives into the pending queue, staggering
// them when several arrived in the same tick, then emits everything due.
func (d *Dispatcher) flush(ctx context.Context, now time.Time) {
	d.mu.Lock()
	batch := d.intake
	d.intake = nil
	d.mu.Unlock()

	if len(batch) > 1 {
		d.scheduler.Shuffle(batch)
	}

	d.mu.Lock()
	d.pending = append(d.pending, batch...)
	sort.SliceStable(d.pending, func(i, j int) bool {
		return d.pending[i].DispatchAt.Before(d.pending[j].DispatchAt)
	})
	var due []*models.ExecutionDirective
	for len(d.pending) > 0 && !d.pending[0].DispatchAt.After(now) {
		due = append(due, d.pending[0])
		d.pending = d.pending[1:]
	}
	d.mu.Unlock()

	for _, directive := range due {
		d.emit(ctx, directive, now)
	}
}

func (d *Dispatcher) emit(ctx context.Context, directive *models.ExecutionDirective, now time.Time) {
	if !directive.ExpiresAt.IsZero() && now.After(directive.ExpiresAt) {
		d.ledger.Release(directive.Instrument, directive.ExecutionID)
		d.metrics.RecordRejection(string(models.ReasonExpired))
		rec := &models.Rejection{
			Instrument: directive.Instrument,
			Reason:     models.ReasonExpired,
			Detail:     "signal expired before dispatch",
			Timestamp:  now.UTC(),
		}
		if err := d.journal.RecordRejection(ctx, rec); err != nil {
			d.metrics.RecordError("journal_rejection")
		}
		d.log.Warn("directive expired before dispatch",
			applogger.String("instrument", directive.Instrument),
			applogger.String("execution_id", directive.ExecutionID))
		return
	}

	if err := d.publisher.PublishDirective(ctx, directive); err != nil {
		d.metrics.RecordError("publish_directive")
		d.log.Error("directive publish failed",
			applogger.String("instrument", directive.Instrument),
			applogger.String("execution_id", directive.ExecutionID),
			applogger.Error(err))
		if d.retryQ != nil {
			if qerr := d.retryQ.PublishMessage(ctx, directiveRetryType, directive); qerr == nil {
				return
			}
			d.metrics.RecordError("retry_enqueue")
		}
		// no durable queue available, requeue in memory past the next tick
		d.mu.Lock()
		d.pending = append(d.pending, directive)
		d.mu.Unlock()
		return
	}
	d.log.Info("directive dispatched",
		applogger.String("instrument", directive.Instrument),
		applogger.String("execution_id", directive.ExecutionID),
		applogger.Duration("total_delay", directive.TotalDelay()))
}
