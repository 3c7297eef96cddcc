package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	"TradeVeil/internal/domain/service"
	applogger "TradeVeil/pkg/logger"
	"TradeVeil/pkg/queue"
)

// directiveRetryType is the queue message type for failed directive publishes.
const directiveRetryType = "directive.retry"

// RedispatchJob retries publishing directives that failed on the hot path.
// The queue's retry and dead-letter handling bound how long a directive can
// keep failing before it is parked; an expired directive is dropped and its
// slot released instead of retried.
type RedispatchJob struct {
	publisher domrepo.Publisher
	ledger    service.Ledger
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

func NewRedispatchJob(publisher domrepo.Publisher, ledger service.Ledger, metrics domrepo.Metrics, log *applogger.Logger) *RedispatchJob {
	return &RedispatchJob{publisher: publisher, ledger: ledger, metrics: metrics, log: log}
}

func (j *RedispatchJob) Name() string { return "redispatch_directive" }
func (j *RedispatchJob) Type() string { return directiveRetryType }

func (j *RedispatchJob) Handle(ctx context.Context, payload interface{}) error {
	d, err := queue.ParsePayload[models.ExecutionDirective](payload)
	if err != nil {
		j.metrics.RecordError("redispatch_payload")
		return fmt.Errorf("redispatch payload: %w", err)
	}
	if !d.ExpiresAt.IsZero() && time.Now().After(d.ExpiresAt) {
		j.ledger.Release(d.Instrument, d.ExecutionID)
		j.metrics.RecordRejection(string(models.ReasonExpired))
		j.log.Warn("directive expired in retry queue",
			applogger.String("instrument", d.Instrument),
			applogger.String("execution_id", d.ExecutionID))
		return nil
	}
	if err := j.publisher.PublishDirective(ctx, d); err != nil {
		j.metrics.RecordError("redispatch_publish")
		return err
	}
	j.log.Info("directive redispatched",
		applogger.String("instrument", d.Instrument),
		applogger.String("execution_id", d.ExecutionID))
	return nil
}

var _ queue.Job = (*RedispatchJob)(nil)
