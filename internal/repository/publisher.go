package repository

import (
	"context"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	pkgkafka "TradeVeil/pkg/kafka"
)

// KafkaPublisher pushes signals and directives to their topics. Messages are
// keyed by instrument so each instrument's flow stays ordered within a
// partition.
type KafkaPublisher struct {
	producer        *pkgkafka.Producer
	signalsTopic    string
	directivesTopic string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, signalsTopic, directivesTopic string) domrepo.Publisher {
	return &KafkaPublisher{
		producer:        producer,
		signalsTopic:    signalsTopic,
		directivesTopic: directivesTopic,
	}
}

func (p *KafkaPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return p.producer.Publish(ctx, p.signalsTopic, []byte(s.Instrument), map[string]interface{}{
		"signal_id":  s.ID,
		"instrument": s.Instrument,
		"direction":  string(s.Direction),
		"strategy":   string(s.Strategy),
		"confidence": s.Confidence,
		"entry":      s.Entry,
		"stop":       s.Stop,
		"target":     s.Target,
		"created_at": s.CreatedAt.UnixMilli(),
		"expires_at": s.ExpiresAt.UnixMilli(),
	})
}

func (p *KafkaPublisher) PublishDirective(ctx context.Context, d *models.ExecutionDirective) error {
	return p.producer.Publish(ctx, p.directivesTopic, []byte(d.Instrument), map[string]interface{}{
		"signal_id":       d.SignalID,
		"execution_id":    d.ExecutionID,
		"instrument":      d.Instrument,
		"direction":       string(d.Direction),
		"size":            d.Size,
		"entry":           d.Entry,
		"adjusted_stop":   d.AdjustedStop,
		"adjusted_target": d.AdjustedTarget,
		"skip":            d.Skip,
		"dispatch_at":     d.DispatchAt.UnixMilli(),
		"expires_at":      d.ExpiresAt.UnixMilli(),
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
