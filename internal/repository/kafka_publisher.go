package repository

import (
	"context"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/domain/repository"
	pkgkafka "StockWatchdog/pkg/kafka"
)

// KafkaRecordPublisher publishes normalized records as JSON keyed by symbol.
type KafkaRecordPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaRecordPublisher(producer *pkgkafka.Producer, topic string) repository.RecordPublisher {
	return &KafkaRecordPublisher{producer: producer, topic: topic}
}

func (p *KafkaRecordPublisher) Publish(ctx context.Context, r *models.DualTruthRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Symbol()), r)
}

func (p *KafkaRecordPublisher) PublishBatch(ctx context.Context, records []*models.DualTruthRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(r.Symbol()), Value: r})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaRecordPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
