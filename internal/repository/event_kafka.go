package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaEventPublisher writes events to one topic, keyed by instrument symbol
// so events of one instrument stay ordered.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e *models.Event) error {
	return p.producer.Publish(ctx, p.topic, eventKey(e), e)
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, events []*models.Event) error {
	msgs := make([]pkgkafka.Message, 0, len(events))
	for _, e := range events {
		if e == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: eventKey(e), Value: e})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close leaves the producer open; it is shared with the log collector.
func (p *KafkaEventPublisher) Close() error { return nil }

func eventKey(e *models.Event) []byte {
	if sym := e.Symbol(); sym != "" {
		return []byte(sym)
	}
	return []byte(e.Type)
}
