package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// Event sink backends.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// EventProcessor routes events to the configured backend. It sits behind the
// event pipeline, which buffers whatever it fails to deliver.
type EventProcessor struct {
	pub     domrepo.EventPublisher
	store   domrepo.EventStorage
	metrics domrepo.Metrics
	backend string
}

func NewEventProcessor(pub domrepo.EventPublisher, store domrepo.EventStorage, metrics domrepo.Metrics, backend string) (*EventProcessor, error) {
	switch backend {
	case "", BackendNone:
		backend = BackendNone
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("event backend kafka needs a publisher")
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("event backend clickhouse needs a storage")
		}
	default:
		return nil, fmt.Errorf("unknown event backend: %s", backend)
	}
	return &EventProcessor{pub: pub, store: store, metrics: metrics, backend: backend}, nil
}

func (p *EventProcessor) Backend() string { return p.backend }

func (p *EventProcessor) Process(ctx context.Context, e *models.Event) error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, e)
	case BackendClickHouse:
		err = p.store.Store(ctx, e)
	default:
		return nil
	}

	if err != nil {
		p.metrics.RecordError("event_sink")
		return fmt.Errorf("process event %s: %w", e.ID, err)
	}
	p.metrics.RecordEvent(string(e.Type), "sent")
	p.metrics.RecordLatency("event_sink", time.Since(start).Seconds())
	return nil
}

func (p *EventProcessor) ProcessBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, events)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, events)
	default:
		return nil
	}

	if err != nil {
		p.metrics.RecordError("event_sink_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	for _, e := range events {
		p.metrics.RecordEvent(string(e.Type), "sent")
	}
	p.metrics.RecordLatency("event_sink_batch", time.Since(start).Seconds())
	return nil
}

func (p *EventProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
