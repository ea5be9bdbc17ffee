package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// EventHistoryHandler consumes the events topic and writes every event to
// the history storage.
type EventHistoryHandler struct {
	topic   string
	storage domrepo.EventStorage
	metrics domrepo.Metrics
}

var _ pkgkafka.MessageHandler = (*EventHistoryHandler)(nil)

func NewEventHistoryHandler(topic string, storage domrepo.EventStorage, metrics domrepo.Metrics) *EventHistoryHandler {
	return &EventHistoryHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *EventHistoryHandler) Topic() string { return h.topic }

func (h *EventHistoryHandler) Handle(ctx context.Context, b []byte) error {
	var e models.Event
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("event without id or type")
	}
	if !e.At.IsZero() {
		h.metrics.RecordLatency("event_e2e", time.Since(e.At).Seconds())
	}

	start := time.Now()
	err := h.storage.Store(ctx, &e)
	h.metrics.RecordLatency("history_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordEvent(string(e.Type), "stored")
	return nil
}
