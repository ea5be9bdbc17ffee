package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	err    error
	events []*models.Event
}

func (r *recordingSink) Publish(_ context.Context, e *models.Event) error { return r.add(e) }
func (r *recordingSink) PublishBatch(_ context.Context, es []*models.Event) error {
	return r.add(es...)
}
func (r *recordingSink) Init(context.Context) error { return nil }
func (r *recordingSink) Store(_ context.Context, e *models.Event) error { return r.add(e) }
func (r *recordingSink) StoreBatch(_ context.Context, es []*models.Event) error {
	return r.add(es...)
}
func (r *recordingSink) Query(context.Context, models.EventType, int) ([]*models.Event, error) {
	return r.events, nil
}
func (r *recordingSink) Health(context.Context) error { return nil }
func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) add(es ...*models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, es...)
	return nil
}

func sampleEvent(id string) *models.Event {
	return &models.Event{
		ID:      id,
		Type:    models.EventMarketRefreshed,
		At:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Refresh: &models.RefreshSummary{Instruments: 1, Updated: 1},
	}
}

func TestNewEventProcessor_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewEventProcessor(nil, nil, metrics.Nop{}, BackendKafka)
	assert.Error(t, err)
	_, err = NewEventProcessor(nil, nil, metrics.Nop{}, BackendClickHouse)
	assert.Error(t, err)
	_, err = NewEventProcessor(nil, nil, metrics.Nop{}, "rabbit")
	assert.Error(t, err)

	p, err := NewEventProcessor(nil, nil, metrics.Nop{}, "")
	require.NoError(t, err)
	assert.Equal(t, BackendNone, p.Backend())
	assert.NoError(t, p.Process(context.Background(), sampleEvent("e1")))
}

func TestEventProcessor_Routes(t *testing.T) {
	t.Parallel()

	pub, store := &recordingSink{}, &recordingSink{}
	kp, err := NewEventProcessor(pub, store, metrics.Nop{}, BackendKafka)
	require.NoError(t, err)
	cp, err := NewEventProcessor(pub, store, metrics.Nop{}, BackendClickHouse)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, kp.Process(ctx, sampleEvent("k1")))
	require.NoError(t, kp.ProcessBatch(ctx, []*models.Event{sampleEvent("k2"), sampleEvent("k3")}))
	require.NoError(t, cp.Process(ctx, sampleEvent("c1")))

	assert.Len(t, pub.events, 3)
	assert.Len(t, store.events, 1)

	assert.Error(t, kp.Process(ctx, nil))

	pub.err = errors.New("broker down")
	err = kp.Process(ctx, sampleEvent("k4"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "broker down")
}

func TestEventHistoryHandler(t *testing.T) {
	t.Parallel()

	store := &recordingSink{}
	h := NewEventHistoryHandler("marketpulse.events", store, metrics.Nop{})
	assert.Equal(t, "marketpulse.events", h.Topic())

	raw, err := json.Marshal(sampleEvent("h1"))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), raw))
	require.Len(t, store.events, 1)
	assert.Equal(t, "h1", store.events[0].ID)
	assert.Equal(t, 1, store.events[0].Refresh.Updated)

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"type":"market.refreshed"}`)))

	store.err = errors.New("clickhouse down")
	assert.Error(t, h.Handle(context.Background(), raw))
}
