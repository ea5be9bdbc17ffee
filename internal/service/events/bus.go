package events

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"

	"github.com/google/uuid"
)

// Sink receives every emitted event after local fan-out. The event pipeline
// satisfies it.
type Sink interface {
	Process(ctx context.Context, e *models.Event) error
}

// Bus fans engine events out to in-process subscribers. A subscriber that
// cannot keep up loses events rather than stalling the emitter.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	buffer  int
	sink    Sink
	metrics domrepo.Metrics
	logger  *applogger.Logger
	now     func() time.Time
}

type subscription struct {
	ch    chan models.Event
	types map[models.EventType]struct{}
}

type Option func(*Bus)

// WithSink forwards every event to s.
func WithSink(s Sink) Option {
	return func(b *Bus) { b.sink = s }
}

// WithSubscriberBuffer sets the per-subscriber channel size.
func WithSubscriberBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

func NewBus(m domrepo.Metrics, l *applogger.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[uint64]*subscription),
		buffer:  64,
		metrics: m,
		logger:  l.With(applogger.Component("events")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel of events of the given types (all types when
// none are given) and a function that ends the subscription.
func (b *Bus) Subscribe(types ...models.EventType) (<-chan models.Event, func()) {
	sub := &subscription{ch: make(chan models.Event, b.buffer)}
	if len(types) > 0 {
		sub.types = make(map[models.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Emit stamps e with an id and time if missing, delivers it to subscribers
// and forwards it to the sink. Sink failures are logged; the pipeline keeps
// the event buffered for a later retry.
func (b *Bus) Emit(ctx context.Context, e *models.Event) {
	if e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = b.now().UTC()
	}

	b.mu.RLock()
	for _, sub := range b.subs {
		if sub.types != nil {
			if _, ok := sub.types[e.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- *e:
			b.metrics.RecordEvent(string(e.Type), "delivered")
		default:
			b.metrics.RecordEvent(string(e.Type), "dropped")
		}
	}
	b.mu.RUnlock()

	if b.sink == nil {
		return
	}
	if err := b.sink.Process(ctx, e); err != nil {
		b.logger.Warn("event sink failed",
			applogger.String("event_id", e.ID),
			applogger.String("type", string(e.Type)),
			applogger.Error(err),
		)
	}
}
