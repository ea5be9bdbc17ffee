package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// PriceFeed is an upstream price source. Implementations bound every call
// with a timeout and return *FeedError on failure, never an empty success.
type PriceFeed interface {
	Name() string
	FetchSeries(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error)
	FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error)
}

// AlertStore is the alert half of the persistent store.
type AlertStore interface {
	// ListActive returns active alerts, optionally restricted to the given kinds.
	ListActive(ctx context.Context, kinds ...models.AlertKind) ([]models.Alert, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	// Transition moves an active alert to status. It returns ErrStoreConflict
	// when the alert is no longer active and ErrNotFound when it does not exist.
	Transition(ctx context.Context, id string, status models.AlertStatus, at time.Time) error
	ListTriggered(ctx context.Context, limit int) ([]models.Alert, error)
}

type SignalStore interface {
	AppendSignal(ctx context.Context, s models.Signal) error
	ListSignals(ctx context.Context, limit int) ([]models.Signal, error)
}

// CacheStore is the durable price cache tier.
type CacheStore interface {
	UpsertCacheEntry(ctx context.Context, entry models.CacheEntry) error
	// GetCacheEntry returns ErrCacheMiss when nothing is stored under key.
	GetCacheEntry(ctx context.Context, key string) (models.CacheEntry, error)
}

// Store is everything the engine persists.
type Store interface {
	AlertStore
	SignalStore
	CacheStore
}

// Notifier delivers a triggered alert. It reports success and never retries.
type Notifier interface {
	Send(ctx context.Context, destination string, n models.Notification) bool
}

// EventPublisher forwards engine events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.Event) error
	PublishBatch(ctx context.Context, events []*models.Event) error
	Close() error
}

// EventStorage keeps queryable event history.
type EventStorage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, e *models.Event) error
	StoreBatch(ctx context.Context, events []*models.Event) error
	Query(ctx context.Context, eventType models.EventType, limit int) ([]*models.Event, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordCacheRead(result string)
	RecordUpstream(feed, op string, seconds float64, err error)
	RecordRefresh(updated, failed int, seconds float64)
	RecordRefreshDropped()
	RecordAlertCycle(evaluated, triggered, skipped, failed int, seconds float64)
	RecordAlertOutcome(outcome string)
	RecordDispatch(ok bool)
	RecordSignal(condition string)
	RecordEvent(eventType, outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
