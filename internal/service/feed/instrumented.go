package feed

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// Instrumented records latency and failures of every call on the wrapped feed.
type Instrumented struct {
	next    domrepo.PriceFeed
	metrics domrepo.Metrics
}

func NewInstrumented(next domrepo.PriceFeed, m domrepo.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (f *Instrumented) Name() string { return f.next.Name() }

func (f *Instrumented) FetchSeries(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error) {
	start := time.Now()
	s, err := f.next.FetchSeries(ctx, inst, interval, limit)
	f.metrics.RecordUpstream(f.name(inst), "series", time.Since(start).Seconds(), err)
	return s, err
}

func (f *Instrumented) FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	start := time.Now()
	s, err := f.next.FetchLatest(ctx, inst)
	f.metrics.RecordUpstream(f.name(inst), "latest", time.Since(start).Seconds(), err)
	return s, err
}

func (f *Instrumented) name(inst models.Instrument) string {
	if r, ok := f.next.(*Router); ok {
		return r.For(inst).Name()
	}
	return f.next.Name()
}
