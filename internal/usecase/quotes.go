package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/pricecache"
	applogger "MarketPulse/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// QuoteService reads prices through the price cache. Fresh entries are
// served directly, anything else goes upstream, and a stale entry is the
// fallback when the upstream fails.
type QuoteService struct {
	feed     domrepo.PriceFeed
	cache    *pricecache.PriceCache
	interval models.Interval
	limit    int
	timeout  time.Duration
	group    singleflight.Group
	metrics  domrepo.Metrics
	logger   *applogger.Logger
}

// Quote is the newest price of an instrument.
type Quote struct {
	Price    float64
	Degraded bool
}

type QuoteOption func(*QuoteService)

// WithFetchTimeout bounds one shared upstream call. It applies regardless of
// the deadlines of the callers waiting on it.
func WithFetchTimeout(d time.Duration) QuoteOption {
	return func(q *QuoteService) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQuoteService(feed domrepo.PriceFeed, pc *pricecache.PriceCache, interval models.Interval, limit int, m domrepo.Metrics, l *applogger.Logger, opts ...QuoteOption) *QuoteService {
	if !interval.Valid() {
		interval = models.DefaultInterval()
	}
	if limit <= 0 {
		limit = 24
	}
	q := &QuoteService{
		feed:     feed,
		cache:    pc,
		interval: interval,
		limit:    limit,
		timeout:  30 * time.Second,
		metrics:  m,
		logger:   l.With(applogger.Component("quotes")),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// key is the instrument cache key for the default window, suffixed with the
// window for anything else.
func (q *QuoteService) key(inst models.Instrument, interval models.Interval, limit int) string {
	if interval == q.interval && limit == q.limit {
		return inst.CacheKey()
	}
	return inst.CacheKey() + ":" + string(interval) + ":" + strconv.Itoa(limit)
}

// Refresh fetches the default window upstream and stores it. It never falls
// back to the cache.
func (q *QuoteService) Refresh(ctx context.Context, inst models.Instrument) (models.Series, error) {
	return q.fetch(ctx, inst, q.interval, q.limit)
}

// Series returns a series for the window and whether it is a stale fallback.
func (q *QuoteService) Series(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, bool, error) {
	if !interval.Valid() {
		interval = q.interval
	}
	if limit <= 0 {
		limit = q.limit
	}
	key := q.key(inst, interval, limit)

	entry, fresh, err := q.cache.Get(ctx, key)
	hit := err == nil
	if hit && fresh {
		return entry.Series, false, nil
	}

	series, ferr := q.fetch(ctx, inst, interval, limit)
	if ferr == nil {
		return series, false, nil
	}
	if hit && len(entry.Series) > 0 {
		q.logger.Warn("serving stale series",
			applogger.String("key", key),
			applogger.Time("fetched_at", entry.FetchedAt),
			applogger.Error(ferr))
		return entry.Series, true, nil
	}
	return nil, false, ferr
}

// Latest returns the newest close of the default window.
func (q *QuoteService) Latest(ctx context.Context, inst models.Instrument) (Quote, error) {
	series, degraded, err := q.Series(ctx, inst, q.interval, q.limit)
	if err != nil {
		return Quote{}, err
	}
	last, ok := series.Latest()
	if !ok || last.Close <= 0 {
		return Quote{}, fmt.Errorf("%s: %w", inst, domrepo.ErrNoPrice)
	}
	return Quote{Price: last.Close, Degraded: degraded}, nil
}

// Price asks the upstream for the current price. When that fails the close
// of the cached default window is served flagged degraded.
func (q *QuoteService) Price(ctx context.Context, inst models.Instrument) (Quote, error) {
	v, err := q.shared(ctx, "price:"+inst.CacheKey(), func(fctx context.Context) (interface{}, error) {
		return q.feed.FetchLatest(fctx, inst)
	})
	if err == nil {
		if snap := v.(models.Snapshot); snap.Close > 0 {
			return Quote{Price: snap.Close}, nil
		}
		err = fmt.Errorf("%s: %w", inst, domrepo.ErrNoPrice)
	}

	entry, _, cerr := q.cache.Get(ctx, inst.CacheKey())
	if cerr == nil {
		if last, ok := entry.Series.Latest(); ok && last.Close > 0 {
			q.logger.Warn("serving cached price",
				applogger.String("symbol", inst.String()),
				applogger.Time("fetched_at", entry.FetchedAt),
				applogger.Error(err))
			return Quote{Price: last.Close, Degraded: true}, nil
		}
	}
	return Quote{}, err
}

// fetch collapses concurrent fetches of one key into a single upstream call.
func (q *QuoteService) fetch(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error) {
	key := q.key(inst, interval, limit)
	v, err := q.shared(ctx, key, func(fctx context.Context) (interface{}, error) {
		series, err := q.feed.FetchSeries(fctx, inst, interval, limit)
		if err != nil {
			return nil, err
		}
		if len(series) == 0 {
			return nil, domrepo.NewFeedError(domrepo.FailNetwork, q.feed.Name(), inst.Symbol, errors.New("empty series"))
		}
		q.cache.Put(fctx, key, series)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(models.Series), nil
}

// shared runs fn once per key for all concurrent callers. The call runs
// detached from any single caller and is bounded by the fetch timeout; each
// caller stops waiting when its own context ends.
func (q *QuoteService) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := q.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()
		return fn(fctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
