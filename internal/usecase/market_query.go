package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/features"
)

// ErrHistoryDisabled is returned when no event history storage is configured.
var ErrHistoryDisabled = errors.New("event history disabled")

// MarketQuery serves the read API.
type MarketQuery struct {
	quotes  *QuoteService
	market  *MarketState
	signals domrepo.SignalStore
	alerts  domrepo.AlertStore
	history domrepo.EventStorage
	timeout time.Duration
}

// NewMarketQuery builds the read side; history may be nil.
func NewMarketQuery(quotes *QuoteService, market *MarketState, signals domrepo.SignalStore, alerts domrepo.AlertStore, history domrepo.EventStorage) *MarketQuery {
	return &MarketQuery{
		quotes:  quotes,
		market:  market,
		signals: signals,
		alerts:  alerts,
		history: history,
		timeout: 10 * time.Second,
	}
}

type SeriesParams struct {
	Instrument models.Instrument
	Interval   models.Interval
	Limit      int
}

type SeriesResult struct {
	Instrument models.Instrument `json:"instrument"`
	Interval   models.Interval   `json:"interval"`
	Count      int               `json:"count"`
	Degraded   bool              `json:"degraded"`
	Stats      *features.Stats   `json:"stats,omitempty"`
	Series     models.Series     `json:"series"`
}

func (q *MarketQuery) GetSeries(ctx context.Context, p SeriesParams) (*SeriesResult, error) {
	if p.Instrument.Symbol == "" {
		return nil, fmt.Errorf("symbol required: %w", domrepo.ErrInvalidSymbol)
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	series, degraded, err := q.quotes.Series(ctx, p.Instrument, p.Interval, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	res := &SeriesResult{
		Instrument: p.Instrument,
		Interval:   p.Interval,
		Count:      len(series),
		Degraded:   degraded,
		Series:     series,
	}
	if st, ok := features.Summarize(series, p.Interval); ok {
		res.Stats = &st
	}
	return res, nil
}

// PriceResult is the current price of one instrument as asked of the upstream.
type PriceResult struct {
	Instrument models.Instrument `json:"instrument"`
	Price      float64           `json:"price"`
	Degraded   bool              `json:"degraded"`
	At         time.Time         `json:"at"`
}

// Price reads the live price, falling back to the cached close.
func (q *MarketQuery) Price(ctx context.Context, inst models.Instrument) (*PriceResult, error) {
	if inst.Symbol == "" {
		return nil, fmt.Errorf("symbol required: %w", domrepo.ErrInvalidSymbol)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	quote, err := q.quotes.Price(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}
	return &PriceResult{
		Instrument: inst,
		Price:      quote.Price,
		Degraded:   quote.Degraded,
		At:         time.Now().UTC(),
	}, nil
}

func (q *MarketQuery) Market() []models.MarketTick {
	return q.market.Snapshot()
}

// Tick returns the live tick of an instrument of the universe.
func (q *MarketQuery) Tick(inst models.Instrument) (models.MarketTick, error) {
	t, ok := q.market.Tick(inst)
	if !ok {
		return models.MarketTick{}, fmt.Errorf("%s: %w", inst, domrepo.ErrNotFound)
	}
	return t, nil
}

func (q *MarketQuery) Signals(ctx context.Context, limit int) ([]models.Signal, error) {
	return q.signals.ListSignals(ctx, limit)
}

func (q *MarketQuery) TriggeredAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	return q.alerts.ListTriggered(ctx, limit)
}

func (q *MarketQuery) History(ctx context.Context, t models.EventType, limit int) ([]*models.Event, error) {
	if q.history == nil {
		return nil, ErrHistoryDisabled
	}
	return q.history.Query(ctx, t, limit)
}

// Overview gathers the dashboard view. Sections that fail are reported in
// Errors instead of failing the whole call.
type Overview struct {
	Market    []models.MarketTick `json:"market"`
	Signals   []models.Signal     `json:"signals"`
	Triggered []models.Alert      `json:"triggered"`
	Timestamp time.Time           `json:"timestamp"`
	Errors    map[string]string   `json:"errors,omitempty"`
}

func (q *MarketQuery) Overview(ctx context.Context, limit int) *Overview {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	res := &Overview{
		Market:    q.market.Snapshot(),
		Timestamp: time.Now().UTC(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	fail := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if res.Errors == nil {
			res.Errors = map[string]string{}
		}
		res.Errors[name] = err.Error()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		sigs, err := q.signals.ListSignals(ctx, limit)
		if err != nil {
			fail("signals", err)
			return
		}
		res.Signals = sigs
	}()
	go func() {
		defer wg.Done()
		alerts, err := q.alerts.ListTriggered(ctx, limit)
		if err != nil {
			fail("triggered", err)
			return
		}
		res.Triggered = alerts
	}()
	wg.Wait()
	return res
}
