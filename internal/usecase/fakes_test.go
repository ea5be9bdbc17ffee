package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/service/pricecache"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeFeed serves a flat price per symbol; a symbol mapped to an error fails.
type fakeFeed struct {
	mu      sync.Mutex
	prices  map[string]float64
	fail    map[string]error
	calls   map[string]int
	block   chan struct{} // when set, every fetch waits on it
	entered chan string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		prices: map[string]float64{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	delete(f.fail, symbol)
}

func (f *fakeFeed) breakSymbol(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[symbol] = err
}

func (f *fakeFeed) callsFor(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeFeed) FetchSeries(ctx context.Context, inst models.Instrument, _ models.Interval, limit int) (models.Series, error) {
	f.mu.Lock()
	f.calls[inst.Symbol]++
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- inst.Symbol
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[inst.Symbol]; ok {
		return nil, err
	}
	p, ok := f.prices[inst.Symbol]
	if !ok {
		return nil, domrepo.NewFeedError(domrepo.FailInvalidSymbol, "fake", inst.Symbol, nil)
	}
	vol := 10.0
	return models.Series{
		{Time: time.Unix(0, 0), Open: p, High: p, Low: p, Close: p, Volume: &vol},
	}, nil
}

func (f *fakeFeed) FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	s, err := f.FetchSeries(ctx, inst, "", 1)
	if err != nil {
		return models.Snapshot{}, err
	}
	return s[0], nil
}

// memStore is an in-memory AlertStore and SignalStore. With listStale set,
// ListActive keeps returning alerts that were already triggered, the way a
// listing taken just before another writer's transition would.
type memStore struct {
	mu          sync.Mutex
	alerts      map[string]models.Alert
	initial     []models.Alert
	signals     []models.Signal
	transitions int
	listStale   bool
}

func newMemStore(alerts ...models.Alert) *memStore {
	s := &memStore{alerts: map[string]models.Alert{}, initial: alerts}
	for _, a := range alerts {
		s.alerts[a.ID] = a
	}
	return s
}

func (s *memStore) ListActive(_ context.Context, kinds ...models.AlertKind) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[models.AlertKind]bool{}
	for _, k := range kinds {
		want[k] = true
	}
	var out []models.Alert
	for _, a := range s.initial {
		cur := s.alerts[a.ID]
		if !s.listStale && cur.Status != models.AlertActive {
			continue
		}
		if len(want) > 0 && !want[a.Kind] {
			continue
		}
		if s.listStale {
			out = append(out, a)
		} else {
			out = append(out, cur)
		}
	}
	return out, nil
}

func (s *memStore) GetAlert(_ context.Context, id string) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, domrepo.ErrNotFound
	}
	return a, nil
}

func (s *memStore) Transition(_ context.Context, id string, status models.AlertStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return domrepo.ErrNotFound
	}
	if a.Status != models.AlertActive {
		return domrepo.ErrStoreConflict
	}
	a.Status = status
	if status == models.AlertTriggered {
		a.TriggeredAt = &at
	}
	s.alerts[id] = a
	s.transitions++
	return nil
}

func (s *memStore) ListTriggered(_ context.Context, limit int) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.Status == models.AlertTriggered {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) AppendSignal(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func (s *memStore) ListSignals(_ context.Context, limit int) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Signal(nil), s.signals...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) alert(id string) models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[id]
}

type sentNote struct {
	destination string
	n           models.Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	ok   bool
	sent []sentNote
}

func (n *fakeNotifier) Send(_ context.Context, destination string, note models.Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNote{destination: destination, n: note})
	return n.ok
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *captureEmitter) Emit(_ context.Context, e *models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *e)
}

func (c *captureEmitter) ofType(t models.EventType) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	clock    *fakeClock
	feed     *fakeFeed
	store    *memStore
	notifier *fakeNotifier
	emitter  *captureEmitter
	locks    *cache.MemoryCache
	quotes   *QuoteService
	market   *MarketState
	sched    *AlertScheduler
}

func crypto(symbol string) models.Instrument {
	return models.Instrument{Symbol: symbol, Segment: models.SegmentCrypto}
}

func newAlert(id, symbol string, kind models.AlertKind, target float64) models.Alert {
	return models.Alert{
		ID:          id,
		Owner:       "u1",
		Instrument:  crypto(symbol),
		Kind:        kind,
		TargetPrice: target,
		Status:      models.AlertActive,
		Notify:      true,
		Destination: "chat-1",
		CreatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newHarness(t *testing.T, universe []models.Instrument, alerts ...models.Alert) *harness {
	t.Helper()

	clock := newFakeClock()
	l := applogger.NewNop()
	m := metrics.Nop{}

	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0), cache.WithMemoryClock(clock.Now))
	locks := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() {
		_ = mem.Close()
		_ = locks.Close()
	})

	pc := pricecache.New(pricecache.Config{TTL: time.Minute, Now: clock.Now}, mem, nil, m, l)
	f := newFakeFeed()
	quotes := NewQuoteService(f, pc, "1h", 24, m, l)
	em := &captureEmitter{}
	market := NewMarketState(MarketConfig{Concurrency: 4, Now: clock.Now}, universe, quotes, em, m, l)
	store := newMemStore(alerts...)
	notifier := &fakeNotifier{ok: true}
	sched := NewAlertScheduler(SchedulerConfig{Concurrency: 4, Now: clock.Now}, store, quotes, domsvc.NewEvaluator(0.01), notifier, locks, em, m, l)

	return &harness{
		clock:    clock,
		feed:     f,
		store:    store,
		notifier: notifier,
		emitter:  em,
		locks:    locks,
		quotes:   quotes,
		market:   market,
		sched:    sched,
	}
}
