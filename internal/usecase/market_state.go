package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/features"
	applogger "MarketPulse/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Emitter publishes engine events. The event bus satisfies it.
type Emitter interface {
	Emit(ctx context.Context, e *models.Event)
}

type MarketConfig struct {
	RefreshTimeout time.Duration
	Concurrency    int
	Now            func() time.Time
}

// MarketState owns one tick per instrument of the universe. Ticks are
// updated in place by Refresh and copied out to readers.
type MarketState struct {
	cfg        MarketConfig
	universe   []models.Instrument
	quotes     *QuoteService
	emitter    Emitter
	metrics    domrepo.Metrics
	logger     *applogger.Logger
	refreshing atomic.Bool

	mu    sync.RWMutex
	ticks map[string]*models.MarketTick
}

func NewMarketState(cfg MarketConfig, universe []models.Instrument, quotes *QuoteService, emitter Emitter, m domrepo.Metrics, l *applogger.Logger) *MarketState {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 20 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ticks := make(map[string]*models.MarketTick, len(universe))
	for _, inst := range universe {
		ticks[inst.CacheKey()] = &models.MarketTick{Instrument: inst}
	}
	return &MarketState{
		cfg:      cfg,
		universe: universe,
		quotes:   quotes,
		emitter:  emitter,
		metrics:  m,
		logger:   l.With(applogger.Component("market")),
		ticks:    ticks,
	}
}

func (s *MarketState) Universe() []models.Instrument { return s.universe }

// Refresh fetches every instrument once. A call made while another refresh
// is running returns immediately with ran=false.
func (s *MarketState) Refresh(ctx context.Context) (summary models.RefreshSummary, ran bool) {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.metrics.RecordRefreshDropped()
		s.logger.Debug("refresh already in flight, dropping tick")
		return models.RefreshSummary{}, false
	}
	defer s.refreshing.Store(false)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout)
	defer cancel()

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, inst := range s.universe {
		g.Go(func() error {
			if s.refreshOne(gctx, inst) {
				updated.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary = models.RefreshSummary{
		Instruments: len(s.universe),
		Updated:     int(updated.Load()),
		Failed:      int(failed.Load()),
		Took:        time.Since(start),
	}
	s.metrics.RecordRefresh(summary.Updated, summary.Failed, summary.Took.Seconds())
	if summary.Failed > 0 {
		s.logger.Info("market refresh finished with failures",
			applogger.Int("updated", summary.Updated),
			applogger.Int("failed", summary.Failed),
			applogger.Duration("took", summary.Took))
	}
	if s.emitter != nil {
		sum := summary
		s.emitter.Emit(ctx, &models.Event{Type: models.EventMarketRefreshed, Refresh: &sum})
	}
	return summary, true
}

// refreshOne overwrites the tick on success. On failure the previous values
// stay and the tick is flagged degraded.
func (s *MarketState) refreshOne(ctx context.Context, inst models.Instrument) bool {
	series, err := s.quotes.Refresh(ctx, inst)
	if err != nil {
		s.logger.Warn("refresh failed",
			applogger.String("symbol", inst.String()),
			applogger.String("kind", string(domrepo.FailureKind(err))),
			applogger.Error(err))
		s.markDegraded(inst)
		return false
	}
	last, ok := series.Latest()
	if !ok {
		s.markDegraded(inst)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.ticks[inst.CacheKey()]
	t.Price = last.Close
	t.Change24h = features.ChangePct(series)
	t.Volume = features.TotalVolume(series)
	t.LastUpdate = s.cfg.Now().UTC()
	t.Degraded = false
	return true
}

// markDegraded flags a tick that already carries a price as stale.
func (s *MarketState) markDegraded(inst models.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.ticks[inst.CacheKey()]; t != nil && t.Price > 0 {
		t.Degraded = true
	}
}

// Snapshot copies all ticks in universe order.
func (s *MarketState) Snapshot() []models.MarketTick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MarketTick, 0, len(s.universe))
	for _, inst := range s.universe {
		out = append(out, *s.ticks[inst.CacheKey()])
	}
	return out
}

// Tick returns a copy of one instrument's tick.
func (s *MarketState) Tick(inst models.Instrument) (models.MarketTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[inst.CacheKey()]
	if !ok {
		return models.MarketTick{}, false
	}
	return *t, true
}
