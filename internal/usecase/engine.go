package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "MarketPulse/internal/domain/repository"
	mid "MarketPulse/internal/middleware"
	applogger "MarketPulse/pkg/logger"
)

type EngineConfig struct {
	RefreshInterval time.Duration
	AlertInterval   time.Duration
	SignalInterval  time.Duration // zero disables signal generation
	PruneInterval   time.Duration
	Retention       time.Duration // durable cache entries older than this are pruned
}

// CachePruner drops durable cache entries that can no longer serve as a
// stale fallback.
type CachePruner interface {
	PruneCache(ctx context.Context, cutoff time.Time) (int64, error)
}

// Engine drives the market refresh, alert cycles and signal generation on
// their own tickers. All loops stop together.
type Engine struct {
	cfg     EngineConfig
	market  *MarketState
	alerts  *AlertScheduler
	signals *SignalGenerator
	pipe    *mid.EventPipeline
	pruner  CachePruner
	metrics domrepo.Metrics
	logger  *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine wires the loops; signals and pipe may be nil.
func NewEngine(cfg EngineConfig, market *MarketState, alerts *AlertScheduler, signals *SignalGenerator, pipe *mid.EventPipeline, m domrepo.Metrics, l *applogger.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		market:  market,
		alerts:  alerts,
		signals: signals,
		pipe:    pipe,
		metrics: m,
		logger:  l.With(applogger.Component("engine")),
	}
}

// WithPruner enables the periodic durable cache cleanup.
func (e *Engine) WithPruner(p CachePruner) *Engine {
	e.pruner = p
	return e
}

// Start runs one refresh synchronously so the first alert cycle sees prices,
// then starts the loops in the background.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	if e.pipe != nil {
		e.pipe.Start(ctx)
	}

	sum, _ := e.market.Refresh(ctx)
	e.logger.Info("initial market refresh",
		applogger.Int("instruments", sum.Instruments),
		applogger.Int("updated", sum.Updated),
		applogger.Int("failed", sum.Failed))

	e.loop(ctx, "market_refresh", e.cfg.RefreshInterval, func(ctx context.Context) {
		e.market.Refresh(ctx)
	})
	e.loop(ctx, "alert_cycle", e.cfg.AlertInterval, func(ctx context.Context) {
		if _, _, err := e.alerts.RunCycle(ctx); err != nil {
			e.logger.Warn("alert cycle failed", applogger.Error(err))
		}
	})
	if e.signals != nil && e.cfg.SignalInterval > 0 {
		e.loop(ctx, "signal", e.cfg.SignalInterval, func(ctx context.Context) {
			if _, err := e.signals.Generate(ctx); err != nil {
				e.logger.Warn("signal generation failed", applogger.Error(err))
			}
		})
	}
	if e.pruner != nil && e.cfg.Retention > 0 {
		e.loop(ctx, "cache_prune", e.cfg.PruneInterval, func(ctx context.Context) {
			n, err := e.pruner.PruneCache(ctx, time.Now().Add(-e.cfg.Retention))
			if err != nil {
				e.logger.Warn("cache prune failed", applogger.Error(err))
				return
			}
			if n > 0 {
				e.logger.Debug("cache pruned", applogger.Int64("entries", n))
			}
		})
	}
	return nil
}

// loop runs fn on every tick. Each tick runs in its own goroutine so a slow
// run cannot delay the ticker; the callee drops overlapping runs.
func (e *Engine) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context)) {
	if every <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()

		var runs sync.WaitGroup
		defer runs.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				runs.Add(1)
				go func() {
					defer runs.Done()
					defer func() {
						if r := recover(); r != nil {
							e.metrics.RecordError(name + "_panic")
							e.logger.Error("job panicked", applogger.String("job", name), applogger.Any("panic", r))
						}
					}()
					start := time.Now()
					fn(ctx)
					e.metrics.RecordLatency(name, time.Since(start).Seconds())
				}()
			}
		}
	}()
}

// Shutdown stops the loops, waits for running jobs and flushes the pipeline.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.pipe != nil {
		e.pipe.Stop()
	}
	return nil
}
