package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/feed"
	applogger "MarketPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TickSource is the read side of MarketState.
type TickSource interface {
	Snapshot() []models.MarketTick
}

type SignalConfig struct {
	Probability float64
	Templates   []models.ConditionTemplate
	Now         func() time.Time
}

// SignalGenerator stamps random strategy signals on random instruments.
type SignalGenerator struct {
	cfg     SignalConfig
	ticks   TickSource
	store   domrepo.SignalStore
	emitter Emitter
	rng     feed.Rand
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewSignalGenerator(cfg SignalConfig, ticks TickSource, store domrepo.SignalStore, emitter Emitter, rng feed.Rand, m domrepo.Metrics, l *applogger.Logger) *SignalGenerator {
	if len(cfg.Templates) == 0 {
		cfg.Templates = models.DefaultConditionTemplates
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SignalGenerator{
		cfg:     cfg,
		ticks:   ticks,
		store:   store,
		emitter: emitter,
		rng:     rng,
		metrics: m,
		logger:  l.With(applogger.Component("signals")),
	}
}

// Generate rolls once against the configured probability. It returns nil
// when no signal was produced.
func (g *SignalGenerator) Generate(ctx context.Context) (*models.Signal, error) {
	if g.rng.Float64() >= g.cfg.Probability {
		return nil, nil
	}
	ticks := g.ticks.Snapshot()
	if len(ticks) == 0 {
		return nil, nil
	}
	tick := ticks[g.rng.IntN(len(ticks))]
	tmpl := g.cfg.Templates[g.rng.IntN(len(g.cfg.Templates))]
	if tick.Price <= 0 {
		return nil, nil
	}

	stopPct := 0.02 + g.rng.Float64()*0.03
	targetPct := 0.03 + g.rng.Float64()*0.07

	entry := decimal.NewFromFloat(tick.Price).Round(4)
	one := decimal.NewFromInt(1)
	sig := models.Signal{
		ID:               uuid.NewString(),
		Instrument:       tick.Instrument,
		ConditionType:    tmpl.Type,
		ConditionMessage: tmpl.Message,
		EntryPrice:       entry.InexactFloat64(),
		StopLoss:         entry.Mul(one.Sub(decimal.NewFromFloat(stopPct))).Round(4).InexactFloat64(),
		TargetPrice:      entry.Mul(one.Add(decimal.NewFromFloat(targetPct))).Round(4).InexactFloat64(),
		CreatedAt:        g.cfg.Now().UTC(),
	}

	if err := g.store.AppendSignal(ctx, sig); err != nil {
		g.metrics.RecordError("signal_store")
		return nil, fmt.Errorf("append signal: %w", err)
	}
	g.metrics.RecordSignal(sig.ConditionType)
	if g.emitter != nil {
		s := sig
		g.emitter.Emit(ctx, &models.Event{Type: models.EventSignalCreated, Signal: &s})
	}
	return &sig, nil
}
