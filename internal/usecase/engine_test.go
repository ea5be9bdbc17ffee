package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/feed"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *recordingPruner) PruneCache(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, nil
}

func (p *recordingPruner) calls() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.cutoffs...)
}

func TestEngine_StartRefreshesBeforeReturning(t *testing.T) {
	h := newHarness(t, []models.Instrument{crypto("BTC/USDT")})
	h.feed.set("BTC/USDT", 42000)

	e := NewEngine(EngineConfig{RefreshInterval: time.Hour, AlertInterval: time.Hour}, h.market, h.sched, nil, nil, metrics.Nop{}, applogger.NewNop())
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	tick, ok := h.market.Tick(crypto("BTC/USDT"))
	require.True(t, ok)
	assert.Equal(t, 42000.0, tick.Price)
}

func TestEngine_LoopsTriggerAlertAfterPriceMove(t *testing.T) {
	h := newHarness(t, []models.Instrument{crypto("BTC/USDT")},
		newAlert("a1", "BTC/USDT", models.AlertAbove, 50000))
	h.feed.set("BTC/USDT", 49000)

	e := NewEngine(EngineConfig{
		RefreshInterval: 10 * time.Millisecond,
		AlertInterval:   10 * time.Millisecond,
	}, h.market, h.sched, nil, nil, metrics.Nop{}, applogger.NewNop())
	require.NoError(t, e.Start(context.Background()))

	assert.Equal(t, models.AlertActive, h.store.alert("a1").Status)
	h.feed.set("BTC/USDT", 50500)

	require.Eventually(t, func() bool {
		return h.store.alert("a1").Status == models.AlertTriggered
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, 1, h.store.transitions)
}

func TestEngine_SignalLoopAppendsSignals(t *testing.T) {
	h := newHarness(t, []models.Instrument{crypto("BTC/USDT")})
	h.feed.set("BTC/USDT", 42000)

	gen := NewSignalGenerator(SignalConfig{Probability: 1}, h.market, h.store, h.emitter, feed.NewSeededRand(1), metrics.Nop{}, applogger.NewNop())
	e := NewEngine(EngineConfig{
		RefreshInterval: time.Hour,
		AlertInterval:   time.Hour,
		SignalInterval:  10 * time.Millisecond,
	}, h.market, h.sched, gen, nil, metrics.Nop{}, applogger.NewNop())
	require.NoError(t, e.Start(context.Background()))

	require.Eventually(t, func() bool {
		sigs, _ := h.store.ListSignals(context.Background(), 0)
		return len(sigs) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestEngine_PrunesDurableCache(t *testing.T) {
	h := newHarness(t, []models.Instrument{crypto("BTC/USDT")})
	h.feed.set("BTC/USDT", 42000)

	p := &recordingPruner{}
	e := NewEngine(EngineConfig{
		RefreshInterval: time.Hour,
		AlertInterval:   time.Hour,
		PruneInterval:   10 * time.Millisecond,
		Retention:       time.Hour,
	}, h.market, h.sched, nil, nil, metrics.Nop{}, applogger.NewNop()).WithPruner(p)

	before := time.Now()
	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return len(p.calls()) > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Shutdown(context.Background()))

	cutoff := p.calls()[0]
	assert.WithinDuration(t, before.Add(-time.Hour), cutoff, time.Second)
}

func TestEngine_ShutdownWithoutStart(t *testing.T) {
	h := newHarness(t, nil)
	e := NewEngine(EngineConfig{}, h.market, h.sched, nil, nil, metrics.Nop{}, applogger.NewNop())
	assert.NoError(t, e.Shutdown(context.Background()))
}
