package usecase

import (
	"context"
	"errors"
	"testing"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/feed"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTicks []models.MarketTick

func (s staticTicks) Snapshot() []models.MarketTick { return s }

func pricedUniverse() staticTicks {
	var out staticTicks
	for i, inst := range models.DefaultUniverse() {
		out = append(out, models.MarketTick{Instrument: inst, Price: float64(i+1) * 1.2345})
	}
	return out
}

func newGenerator(ticks TickSource, store *memStore, em Emitter, seed int64, p float64) *SignalGenerator {
	return NewSignalGenerator(SignalConfig{Probability: p}, ticks, store, em, feed.NewSeededRand(seed), metrics.Nop{}, applogger.NewNop())
}

func TestSignalGenerator_Rate(t *testing.T) {
	t.Parallel()

	const runs, calls = 5, 10000
	total := 0
	for seed := int64(1); seed <= runs; seed++ {
		store := newMemStore()
		g := newGenerator(pricedUniverse(), store, nil, seed, 0.15)
		for i := 0; i < calls; i++ {
			_, err := g.Generate(context.Background())
			require.NoError(t, err)
		}
		total += len(store.signals)
	}
	// 5 × 10,000 × 0.15 = 7,500, within 5%
	assert.InDelta(t, 7500, total, 375)
}

func TestSignalGenerator_Bounds(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	em := &captureEmitter{}
	g := newGenerator(pricedUniverse(), store, em, 42, 1)

	templates := map[string]string{}
	for _, tmpl := range models.DefaultConditionTemplates {
		templates[tmpl.Type] = tmpl.Message
	}

	for i := 0; i < 500; i++ {
		sig, err := g.Generate(context.Background())
		require.NoError(t, err)
		require.NotNil(t, sig)

		assert.NotEmpty(t, sig.ID)
		assert.Equal(t, templates[sig.ConditionType], sig.ConditionMessage)
		assert.GreaterOrEqual(t, sig.StopLoss, sig.EntryPrice*0.95-1e-4)
		assert.LessOrEqual(t, sig.StopLoss, sig.EntryPrice*0.98+1e-4)
		assert.GreaterOrEqual(t, sig.TargetPrice, sig.EntryPrice*1.03-1e-4)
		assert.LessOrEqual(t, sig.TargetPrice, sig.EntryPrice*1.10+1e-4)
		assert.InDelta(t, sig.StopLoss, float64(int64(sig.StopLoss*1e4+0.5))/1e4, 1e-9)
	}
	assert.Len(t, store.signals, 500)
	assert.Len(t, em.ofType(models.EventSignalCreated), 500)
}

func TestSignalGenerator_SkipsZeroPrice(t *testing.T) {
	t.Parallel()

	ticks := staticTicks{{Instrument: crypto("BTC/USDT")}}
	store := newMemStore()
	g := newGenerator(ticks, store, nil, 7, 1)

	for i := 0; i < 100; i++ {
		sig, err := g.Generate(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sig)
	}
	assert.Empty(t, store.signals)
}

func TestSignalGenerator_ZeroProbability(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	g := newGenerator(pricedUniverse(), store, nil, 7, 0)
	for i := 0; i < 1000; i++ {
		sig, err := g.Generate(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sig)
	}
}

type failingSignals struct{ *memStore }

func (failingSignals) AppendSignal(context.Context, models.Signal) error {
	return errors.New("db down")
}

func TestSignalGenerator_StoreFailure(t *testing.T) {
	t.Parallel()

	em := &captureEmitter{}
	g := NewSignalGenerator(SignalConfig{Probability: 1}, pricedUniverse(), failingSignals{newMemStore()}, em,
		feed.NewSeededRand(3), metrics.Nop{}, applogger.NewNop())

	sig, err := g.Generate(context.Background())
	require.Error(t, err)
	assert.Nil(t, sig)
	assert.Empty(t, em.ofType(models.EventSignalCreated))
}
