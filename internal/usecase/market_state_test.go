package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketState_RefreshUpdatesTicks(t *testing.T) {
	universe := []models.Instrument{crypto("BTC/USDT"), crypto("ETH/USDT")}
	h := newHarness(t, universe)
	h.feed.set("BTC/USDT", 42000)
	h.feed.set("ETH/USDT", 2200)

	for _, tick := range h.market.Snapshot() {
		assert.Zero(t, tick.Price)
	}

	sum, ran := h.market.Refresh(context.Background())
	require.True(t, ran)
	assert.Equal(t, models.RefreshSummary{Instruments: 2, Updated: 2, Took: sum.Took}, sum)

	snap := h.market.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "BTC/USDT", snap[0].Instrument.Symbol)
	assert.Equal(t, 42000.0, snap[0].Price)
	assert.Equal(t, 10.0, snap[0].Volume)
	assert.True(t, snap[0].LastUpdate.Equal(h.clock.Now()))

	tick, ok := h.market.Tick(crypto("ETH/USDT"))
	require.True(t, ok)
	assert.Equal(t, 2200.0, tick.Price)

	_, ok = h.market.Tick(crypto("DOGE/USDT"))
	assert.False(t, ok)

	events := h.emitter.ofType(models.EventMarketRefreshed)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Refresh.Updated)
}

func TestMarketState_FailureKeepsTickAndFlagsDegraded(t *testing.T) {
	universe := []models.Instrument{crypto("BTC/USDT"), crypto("ETH/USDT")}
	h := newHarness(t, universe)
	h.feed.set("BTC/USDT", 42000)
	h.feed.set("ETH/USDT", 2200)
	h.market.Refresh(context.Background())
	before, _ := h.market.Tick(crypto("ETH/USDT"))

	h.clock.Advance(10)
	h.feed.set("BTC/USDT", 43000)
	h.feed.breakSymbol("ETH/USDT", domrepo.NewFeedError(domrepo.FailRateLimited, "fake", "ETHUSDT", errors.New("429")))

	sum, _ := h.market.Refresh(context.Background())
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Failed)

	after, _ := h.market.Tick(crypto("ETH/USDT"))
	assert.True(t, after.Degraded, "stale tick is flagged")
	after.Degraded = false
	assert.Equal(t, before, after)
	btc, _ := h.market.Tick(crypto("BTC/USDT"))
	assert.Equal(t, 43000.0, btc.Price)
	assert.False(t, btc.Degraded)

	h.feed.set("ETH/USDT", 2250)
	h.market.Refresh(context.Background())
	eth, _ := h.market.Tick(crypto("ETH/USDT"))
	assert.False(t, eth.Degraded, "successful refresh clears the flag")
}

func TestMarketState_FailureBeforeFirstPriceNotDegraded(t *testing.T) {
	universe := []models.Instrument{crypto("ETH/USDT")}
	h := newHarness(t, universe)
	h.feed.breakSymbol("ETH/USDT", domrepo.NewFeedError(domrepo.FailNetwork, "fake", "ETHUSDT", errors.New("down")))

	sum, _ := h.market.Refresh(context.Background())
	assert.Equal(t, 1, sum.Failed)
	tick, _ := h.market.Tick(crypto("ETH/USDT"))
	assert.Zero(t, tick.Price)
	assert.False(t, tick.Degraded)
}

func TestMarketState_OverlappingRefreshDropped(t *testing.T) {
	universe := []models.Instrument{crypto("BTC/USDT"), crypto("ETH/USDT")}
	h := newHarness(t, universe)
	h.feed.set("BTC/USDT", 1)
	h.feed.set("ETH/USDT", 2)
	h.feed.block = make(chan struct{})
	h.feed.entered = make(chan string, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ran := h.market.Refresh(context.Background())
		assert.True(t, ran)
	}()
	<-h.feed.entered

	for i := 0; i < 5; i++ {
		_, ran := h.market.Refresh(context.Background())
		assert.False(t, ran)
	}

	close(h.feed.block)
	wg.Wait()

	assert.Equal(t, 1, h.feed.callsFor("BTC/USDT"))
	assert.Equal(t, 1, h.feed.callsFor("ETH/USDT"))
}

func TestMarketState_SnapshotIsACopy(t *testing.T) {
	h := newHarness(t, []models.Instrument{crypto("BTC/USDT")})
	h.feed.set("BTC/USDT", 100)
	h.market.Refresh(context.Background())

	snap := h.market.Snapshot()
	snap[0].Price = -1

	tick, _ := h.market.Tick(crypto("BTC/USDT"))
	assert.Equal(t, 100.0, tick.Price)
}
