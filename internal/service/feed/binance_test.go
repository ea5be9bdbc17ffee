package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/breaker"
	applogger "MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btc = models.Instrument{Symbol: "BTC/USDT", Segment: models.SegmentCrypto}

func newTestBinance(t *testing.T, h http.HandlerFunc, timeout time.Duration) *BinanceFeed {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewBinanceFeed(BinanceConfig{BaseURL: srv.URL, Timeout: timeout, RatePerSec: 1000, Burst: 100}, nil, nil, applogger.NewNop())
}

func TestBinanceFeed_FetchSeries(t *testing.T) {
	t.Parallel()

	feed := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"42000.10","42100.00","41900.00","42050.50","12.5",1700003599999,"0",1,"0","0","0"],
			[1700003600000,"42050.50","42200.00","42000.00","42150.00","8.25",1700007199999,"0",1,"0","0","0"]
		]`))
	}, 5*time.Second)

	series, err := feed.FetchSeries(context.Background(), btc, "1h", 2)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), series[0].Time)
	assert.Equal(t, 42000.10, series[0].Open)
	assert.Equal(t, 42050.50, series[0].Close)
	require.NotNil(t, series[1].Volume)
	assert.Equal(t, 8.25, *series[1].Volume)

	last, ok := series.Latest()
	require.True(t, ok)
	assert.Equal(t, 42150.00, last.Close)
}

func TestBinanceFeed_FetchSeriesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		kind    domrepo.FeedFailure
	}{
		{"missing fields", http.StatusOK, `[[1700000000000,"1","2"]]`, domrepo.ErrUpstreamUnavailable, domrepo.FailNetwork},
		{"non numeric", http.StatusOK, `[[1700000000000,"x","2","3","4","5"]]`, domrepo.ErrUpstreamUnavailable, domrepo.FailNetwork},
		{"empty array", http.StatusOK, `[]`, domrepo.ErrUpstreamUnavailable, domrepo.FailNetwork},
		{"not json", http.StatusOK, `<html>`, domrepo.ErrUpstreamUnavailable, domrepo.FailNetwork},
		{"server error", http.StatusBadGateway, `oops`, domrepo.ErrUpstreamUnavailable, domrepo.FailNetwork},
		{"rate limited", http.StatusTooManyRequests, `{"code":-1003}`, domrepo.ErrRateLimited, domrepo.FailRateLimited},
		{"ip banned", http.StatusTeapot, `{"code":-1003}`, domrepo.ErrRateLimited, domrepo.FailRateLimited},
		{"invalid symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, domrepo.ErrInvalidSymbol, domrepo.FailInvalidSymbol},
		{"other bad request", http.StatusBadRequest, `{"code":-1100}`, domrepo.ErrUpstreamUnavailable, domrepo.FailNetwork},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			feed := newTestBinance(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 5*time.Second)

			series, err := feed.FetchSeries(context.Background(), btc, "1h", 10)
			require.Error(t, err)
			assert.Nil(t, series)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.kind, domrepo.FailureKind(err))
		})
	}
}

func TestBinanceFeed_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	feed := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)

	start := time.Now()
	_, err := feed.FetchLatest(context.Background(), btc)
	require.Error(t, err)
	assert.ErrorIs(t, err, domrepo.ErrUpstreamUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBinanceFeed_FetchLatest(t *testing.T) {
	t.Parallel()

	feed := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"2234.56000000"}`))
	}, 5*time.Second)

	snap, err := feed.FetchLatest(context.Background(), models.Instrument{Symbol: "ETH/USDT", Segment: models.SegmentCrypto})
	require.NoError(t, err)
	assert.Equal(t, 2234.56, snap.Close)
}

func TestBinanceFeed_FetchLatestMissingPrice(t *testing.T) {
	t.Parallel()

	feed := newTestBinance(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT"}`))
	}, 5*time.Second)

	_, err := feed.FetchLatest(context.Background(), btc)
	assert.ErrorIs(t, err, domrepo.ErrUpstreamUnavailable)
}

func TestBinanceFeed_BreakerShortCircuits(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	br := breaker.New(breaker.Config{Name: "binance", FailureThreshold: 2, Cooldown: time.Hour}, nil)
	feed := NewBinanceFeed(BinanceConfig{BaseURL: srv.URL, Timeout: time.Second, RatePerSec: 1000, Burst: 100}, nil, br, applogger.NewNop())

	for i := 0; i < 5; i++ {
		_, err := feed.FetchLatest(context.Background(), btc)
		assert.ErrorIs(t, err, domrepo.ErrUpstreamUnavailable)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, breaker.StateOpen, br.State())
}

func TestVenueSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		inst models.Instrument
		want string
	}{
		{models.Instrument{Symbol: "BTC/USDT", Segment: models.SegmentCrypto}, "BTCUSDT"},
		{models.Instrument{Symbol: "eur/usd", Segment: models.SegmentForex}, "EURUSD"},
		{models.Instrument{Symbol: "RELIANCE", Segment: models.SegmentEquity, Venue: "NSE"}, "RELIANCE.NSE"},
		{models.Instrument{Symbol: "GOLD", Segment: models.SegmentCommodity, Venue: "mcx"}, "GOLD.MCX"},
		{models.Instrument{Symbol: "AAPL", Segment: models.SegmentEquity}, "AAPL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VenueSymbol(tt.inst))
		// pure: same input, same output
		assert.Equal(t, VenueSymbol(tt.inst), VenueSymbol(tt.inst))
	}
}
