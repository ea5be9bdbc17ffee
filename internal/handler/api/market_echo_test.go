package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/repository"
	"MarketPulse/internal/service/events"
	"MarketPulse/internal/service/feed"
	"MarketPulse/internal/service/pricecache"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/database"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchFeed fails every call while down is set.
type switchFeed struct {
	domrepo.PriceFeed
	down atomic.Bool
}

func (f *switchFeed) FetchSeries(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error) {
	if f.down.Load() {
		return nil, domrepo.NewFeedError(domrepo.FailNetwork, "switch", inst.Symbol, errors.New("down"))
	}
	return f.PriceFeed.FetchSeries(ctx, inst, interval, limit)
}

func (f *switchFeed) FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	if f.down.Load() {
		return models.Snapshot{}, domrepo.NewFeedError(domrepo.FailNetwork, "switch", inst.Symbol, errors.New("down"))
	}
	return f.PriceFeed.FetchLatest(ctx, inst)
}

type testAPI struct {
	echo  *echo.Echo
	store *repository.GormStore
	bus   *events.Bus
	query *usecase.MarketQuery
	feed  *switchFeed
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	l := applogger.NewNop()
	m := metrics.Nop{}

	db, err := database.Open(ctx, database.Config{Driver: "sqlite", DSN: ":memory:"}, l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	store := repository.NewGormStore(db)
	require.NoError(t, store.Migrate(ctx))

	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mem.Close() })

	universe := []models.Instrument{
		{Symbol: "BTC/USDT", Segment: models.SegmentCrypto},
		{Symbol: "ETH/USDT", Segment: models.SegmentCrypto},
	}
	bus := events.NewBus(m, l)
	pc := pricecache.New(pricecache.Config{TTL: time.Minute}, mem, store, m, l)
	upstream := &switchFeed{PriceFeed: feed.NewSyntheticFeed(feed.SyntheticConfig{}, feed.NewSeededRand(1))}
	quotes := usecase.NewQuoteService(upstream, pc, "1h", 24, m, l)
	market := usecase.NewMarketState(usecase.MarketConfig{}, universe, quotes, bus, m, l)
	_, ran := market.Refresh(ctx)
	require.True(t, ran)

	sched := usecase.NewAlertScheduler(usecase.SchedulerConfig{}, store, quotes, domsvc.NewEvaluator(0.01), nil, mem, bus, m, l)
	query := usecase.NewMarketQuery(quotes, market, store, store, nil)

	checks := map[string]HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	handlers := xhttp.Handlers{NewMarketHandler(l, query, sched, checks), NewEventsHandler(bus, l)}
	srv := xhttp.NewServer(handlers, l, xhttp.WithMetricsPath(""), xhttp.WithCORS(false))
	return &testAPI{echo: srv.Echo(), store: store, bus: bus, query: query, feed: upstream}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (a *testAPI) do(t *testing.T, method, target string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestMarketHandler_Health(t *testing.T) {
	api := setupAPI(t)
	code, env := api.do(t, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"database":"ok"}`, string(env.Data))
}

func TestMarketHandler_Market(t *testing.T) {
	api := setupAPI(t)
	code, env := api.do(t, http.MethodGet, "/api/market")
	require.Equal(t, http.StatusOK, code)

	var list struct {
		Rows  []models.MarketTick `json:"rows"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
	for _, tick := range list.Rows {
		assert.Positive(t, tick.Price)
	}
}

func TestMarketHandler_Tick(t *testing.T) {
	api := setupAPI(t)

	code, env := api.do(t, http.MethodGet, "/api/market/tick?symbol=btc/usdt")
	require.Equal(t, http.StatusOK, code)
	var tick models.MarketTick
	require.NoError(t, json.Unmarshal(env.Data, &tick))
	assert.Equal(t, "BTC/USDT", tick.Instrument.Symbol)
	assert.InDelta(t, 42500, tick.Price, 2500)

	code, _ = api.do(t, http.MethodGet, "/api/market/tick")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodGet, "/api/market/tick?symbol=BTC/USDT&segment=bonds")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodGet, "/api/market/tick?symbol=DOGE/USDT")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMarketHandler_Price(t *testing.T) {
	api := setupAPI(t)

	code, env := api.do(t, http.MethodGet, "/api/market/price?symbol=BTC/USDT&segment=crypto")
	require.Equal(t, http.StatusOK, code)
	var res usecase.PriceResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "BTC/USDT", res.Instrument.Symbol)
	assert.Positive(t, res.Price)
	assert.False(t, res.Degraded)

	api.feed.down.Store(true)
	code, env = api.do(t, http.MethodGet, "/api/market/price?symbol=BTC/USDT")
	require.Equal(t, http.StatusOK, code)
	res = usecase.PriceResult{}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Degraded, "cached close served when the upstream is down")
	assert.Positive(t, res.Price)

	code, env = api.do(t, http.MethodGet, "/api/market/price?symbol=XRP/USDT")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UNAVAILABLE", errs[0].Code)
	assert.Equal(t, "network", errs[0].Params["upstream"])
	code, _ = api.do(t, http.MethodGet, "/api/market/price")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMarketHandler_Series(t *testing.T) {
	api := setupAPI(t)

	code, env := api.do(t, http.MethodGet, "/api/market/series?symbol=EUR/USD&segment=forex&interval=1d&limit=5")
	require.Equal(t, http.StatusOK, code)

	var res usecase.SeriesResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 5, res.Count)
	assert.Len(t, res.Series, 5)
	assert.False(t, res.Degraded)
	assert.Equal(t, models.SegmentForex, res.Instrument.Segment)
	require.NotNil(t, res.Stats)

	code, _ = api.do(t, http.MethodGet, "/api/market/series?symbol=BTC/USDT&limit=5000")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = api.do(t, http.MethodGet, "/api/market/series?symbol=BTC/USDT&interval=7m")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMarketHandler_TriggerAlert(t *testing.T) {
	api := setupAPI(t)
	a, err := api.store.CreateAlert(context.Background(), models.Alert{
		Owner:      "u1",
		Instrument: models.Instrument{Symbol: "BTC/USDT", Segment: models.SegmentCrypto},
		Kind:       models.AlertManual,
	})
	require.NoError(t, err)

	ch, cancel := api.bus.Subscribe(models.EventAlertTriggered)
	defer cancel()

	code, env := api.do(t, http.MethodPost, "/api/alerts/"+a.ID+"/trigger")
	require.Equal(t, http.StatusOK, code)
	var fired models.Alert
	require.NoError(t, json.Unmarshal(env.Data, &fired))
	assert.Equal(t, models.AlertTriggered, fired.Status)
	assert.NotNil(t, fired.TriggeredAt)

	select {
	case e := <-ch:
		assert.Equal(t, a.ID, e.Alert.ID)
	case <-time.After(time.Second):
		t.Fatal("no alert.triggered event")
	}

	code, _ = api.do(t, http.MethodPost, "/api/alerts/"+a.ID+"/trigger")
	assert.Equal(t, http.StatusConflict, code)
	code, _ = api.do(t, http.MethodPost, "/api/alerts/nope/trigger")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = api.do(t, http.MethodGet, "/api/alerts/triggered?limit=10")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), a.ID)
}

func TestMarketHandler_SignalsAndHistory(t *testing.T) {
	api := setupAPI(t)
	sig := models.Signal{
		ID:            "s1",
		Instrument:    models.Instrument{Symbol: "ETH/USDT", Segment: models.SegmentCrypto},
		ConditionType: "RSI Oversold",
		EntryPrice:    2200,
		StopLoss:      2100,
		TargetPrice:   2400,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, api.store.AppendSignal(context.Background(), sig))

	code, env := api.do(t, http.MethodGet, "/api/signals")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"s1"`)

	code, _ = api.do(t, http.MethodGet, "/api/signals?limit=0")
	assert.Equal(t, http.StatusOK, code, "zero falls back to the default limit")

	code, _ = api.do(t, http.MethodGet, "/api/events/history")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = api.do(t, http.MethodGet, "/api/events/history?type=bogus")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestParseTypes(t *testing.T) {
	assert.Nil(t, parseTypes(""))
	assert.Equal(t,
		[]models.EventType{models.EventAlertTriggered, models.EventSignalCreated},
		parseTypes(" alert.triggered , bogus,signal.created"))
	assert.True(t, strings.HasPrefix(string(models.EventMarketRefreshed), "market."))
}
