package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/breaker"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
	xutil "MarketPulse/pkg/util"

	"golang.org/x/time/rate"
)

const binanceName = "binance"

// binanceInvalidSymbol is the API error code for an unknown ticker.
const binanceInvalidSymbol = -1121

var errMalformed = errors.New("malformed upstream response")

type BinanceConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// BinanceFeed is the live REST feed for crypto pairs.
type BinanceFeed struct {
	cfg     BinanceConfig
	client  *xhttp.Client
	limiter *rate.Limiter
	breaker *breaker.Breaker
	logger  *applogger.Logger
}

func NewBinanceFeed(cfg BinanceConfig, client *xhttp.Client, br *breaker.Breaker, l *applogger.Logger) *BinanceFeed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout))
	}
	return &BinanceFeed{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		breaker: br,
		logger:  l.With(applogger.Component("feed.binance")),
	}
}

func (f *BinanceFeed) Name() string { return binanceName }

// FetchSeries calls GET /api/v3/klines.
func (f *BinanceFeed) FetchSeries(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error) {
	symbol := VenueSymbol(inst)
	if limit <= 0 {
		limit = 1
	}

	var rows [][]json.RawMessage
	err := f.call(ctx, symbol, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    f.cfg.BaseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {string(interval)},
			"limit":    {strconv.Itoa(limit)},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domrepo.NewFeedError(domrepo.FailNetwork, binanceName, symbol, fmt.Errorf("%w: empty series", errMalformed))
	}

	series := make(models.Series, 0, len(rows))
	for i, row := range rows {
		snap, err := parseKline(row)
		if err != nil {
			return nil, domrepo.NewFeedError(domrepo.FailNetwork, binanceName, symbol, fmt.Errorf("row %d: %w", i, err))
		}
		series = append(series, snap)
	}
	return series, nil
}

// FetchLatest calls GET /api/v3/ticker/price.
func (f *BinanceFeed) FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	symbol := VenueSymbol(inst)

	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	err := f.call(ctx, symbol, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         f.cfg.BaseURL + "/api/v3/ticker/price",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &body)
	if err != nil {
		return models.Snapshot{}, err
	}

	price, err := xutil.ParseDecimalString(body.Price)
	if err != nil || body.Symbol == "" {
		return models.Snapshot{}, domrepo.NewFeedError(domrepo.FailNetwork, binanceName, symbol,
			fmt.Errorf("%w: ticker price missing", errMalformed))
	}

	return models.Snapshot{
		Time:  time.Now().UTC(),
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}, nil
}

// call applies the rate limiter, breaker and timeout around one request and
// classifies any failure.
func (f *BinanceFeed) call(ctx context.Context, symbol string, req *xhttp.RequestOptions, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return domrepo.NewFeedError(domrepo.FailRateLimited, binanceName, symbol, err)
	}

	do := func() error { return f.client.SendAndParse(ctx, req, dest) }
	var err error
	if f.breaker != nil {
		err = f.breaker.Do(do, countsAgainstUpstream)
	} else {
		err = do()
	}
	if err == nil {
		return nil
	}

	fe := classify(symbol, err)
	f.logger.Debug("upstream call failed",
		applogger.String("symbol", symbol),
		applogger.String("kind", string(fe.Kind)),
		applogger.Error(err),
	)
	return fe
}

func classify(symbol string, err error) *domrepo.FeedError {
	if errors.Is(err, breaker.ErrOpen) || xhttp.IsTimeout(err) {
		return domrepo.NewFeedError(domrepo.FailNetwork, binanceName, symbol, err)
	}
	se, ok := xhttp.AsStatusError(err)
	if !ok {
		return domrepo.NewFeedError(domrepo.FailNetwork, binanceName, symbol, err)
	}

	switch se.StatusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return domrepo.NewFeedError(domrepo.FailRateLimited, binanceName, symbol, err)
	case http.StatusBadRequest:
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(se.Body, &apiErr) == nil && apiErr.Code == binanceInvalidSymbol {
			return domrepo.NewFeedError(domrepo.FailInvalidSymbol, binanceName, symbol, err)
		}
	}
	return domrepo.NewFeedError(domrepo.FailNetwork, binanceName, symbol, err)
}

// countsAgainstUpstream keeps caller mistakes from tripping the breaker.
func countsAgainstUpstream(err error) bool {
	se, ok := xhttp.AsStatusError(err)
	if !ok {
		return true
	}
	return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusTeapot
}

// parseKline reads [openTime, open, high, low, close, volume, ...].
func parseKline(row []json.RawMessage) (models.Snapshot, error) {
	if len(row) < 6 {
		return models.Snapshot{}, fmt.Errorf("%w: kline has %d fields", errMalformed, len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: open time: %v", errMalformed, err)
	}

	var vals [5]float64
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return models.Snapshot{}, fmt.Errorf("%w: field %d: %v", errMalformed, i+1, err)
		}
		v, err := xutil.ParseDecimalString(s)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("%w: field %d: %v", errMalformed, i+1, err)
		}
		vals[i] = v
	}

	volume := vals[4]
	return models.Snapshot{
		Time:   time.UnixMilli(openTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: &volume,
	}, nil
}
