//go:build wireinject
// +build wireinject

package di

import (
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/repository"
	"MarketPulse/internal/service/events"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

var storeSet = wire.NewSet(
	ProvideDatabase,
	ProvideStore,
	wire.Bind(new(domrepo.AlertStore), new(*repository.GormStore)),
	wire.Bind(new(domrepo.SignalStore), new(*repository.GormStore)),
)

var cacheSet = wire.NewSet(
	ProvideRedis,
	ProvideMemoryCache,
	ProvideLocker,
	ProvideDurableCache,
	ProvidePriceCache,
)

var eventSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideClickHouseClient,
	ProvideEventStorage,
	ProvideEventPublisher,
	ProvideEventProcessor,
	ProvideEventPipeline,
	ProvideBus,
	ProvideHistoryHandler,
	ProvideKafkaConsumer,
	wire.Bind(new(usecase.Emitter), new(*events.Bus)),
)

var engineSet = wire.NewSet(
	ProvideRand,
	ProvidePriceFeed,
	ProvideQuoteService,
	ProvideNotifier,
	ProvideEvaluator,
	ProvideMarketState,
	ProvideAlertScheduler,
	ProvideSignalGenerator,
	ProvideEngine,
	wire.Bind(new(usecase.PriceSource), new(*usecase.QuoteService)),
	wire.Bind(new(usecase.TickSource), new(*usecase.MarketState)),
)

var apiSet = wire.NewSet(
	ProvideMarketQuery,
	ProvideHealthChecks,
	ProvideHTTPHandler,
	ProvideHTTPServer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		storeSet,
		cacheSet,
		eventSet,
		engineSet,
		apiSet,
		ProvideApp,
	)
	return nil, nil, nil
}
