package di

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/handler/api"
	mid "MarketPulse/internal/middleware"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/events"
	"MarketPulse/internal/service/feed"
	"MarketPulse/internal/service/notify"
	"MarketPulse/internal/service/pricecache"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/breaker"
	"MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/database"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/http/middleware"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"

	"gorm.io/gorm"
)

const schemaTimeout = 10 * time.Second

func kafkaEnabled(cfg *config.Config) bool {
	return cfg.Events.Sink == usecase.BackendKafka
}

// ClickHouse backs the history endpoint either as the direct sink or as the
// target of the Kafka history consumer.
func clickHouseEnabled(cfg *config.Config) bool {
	return cfg.Events.Sink == usecase.BackendClickHouse || (kafkaEnabled(cfg) && cfg.Events.History)
}

// ProvideLogger builds the app logger. With Kafka in use, warn and error
// records are aggregated and shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("env", cfg.Environment))
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no component
// talks to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !kafkaEnabled(cfg) {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideDatabase opens the persistent store, waiting for it to come up.
func ProvideDatabase(cfg *config.Config, l *applogger.Logger) (*gorm.DB, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectWait+schemaTimeout)
	defer cancel()

	db, err := database.Open(ctx, database.Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		ConnectWait: cfg.Database.ConnectWait,
	}, l)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = database.Close(db) }, nil
}

func ProvideStore(cfg *config.Config, db *gorm.DB) (*internalrepo.GormStore, error) {
	store := internalrepo.NewGormStore(db)
	if !cfg.Database.AutoMigrate {
		return store, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// ProvideRedis connects to Redis when it backs the durable cache tier;
// otherwise it returns nil.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if cfg.Cache.Durable != "redis" {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisDialTimeout(cfg.Redis.Timeout),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, err
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideMemoryCache(cfg *config.Config) (*cache.MemoryCache, func()) {
	mc := cache.NewMemoryCache(
		cache.WithMemoryMaxSize(cfg.Cache.MaxEntries),
		cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	)
	return mc, func() { _ = mc.Close() }
}

// ProvideLocker hands out per-alert locks. Redis locks let several engine
// processes share one store; without Redis the locks are process-local.
func ProvideLocker(rc *cache.RedisCache) (cache.Locker, func()) {
	if rc != nil {
		return rc, func() {}
	}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
	return mc, func() { _ = mc.Close() }
}

func ProvideDurableCache(cfg *config.Config, store *internalrepo.GormStore, rc *cache.RedisCache) domrepo.CacheStore {
	switch cfg.Cache.Durable {
	case "redis":
		return internalrepo.NewRedisCacheStore(rc, cfg.Cache.Retention)
	case "database":
		return store
	default:
		return nil
	}
}

// ProvideRand seeds the shared random source. A zero seed means a
// time-based one.
func ProvideRand(cfg *config.Config) feed.Rand {
	seed := cfg.Feed.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return feed.NewSeededRand(seed)
}

// ProvidePriceFeed builds the upstream. The live feed only serves crypto;
// other segments stay on the synthetic walk.
func ProvidePriceFeed(cfg *config.Config, rng feed.Rand, m domrepo.Metrics, l *applogger.Logger) domrepo.PriceFeed {
	synthetic := feed.NewSyntheticFeed(feed.SyntheticConfig{}, rng)
	if cfg.Feed.Type != "live" {
		return feed.NewInstrumented(synthetic, m)
	}

	br := breaker.New(breaker.Config{
		Name:             "binance",
		FailureThreshold: cfg.Feed.Breaker.Threshold,
		Cooldown:         cfg.Feed.Breaker.Cooldown,
	}, l)
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Feed.Timeout),
		xhttp.WithUserAgent("marketpulse/1.0"),
	)
	live := feed.NewBinanceFeed(feed.BinanceConfig{
		BaseURL:    cfg.Feed.BaseURL,
		Timeout:    cfg.Feed.Timeout,
		RatePerSec: cfg.Feed.RatePerSec,
		Burst:      cfg.Feed.Burst,
	}, client, br, l)

	router := feed.NewRouter(synthetic).Route(models.SegmentCrypto, live)
	return feed.NewInstrumented(router, m)
}

func ProvidePriceCache(cfg *config.Config, mem *cache.MemoryCache, durable domrepo.CacheStore, m domrepo.Metrics, l *applogger.Logger) *pricecache.PriceCache {
	return pricecache.New(pricecache.Config{
		TTL:       cfg.Cache.TTL,
		Retention: cfg.Cache.Retention,
	}, mem, durable, m, l)
}

func ProvideQuoteService(cfg *config.Config, f domrepo.PriceFeed, pc *pricecache.PriceCache, m domrepo.Metrics, l *applogger.Logger) *usecase.QuoteService {
	return usecase.NewQuoteService(f, pc, models.NormalizeInterval(cfg.Feed.Interval), cfg.Feed.Limit, m, l,
		usecase.WithFetchTimeout(cfg.Feed.Timeout))
}

// ProvideClickHouseClient connects and creates the database, or returns nil
// when no component writes event history.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !clickHouseEnabled(cfg) {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+cfg.ClickHouse.Database); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideEventStorage returns the ClickHouse history table, or nil.
func ProvideEventStorage(cfg *config.Config, client *pkgch.Client) (domrepo.EventStorage, error) {
	if client == nil {
		return nil, nil
	}
	storage := internalrepo.NewClickHouseEventStorage(client.DB(), cfg.ClickHouse.Database+".engine_events")
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := storage.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return storage, nil
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

func ProvideEventProcessor(cfg *config.Config, pub domrepo.EventPublisher, storage domrepo.EventStorage, m domrepo.Metrics) (*usecase.EventProcessor, error) {
	return usecase.NewEventProcessor(pub, storage, m, cfg.Events.Sink)
}

// ProvideEventPipeline puts the retry buffer in front of the sink, or returns
// nil when events stay in process.
func ProvideEventPipeline(cfg *config.Config, proc *usecase.EventProcessor, m domrepo.Metrics) *mid.EventPipeline {
	if proc.Backend() == usecase.BackendNone {
		return nil
	}
	return mid.NewEventPipeline(proc, m,
		mid.WithBufferSize(cfg.Events.BufferSize),
		mid.WithMaxBackoff(cfg.Events.FlushInterval),
	)
}

func ProvideBus(cfg *config.Config, pipe *mid.EventPipeline, m domrepo.Metrics, l *applogger.Logger) *events.Bus {
	opts := []events.Option{events.WithSubscriberBuffer(cfg.Events.SubscriberBuffer)}
	if pipe != nil {
		opts = append(opts, events.WithSink(pipe))
	}
	return events.NewBus(m, l, opts...)
}

// ProvideNotifier returns the Telegram notifier, or nil when it is disabled.
// A failed getMe is logged and does not stop startup.
func ProvideNotifier(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) domrepo.Notifier {
	tc := cfg.Notify.Telegram
	if !tc.Enabled {
		return nil
	}
	tg := notify.NewTelegram(notify.TelegramConfig{
		BotToken:  tc.BotToken,
		BaseURL:   tc.BaseURL,
		Timeout:   tc.Timeout,
		ParseMode: tc.ParseMode,
	}, nil, m, l)

	ctx, cancel := context.WithTimeout(context.Background(), tc.Timeout)
	defer cancel()
	if err := tg.Verify(ctx); err != nil {
		l.Warn("telegram bot verification failed", applogger.Error(err))
	}
	return tg
}

func ProvideEvaluator(cfg *config.Config) domsvc.Evaluator {
	return domsvc.NewEvaluator(cfg.Alerts.CrossEpsilon)
}

func ProvideMarketState(cfg *config.Config, quotes *usecase.QuoteService, emitter usecase.Emitter, m domrepo.Metrics, l *applogger.Logger) (*usecase.MarketState, error) {
	universe, err := models.ParseUniverse(cfg.Market.Symbols)
	if err != nil {
		return nil, fmt.Errorf("market.symbols: %w", err)
	}
	return usecase.NewMarketState(usecase.MarketConfig{
		RefreshTimeout: cfg.Market.RefreshTimeout,
		Concurrency:    cfg.Market.Concurrency,
	}, universe, quotes, emitter, m, l), nil
}

func ProvideAlertScheduler(
	cfg *config.Config,
	store domrepo.AlertStore,
	prices usecase.PriceSource,
	eval domsvc.Evaluator,
	notifier domrepo.Notifier,
	locker cache.Locker,
	emitter usecase.Emitter,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.AlertScheduler {
	return usecase.NewAlertScheduler(usecase.SchedulerConfig{
		CycleTimeout: cfg.Alerts.CycleTimeout,
		Concurrency:  cfg.Alerts.Concurrency,
		LockTTL:      cfg.Alerts.LockTTL,
	}, store, prices, eval, notifier, locker, emitter, m, l)
}

// ProvideSignalGenerator returns nil when signals are disabled.
func ProvideSignalGenerator(
	cfg *config.Config,
	ticks usecase.TickSource,
	store domrepo.SignalStore,
	emitter usecase.Emitter,
	rng feed.Rand,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.SignalGenerator {
	if !cfg.Signals.Enabled {
		return nil
	}
	return usecase.NewSignalGenerator(usecase.SignalConfig{
		Probability: cfg.Signals.Probability,
	}, ticks, store, emitter, rng, m, l)
}

func ProvideEngine(
	cfg *config.Config,
	market *usecase.MarketState,
	alerts *usecase.AlertScheduler,
	signals *usecase.SignalGenerator,
	pipe *mid.EventPipeline,
	store *internalrepo.GormStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Engine {
	ecfg := usecase.EngineConfig{
		RefreshInterval: cfg.Market.RefreshInterval,
		AlertInterval:   cfg.Alerts.PollInterval,
		PruneInterval:   cfg.Cache.CleanupInterval,
		Retention:       cfg.Cache.Retention,
	}
	if cfg.Signals.Enabled {
		ecfg.SignalInterval = cfg.Signals.Interval
	}
	e := usecase.NewEngine(ecfg, market, alerts, signals, pipe, m, l)
	if cfg.Cache.Durable == "database" {
		e.WithPruner(store)
	}
	return e
}

func ProvideMarketQuery(
	quotes *usecase.QuoteService,
	market *usecase.MarketState,
	signals domrepo.SignalStore,
	alerts domrepo.AlertStore,
	history domrepo.EventStorage,
) *usecase.MarketQuery {
	return usecase.NewMarketQuery(quotes, market, signals, alerts, history)
}

// ProvideHealthChecks lists a probe per configured backend.
func ProvideHealthChecks(db *gorm.DB, rc *cache.RedisCache, ch *pkgch.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return checks
}

func ProvideHTTPHandler(
	l *applogger.Logger,
	query *usecase.MarketQuery,
	alerts *usecase.AlertScheduler,
	bus *events.Bus,
	checks map[string]api.HealthCheck,
) xhttp.Handler {
	return xhttp.Handlers{
		api.NewMarketHandler(l, query, alerts, checks),
		api.NewEventsHandler(bus, l),
	}
}

// ProvideHTTPServer returns nil when the read API is disabled.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithMiddleware(middleware.RateLimit(ratelimit.New(), cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)),
	)
}

// ProvideHistoryHandler consumes the event topic into ClickHouse, or
// returns nil when history is not fed from Kafka.
func ProvideHistoryHandler(cfg *config.Config, storage domrepo.EventStorage, m domrepo.Metrics) *usecase.EventHistoryHandler {
	if !kafkaEnabled(cfg) || !cfg.Events.History || storage == nil {
		return nil
	}
	return usecase.NewEventHistoryHandler(cfg.Kafka.Topic, storage, m)
}

func ProvideKafkaConsumer(cfg *config.Config, h *usecase.EventHistoryHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if h == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	engine *usecase.Engine,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	history *usecase.EventHistoryHandler,
	proc *usecase.EventProcessor,
	l *applogger.Logger,
) *server.App {
	var h pkgkafka.MessageHandler
	if history != nil {
		h = history
	}
	app := server.New(engine, srv, consumer, h, l, cfg.Server.ShutdownTimeout)
	app.OnClose("event processor", func() error {
		proc.Close()
		return nil
	})
	return app
}
