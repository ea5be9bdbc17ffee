package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       struct {
			Capacity     int     `yaml:"capacity" default:"20"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Feed struct {
		Type       string        `yaml:"type" default:"synthetic" validate:"oneof=synthetic live"`
		BaseURL    string        `yaml:"base_url" default:"https://api.binance.com"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		Interval   string        `yaml:"interval" default:"1h"`
		Limit      int           `yaml:"limit" default:"24" validate:"min=1,max=1000"`
		RatePerSec float64       `yaml:"rate_per_sec" default:"10"`
		Burst      int           `yaml:"burst" default:"20"`
		Breaker    struct {
			Threshold int           `yaml:"threshold" default:"5"`
			Cooldown  time.Duration `yaml:"cooldown" default:"30s"`
		} `yaml:"breaker"`
		Seed int64 `yaml:"seed"`
	} `yaml:"feed"`

	Cache struct {
		TTL             time.Duration `yaml:"ttl" default:"60s"`
		Retention       time.Duration `yaml:"retention" default:"24h"`
		MaxEntries      int           `yaml:"max_entries" default:"10000"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
		Durable         string        `yaml:"durable" default:"database" validate:"oneof=redis database none"`
	} `yaml:"cache"`

	Redis struct {
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		KeyPrefix    string        `yaml:"key_prefix" default:"marketpulse"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
		PoolSize     int           `yaml:"pool_size" default:"10" validate:"min=1"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"min=0"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
	} `yaml:"redis"`

	Database struct {
		Driver      string        `yaml:"driver" default:"postgres" validate:"oneof=postgres sqlite"`
		DSN         string        `yaml:"dsn"`
		AutoMigrate bool          `yaml:"auto_migrate" default:"true"`
		ConnectWait time.Duration `yaml:"connect_wait" default:"30s"`
	} `yaml:"database"`

	Market struct {
		RefreshInterval time.Duration `yaml:"refresh_interval" default:"3s"`
		RefreshTimeout  time.Duration `yaml:"refresh_timeout" default:"20s"`
		Concurrency     int           `yaml:"concurrency" default:"8" validate:"min=1"`
		Symbols         []string      `yaml:"symbols"`
	} `yaml:"market"`

	Alerts struct {
		PollInterval time.Duration `yaml:"poll_interval" default:"30s"`
		CycleTimeout time.Duration `yaml:"cycle_timeout" default:"25s"`
		Concurrency  int           `yaml:"concurrency" default:"8" validate:"min=1"`
		CrossEpsilon float64       `yaml:"cross_epsilon" default:"0.01" validate:"gt=0"`
		LockTTL      time.Duration `yaml:"lock_ttl" default:"30s"`
	} `yaml:"alerts"`

	Signals struct {
		Enabled     bool          `yaml:"enabled" default:"true"`
		Interval    time.Duration `yaml:"interval" default:"3s"`
		Probability float64       `yaml:"probability" default:"0.15" validate:"gte=0,lte=1"`
	} `yaml:"signals"`

	Notify struct {
		Telegram struct {
			Enabled   bool          `yaml:"enabled"`
			BotToken  string        `yaml:"bot_token"`
			BaseURL   string        `yaml:"base_url" default:"https://api.telegram.org"`
			Timeout   time.Duration `yaml:"timeout" default:"10s"`
			ParseMode string        `yaml:"parse_mode" default:"Markdown"`
		} `yaml:"telegram"`
	} `yaml:"notify"`

	Events struct {
		Sink             string        `yaml:"sink" default:"none" validate:"oneof=none kafka clickhouse"`
		BufferSize       int           `yaml:"buffer_size" default:"1000"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"5s"`
		SubscriberBuffer int           `yaml:"subscriber_buffer" default:"64"`
		History          bool          `yaml:"history"`
	} `yaml:"events"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"marketpulse.events"`
		LogTopic     string   `yaml:"log_topic" default:"marketpulse.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"marketpulse-history"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"marketpulse.events.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file over the struct defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes over the struct defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and applies MARKETPULSE_* overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"MARKETPULSE_ENV":             &c.Environment,
		"MARKETPULSE_LOG_LEVEL":       &c.Log.Level,
		"MARKETPULSE_FEED_TYPE":       &c.Feed.Type,
		"MARKETPULSE_FEED_BASE_URL":   &c.Feed.BaseURL,
		"MARKETPULSE_CACHE_DURABLE":   &c.Cache.Durable,
		"MARKETPULSE_REDIS_ADDR":      &c.Redis.Addr,
		"MARKETPULSE_REDIS_PASSWORD":  &c.Redis.Password,
		"MARKETPULSE_DB_DRIVER":       &c.Database.Driver,
		"MARKETPULSE_DB_DSN":          &c.Database.DSN,
		"MARKETPULSE_TELEGRAM_TOKEN":  &c.Notify.Telegram.BotToken,
		"MARKETPULSE_EVENTS_SINK":     &c.Events.Sink,
		"MARKETPULSE_KAFKA_TOPIC":     &c.Kafka.Topic,
		"MARKETPULSE_CLICKHOUSE_HOST": &c.ClickHouse.Host,
		"MARKETPULSE_CLICKHOUSE_PASS": &c.ClickHouse.Password,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("MARKETPULSE_KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("MARKETPULSE_SYMBOLS"); ok && v != "" {
		c.Market.Symbols = splitList(v)
	}

	durations := map[string]*time.Duration{
		"MARKETPULSE_FEED_TIMEOUT":        &c.Feed.Timeout,
		"MARKETPULSE_CACHE_TTL":           &c.Cache.TTL,
		"MARKETPULSE_ALERT_POLL_INTERVAL": &c.Alerts.PollInterval,
		"MARKETPULSE_MARKET_REFRESH":      &c.Market.RefreshInterval,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("MARKETPULSE_SIGNAL_PROBABILITY"); ok && v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MARKETPULSE_SIGNAL_PROBABILITY: %w", err)
		}
		c.Signals.Probability = p
	}
	if v, ok := lookup("MARKETPULSE_TELEGRAM_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MARKETPULSE_TELEGRAM_ENABLED: %w", err)
		}
		c.Notify.Telegram.Enabled = b
	}

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New()

// Validate runs tag validation and the cross-field rules tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.Retention < c.Cache.TTL {
		return fmt.Errorf("cache.retention (%s) must not be shorter than cache.ttl (%s)", c.Cache.Retention, c.Cache.TTL)
	}
	if c.Feed.Timeout <= 0 || c.Feed.Timeout > 30*time.Second {
		return fmt.Errorf("feed.timeout must be in (0, 30s], got %s", c.Feed.Timeout)
	}
	if c.Alerts.PollInterval <= 0 || c.Market.RefreshInterval <= 0 {
		return fmt.Errorf("alerts.poll_interval and market.refresh_interval must be positive")
	}
	if c.Signals.Enabled && c.Signals.Interval <= 0 {
		return fmt.Errorf("signals.interval must be positive when signals are enabled")
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres driver")
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.BotToken == "" {
		return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
	}
	if c.Events.Sink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when events.sink is kafka")
	}
	return nil
}
