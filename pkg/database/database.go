package database

import (
	"context"
	"fmt"
	"time"

	applogger "MarketPulse/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Driver      string // postgres or sqlite
	DSN         string
	ConnectWait time.Duration // keep retrying the first connection this long
	RetryEvery  time.Duration
	MaxOpen     int
	MaxIdle     int
}

// Open connects with retries until ConnectWait elapses, so the engine can
// start before its database container is ready.
func Open(ctx context.Context, cfg Config, l *applogger.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 3 * time.Second
	}

	deadline := time.Now().Add(cfg.ConnectWait)
	for attempt := 1; ; attempt++ {
		db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
		if err == nil {
			err = ping(ctx, db)
		}
		if err == nil {
			configurePool(db, cfg)
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("database connect after %d attempts: %w", attempt, err)
		}
		l.Warn("database connect failed, retrying",
			applogger.String("driver", cfg.Driver),
			applogger.Int("attempt", attempt),
			applogger.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryEvery):
		}
	}
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database: postgres requires a dsn")
		}
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:marketpulse.db?_busy_timeout=5000"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("database: unknown driver %q", cfg.Driver)
	}
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func configurePool(db *gorm.DB, cfg Config) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if cfg.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.Driver == "sqlite" || cfg.Driver == "" {
		// one writer at a time; avoids "database is locked" under load
		sqlDB.SetMaxOpenConns(1)
	}
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
