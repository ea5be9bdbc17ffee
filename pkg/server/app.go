package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

// Closer is a named resource released on shutdown, in reverse order of
// registration.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	engine          *usecase.Engine
	httpServer      *xhttp.Server
	consumer        *pkgkafka.Consumer
	historyHandler  pkgkafka.MessageHandler
	closers         []Closer
	logger          *applogger.Logger
	shutdownTimeout time.Duration
}

// New creates an App. httpServer, consumer and historyHandler may be nil.
func New(
	engine *usecase.Engine,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	historyHandler pkgkafka.MessageHandler,
	l *applogger.Logger,
	shutdownTimeout time.Duration,
) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{
		engine:          engine,
		httpServer:      httpServer,
		consumer:        consumer,
		historyHandler:  historyHandler,
		logger:          l.With(applogger.Component("app")),
		shutdownTimeout: shutdownTimeout,
	}
}

// OnClose registers a resource to release after the engine has stopped.
func (a *App) OnClose(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, Closer{Name: name, Close: fn})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts everything and blocks until ctx ends or the HTTP server
// fails to listen.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.engine.Start(runCtx); err != nil {
		a.logger.Error("engine start error", applogger.Error(err))
		return a.shutdown(err)
	}
	a.logger.Info("engine started")

	if a.consumer != nil && a.historyHandler != nil {
		a.consumer.RegisterHandler(a.historyHandler)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer error", applogger.Error(err))
			return a.shutdown(err)
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.historyHandler.Topic()))
	}

	var listenErr <-chan error
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			return a.shutdown(err)
		}
		listenErr = a.httpServer.Errors()
	}

	var cause error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-listenErr:
		cause = err
	}
	return a.shutdown(cause)
}

// shutdown stops intake first, then the engine, then infrastructure.
func (a *App) shutdown(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down...")
	errs := []error{cause}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.engine.Shutdown(ctx); err != nil {
		a.logger.Warn("engine stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
