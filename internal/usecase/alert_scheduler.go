package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Alert outcomes reported to metrics.
const (
	OutcomeNotTriggered = "not_triggered"
	OutcomeTriggered    = "triggered"
	OutcomeNoPrice      = "no_price"
	OutcomeLocked       = "locked"
	OutcomeConflict     = "conflict"
	OutcomeFailed       = "failed"
)

// PriceSource resolves the price an alert is evaluated against.
type PriceSource interface {
	Latest(ctx context.Context, inst models.Instrument) (Quote, error)
}

type SchedulerConfig struct {
	CycleTimeout time.Duration
	Concurrency  int
	LockTTL      time.Duration
	Now          func() time.Time
}

// CycleReport counts what one evaluation cycle did.
type CycleReport struct {
	Evaluated int           `json:"evaluated"`
	Triggered int           `json:"triggered"`
	Skipped   int           `json:"skipped"`
	Conflicts int           `json:"conflicts"`
	Failed    int           `json:"failed"`
	Took      time.Duration `json:"took"`
}

// AlertScheduler evaluates active alerts against current prices. The store
// transition decides whether an alert fires; dispatch only follows a
// committed transition.
type AlertScheduler struct {
	cfg      SchedulerConfig
	store    domrepo.AlertStore
	prices   PriceSource
	eval     domsvc.Evaluator
	notifier domrepo.Notifier
	locker   cache.Locker
	emitter  Emitter
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	running  atomic.Bool
}

func NewAlertScheduler(
	cfg SchedulerConfig,
	store domrepo.AlertStore,
	prices PriceSource,
	eval domsvc.Evaluator,
	notifier domrepo.Notifier,
	locker cache.Locker,
	emitter Emitter,
	m domrepo.Metrics,
	l *applogger.Logger,
) *AlertScheduler {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 25 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AlertScheduler{
		cfg:      cfg,
		store:    store,
		prices:   prices,
		eval:     eval,
		notifier: notifier,
		locker:   locker,
		emitter:  emitter,
		metrics:  m,
		logger:   l.With(applogger.Component("alerts")),
	}
}

// RunCycle evaluates every active price alert once. A cycle started while
// another is running returns ran=false.
func (s *AlertScheduler) RunCycle(ctx context.Context) (report CycleReport, ran bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("alert cycle already in flight, skipping")
		return CycleReport{}, false, nil
	}
	defer s.running.Store(false)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	alerts, err := s.store.ListActive(ctx, models.AlertAbove, models.AlertBelow, models.AlertCross)
	if err != nil {
		s.metrics.RecordError("alert_list")
		return CycleReport{}, true, fmt.Errorf("list active alerts: %w", err)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, a := range alerts {
		g.Go(func() error {
			outcome := s.evaluateOne(ctx, a)
			s.metrics.RecordAlertOutcome(outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeTriggered:
				report.Evaluated++
				report.Triggered++
			case OutcomeNotTriggered:
				report.Evaluated++
			case OutcomeConflict:
				report.Evaluated++
				report.Conflicts++
			case OutcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Took = time.Since(start)
	s.metrics.RecordAlertCycle(report.Evaluated, report.Triggered, report.Skipped, report.Failed, report.Took.Seconds())
	s.logger.Debug("alert cycle finished",
		applogger.Int("alerts", len(alerts)),
		applogger.Int("triggered", report.Triggered),
		applogger.Int("skipped", report.Skipped),
		applogger.Int("failed", report.Failed),
		applogger.Duration("took", report.Took))
	return report, true, nil
}

// evaluateOne never lets a failure or panic escape to the rest of the cycle.
func (s *AlertScheduler) evaluateOne(ctx context.Context, a models.Alert) (outcome string) {
	log := s.logger.With(applogger.String("alert_id", a.ID), applogger.String("symbol", a.Instrument.String()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("alert evaluation panicked", applogger.Any("panic", r))
			outcome = OutcomeFailed
		}
	}()

	unlock, ok, err := s.lock(ctx, a.ID)
	if err != nil {
		log.Warn("alert lock failed", applogger.Error(err))
		return OutcomeFailed
	}
	if !ok {
		return OutcomeLocked
	}
	defer unlock()

	q, err := s.prices.Latest(ctx, a.Instrument)
	if err != nil {
		if errors.Is(err, domrepo.ErrInvalidSymbol) {
			log.Warn("alert instrument rejected upstream", applogger.Error(err))
		} else {
			log.Info("no price for alert, skipping", applogger.Error(err))
		}
		return OutcomeNoPrice
	}

	if !s.eval.ShouldTrigger(a, q.Price) {
		return OutcomeNotTriggered
	}
	if _, err := s.fire(ctx, a, q, log); err != nil {
		if errors.Is(err, domrepo.ErrStoreConflict) || errors.Is(err, domrepo.ErrNotFound) {
			return OutcomeConflict
		}
		return OutcomeFailed
	}
	return OutcomeTriggered
}

// TriggerManual fires an alert of any kind on request. The current price is
// attached when one is available.
func (s *AlertScheduler) TriggerManual(ctx context.Context, id string) (models.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if a.Status != models.AlertActive {
		return a, fmt.Errorf("alert %s is %s: %w", id, a.Status, domrepo.ErrStoreConflict)
	}

	log := s.logger.With(applogger.String("alert_id", a.ID), applogger.String("symbol", a.Instrument.String()))
	unlock, ok, err := s.lock(ctx, a.ID)
	if err != nil {
		return a, fmt.Errorf("lock alert %s: %w", id, err)
	}
	if !ok {
		return a, fmt.Errorf("alert %s is being evaluated: %w", id, domrepo.ErrStoreConflict)
	}
	defer unlock()

	q, err := s.prices.Latest(ctx, a.Instrument)
	if err != nil {
		log.Info("manual trigger without price", applogger.Error(err))
		q = Quote{}
	}
	fired, err := s.fire(ctx, a, q, log)
	s.metrics.RecordAlertOutcome(outcomeOf(err))
	return fired, err
}

// fire commits the transition and then dispatches. A failed dispatch leaves
// the alert triggered.
func (s *AlertScheduler) fire(ctx context.Context, a models.Alert, q Quote, log *applogger.Logger) (models.Alert, error) {
	now := s.cfg.Now().UTC()
	if err := s.store.Transition(ctx, a.ID, models.AlertTriggered, now); err != nil {
		switch {
		case errors.Is(err, domrepo.ErrStoreConflict), errors.Is(err, domrepo.ErrNotFound):
			log.Info("alert already handled", applogger.Error(err))
		default:
			s.metrics.RecordError("alert_transition")
			log.Error("alert transition failed", applogger.Error(err))
		}
		return a, err
	}

	a.Status = models.AlertTriggered
	a.TriggeredAt = &now
	log.Info("alert triggered",
		applogger.String("kind", string(a.Kind)),
		applogger.Float64("target", a.TargetPrice),
		applogger.Float64("price", q.Price),
		applogger.Bool("degraded", q.Degraded))

	if a.ShouldNotify() && s.notifier != nil {
		ok := s.notifier.Send(ctx, a.Destination, models.NotificationFor(a, q.Price, q.Degraded, now))
		s.metrics.RecordDispatch(ok)
		if !ok {
			log.Warn("alert notification failed")
		}
	}

	if s.emitter != nil {
		fired := a
		s.emitter.Emit(ctx, &models.Event{Type: models.EventAlertTriggered, Alert: &fired, Price: q.Price, Degraded: q.Degraded})
	}
	return a, nil
}

func (s *AlertScheduler) lock(ctx context.Context, id string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	key := cache.GenerateKey("lock:alert", id)
	ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		// the cycle context may already be done
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Unlock(uctx, key); err != nil {
			s.logger.Warn("alert unlock failed", applogger.String("alert_id", id), applogger.Error(err))
		}
	}, true, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeTriggered
	case errors.Is(err, domrepo.ErrStoreConflict), errors.Is(err, domrepo.ErrNotFound):
		return OutcomeConflict
	}
	return OutcomeFailed
}
