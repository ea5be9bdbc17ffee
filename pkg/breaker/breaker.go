package breaker

import (
	"errors"
	"sync"
	"time"

	applogger "MarketPulse/pkg/logger"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes before closing
	Cooldown         time.Duration // open time before a probe is let through
	Now              func() time.Time
}

// Breaker stops calling a dependency that keeps failing so callers can fall
// back immediately instead of waiting out a timeout on every request.
type Breaker struct {
	cfg    Config
	logger *applogger.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	probeActive bool
}

func New(cfg Config, l *applogger.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Breaker{cfg: cfg, logger: l.With(applogger.String("breaker", cfg.Name))}
}

// Allow reports whether a call may proceed. In half-open only one probe is
// in flight at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probeActive = true
		b.logger.Info("circuit breaker half-open")
		return true
	case StateHalfOpen:
		if b.probeActive {
			return false
		}
		b.probeActive = true
		return true
	}
	return false
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probeActive = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.logger.Info("circuit breaker closed")
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.probeActive = false
		b.trip()
	}
}

// trip opens the breaker; caller holds mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.successes = 0
	b.logger.Warn("circuit breaker open",
		applogger.Int("failures", b.failures),
		applogger.Duration("cooldown_ms", b.cfg.Cooldown),
	)
}

// Do runs fn if allowed and records the outcome. Errors for which countable
// returns false (e.g. a bad symbol) do not count against the dependency.
func (b *Breaker) Do(fn func() error, countable func(error) bool) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	switch {
	case err == nil:
		b.RecordSuccess()
	case countable == nil || countable(err):
		b.RecordFailure()
	default:
		// the dependency answered; treat as healthy
		b.RecordSuccess()
	}
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
