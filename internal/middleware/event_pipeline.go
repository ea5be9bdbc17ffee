package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, e *models.Event) error
}

// EventPipeline sits between the event bus and the configured sink. It
// validates, throttles market.refreshed noise, and buffers events when the
// sink is unavailable, retrying them in the background.
type EventPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per event type, last accepted time
	lastSeen  map[models.EventType]time.Time
	transform func(*models.Event) *models.Event
	sleep     func(time.Duration)

	maxBackoff time.Duration // upper bound of the retry backoff
}

type PipelineOption func(*EventPipeline)

// WithMaxRPS caps accepted events per second per event type. Zero disables
// throttling. Alert events are never throttled.
func WithMaxRPS(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many events are held while the sink is down.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxBackoff caps the wait between retries of a buffered event.
func WithMaxBackoff(d time.Duration) PipelineOption {
	return func(p *EventPipeline) {
		if d > 0 {
			p.maxBackoff = d
		}
	}
}

// WithTransform sets a hook that may rewrite an event before it is sent.
func WithTransform(fn func(*models.Event) *models.Event) PipelineOption {
	return func(p *EventPipeline) { p.transform = fn }
}

func withSleep(fn func(time.Duration)) PipelineOption {
	return func(p *EventPipeline) { p.sleep = fn }
}

func NewEventPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		proc:       proc,
		metrics:    metrics,
		bufSize:    1000,
		maxBackoff: 2 * time.Second,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		lastSeen:   make(map[models.EventType]time.Time),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Event, p.bufSize)
	return p
}

// Start launches the background retry of buffered events.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case e := <-p.bufCh:
				if err := p.proc.Process(ctx, e); err != nil {
					if backoff *= 2; backoff > p.maxBackoff {
						backoff = p.maxBackoff
					}
					p.metrics.RecordEvent(string(e.Type), "retry_failed")
					p.sleep(backoff)
					select {
					case p.bufCh <- e:
					default:
						p.metrics.RecordEvent(string(e.Type), "buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
				p.metrics.RecordEvent(string(e.Type), "flushed")
			}
		}
	}()
}

// Stop ends the retry loop and waits for it to exit. Events still buffered
// are lost.
func (p *EventPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Buffered reports the number of events waiting for a retry.
func (p *EventPipeline) Buffered() int { return len(p.bufCh) }

// Process validates and forwards e, buffering it when the sink fails.
func (p *EventPipeline) Process(ctx context.Context, e *models.Event) error {
	start := time.Now()
	if err := validateEvent(e); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		e = p.transform(e)
		if err := validateEvent(e); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(e.Type, start) {
		p.metrics.RecordEvent(string(e.Type), "throttled")
		return nil
	}

	if err := p.proc.Process(ctx, e); err != nil {
		select {
		case p.bufCh <- e:
			p.metrics.RecordEvent(string(e.Type), "buffered")
		default:
			p.metrics.RecordEvent(string(e.Type), "buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordEvent(string(e.Type), "sent")
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

var errInvalidEvent = errors.New("invalid event")

func validateEvent(e *models.Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil", errInvalidEvent)
	}
	if e.ID == "" || e.At.IsZero() {
		return fmt.Errorf("%w: missing id or time", errInvalidEvent)
	}
	switch e.Type {
	case models.EventAlertTriggered:
		if e.Alert == nil {
			return fmt.Errorf("%w: %s without alert", errInvalidEvent, e.Type)
		}
	case models.EventSignalCreated:
		if e.Signal == nil {
			return fmt.Errorf("%w: %s without signal", errInvalidEvent, e.Type)
		}
	case models.EventMarketRefreshed:
		if e.Refresh == nil {
			return fmt.Errorf("%w: %s without summary", errInvalidEvent, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalidEvent, e.Type)
	}
	return nil
}

func (p *EventPipeline) allow(t models.EventType, now time.Time) bool {
	if p.maxRPS <= 0 || t == models.EventAlertTriggered {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastSeen[t]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[t] = now
	return true
}
