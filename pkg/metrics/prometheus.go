package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketpulse"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cacheReads      *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	refreshRuns     *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	instruments     *prometheus.GaugeVec
	cycleDuration   prometheus.Histogram
	alertOutcomes   *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	signals         *prometheus.CounterVec
	events          *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New registers the collectors on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg; tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cacheReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reads_total",
			Help:      "Price cache reads by result (fresh, stale, miss, degraded)",
		}, []string{"result"}),
		upstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream feed call latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"feed", "op"}),
		upstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream feed failures by kind",
		}, []string{"feed", "op", "kind"}),
		refreshRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_refresh_total",
			Help:      "Market refresh cycles by outcome (run, dropped)",
		}, []string{"outcome"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "market_refresh_duration_seconds",
			Help:      "Duration of a full market refresh",
			Buckets:   prometheus.DefBuckets,
		}),
		instruments: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_instruments",
			Help:      "Instruments updated or failed in the last refresh",
		}, []string{"state"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_cycle_duration_seconds",
			Help:      "Duration of an alert evaluation cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		alertOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_evaluations_total",
			Help:      "Per-alert outcomes (evaluated, triggered, skipped, conflict, failed, degraded)",
		}, []string{"outcome"}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result",
		}, []string{"result"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_generated_total",
			Help:      "Synthetic signals by condition",
		}, []string{"condition"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events by type and outcome (published, dropped, buffered, stored)",
		}, []string{"type", "outcome"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordCacheRead(result string) {
	r.cacheReads.WithLabelValues(result).Inc()
}

// RecordUpstream records one feed call; err may be nil.
func (r *Recorder) RecordUpstream(feed, op string, seconds float64, err error) {
	r.upstreamLatency.WithLabelValues(feed, op).Observe(seconds)
	if err != nil {
		r.upstreamErrors.WithLabelValues(feed, op, ErrorKind(err)).Inc()
	}
}

func (r *Recorder) RecordRefresh(updated, failed int, seconds float64) {
	r.refreshRuns.WithLabelValues("run").Inc()
	r.refreshDuration.Observe(seconds)
	r.instruments.WithLabelValues("updated").Set(float64(updated))
	r.instruments.WithLabelValues("failed").Set(float64(failed))
}

func (r *Recorder) RecordRefreshDropped() {
	r.refreshRuns.WithLabelValues("dropped").Inc()
}

func (r *Recorder) RecordAlertCycle(evaluated, triggered, skipped, failed int, seconds float64) {
	r.cycleDuration.Observe(seconds)
	r.alertOutcomes.WithLabelValues("evaluated").Add(float64(evaluated))
	r.alertOutcomes.WithLabelValues("triggered").Add(float64(triggered))
	r.alertOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	r.alertOutcomes.WithLabelValues("failed").Add(float64(failed))
}

// RecordAlertOutcome counts outcomes that are not part of the cycle summary.
func (r *Recorder) RecordAlertOutcome(outcome string) {
	r.alertOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordDispatch(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.dispatches.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordSignal(condition string) {
	r.signals.WithLabelValues(condition).Inc()
}

func (r *Recorder) RecordEvent(eventType, outcome string) {
	r.events.WithLabelValues(eventType, outcome).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
