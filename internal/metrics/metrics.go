// Package metrics instruments the bridge itself: push outcomes, bootstrap
// attempts, aggregation failures and poll cycle timing. All methods are safe
// to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skynet"

// Push outcomes.
const (
	PushSuccess        = "success"
	PushProtocolError  = "protocol_error"
	PushTransportError = "transport_error"
	PushEncodeError    = "encode_error"
)

type Metrics struct {
	registry *prometheus.Registry

	pushes              *prometheus.CounterVec
	pushDuration        prometheus.Histogram
	bootstrapAttempts   *prometheus.CounterVec
	aggregationFailures *prometheus.CounterVec
	identityMisses      *prometheus.CounterVec
	cycles              prometheus.Counter
	cycleDuration       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "pushes_total",
			Help:      "Sender protocol push attempts by outcome.",
		}, []string{"outcome"}),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "push_duration_seconds",
			Help:      "Wall time of one sender protocol exchange.",
			Buckets:   prometheus.DefBuckets,
		}),
		bootstrapAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "attempts_total",
			Help:      "Controller bootstrap attempts by result.",
		}, []string{"result"}),
		aggregationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "failures_total",
			Help:      "Aggregations that fell back to their zero default, by metric.",
		}, []string{"metric"}),
		identityMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "identity_misses_total",
			Help:      "Ranked resources dropped because no display name was cached.",
		}, []string{"metric"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "cycles_total",
			Help:      "Completed poll cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one poll cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	m.registry.MustRegister(
		m.pushes,
		m.pushDuration,
		m.bootstrapAttempts,
		m.aggregationFailures,
		m.identityMisses,
		m.cycles,
		m.cycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObservePush(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(outcome).Inc()
	m.pushDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveBootstrap(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.bootstrapAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) AggregationFailed(metric string) {
	if m == nil {
		return
	}
	m.aggregationFailures.WithLabelValues(metric).Inc()
}

func (m *Metrics) IdentityMissed(metric string) {
	if m == nil {
		return
	}
	m.identityMisses.WithLabelValues(metric).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// PushCounter returns the push counter for one outcome label.
func (m *Metrics) PushCounter(outcome string) prometheus.Counter {
	return m.pushes.WithLabelValues(outcome)
}

func (m *Metrics) FailureCounter(metric string) prometheus.Counter {
	return m.aggregationFailures.WithLabelValues(metric)
}

func (m *Metrics) IdentityMissCounter(metric string) prometheus.Counter {
	return m.identityMisses.WithLabelValues(metric)
}

func (m *Metrics) BootstrapCounter(result string) prometheus.Counter {
	return m.bootstrapAttempts.WithLabelValues(result)
}

func (m *Metrics) CycleCounter() prometheus.Counter {
	return m.cycles
}
