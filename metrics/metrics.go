// Package metrics exposes transfer activity as Prometheus collectors.
//
// Every method is safe to call on a nil *Metrics, so components accept one
// optionally and record unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
)

const namespace = "forge_transfer"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionDuration *prometheus.HistogramVec
	bytes           *prometheus.CounterVec
	parts           *prometheus.CounterVec
	objects         *prometheus.CounterVec
	retries         *prometheus.CounterVec
	cleanupFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Transfer sessions by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions that have started and not yet deprovisioned.",
		}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from provisioning to deprovisioned.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes moved by strategy.",
		}, []string{"strategy"}),
		parts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_total",
			Help:      "Multipart parts written by strategy.",
		}, []string{"strategy"}),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_total",
			Help:      "Objects transferred by strategy and result.",
		}, []string{"strategy", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried remote calls by operation.",
		}, []string{"operation"}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Failed abort and release calls by operation.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(
		m.sessions,
		m.activeSessions,
		m.sessionDuration,
		m.bytes,
		m.parts,
		m.objects,
		m.retries,
		m.cleanupFailures,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a session entering provisioning.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionFinished records a deprovisioned session and its outcome.
func (m *Metrics) SessionFinished(outcome domain.SessionState, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(outcome.String()).Inc()
	m.sessionDuration.WithLabelValues(outcome.String()).Observe(elapsed.Seconds())
}

// AddBytes records n bytes written with strategy.
func (m *Metrics) AddBytes(strategy domain.Strategy, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(strategy.String()).Add(float64(n))
}

// PartDone records one completed part.
func (m *Metrics) PartDone(strategy domain.Strategy) {
	if m == nil {
		return
	}
	m.parts.WithLabelValues(strategy.String()).Inc()
}

// ObjectDone records one finished object.
func (m *Metrics) ObjectDone(strategy domain.Strategy, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.objects.WithLabelValues(strategy.String(), result).Inc()
}

// CleanupFailed records a failed abort or release.
func (m *Metrics) CleanupFailed(op string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(op).Inc()
}

// RetryObserver returns a retry.Observer that counts retries per operation.
func (m *Metrics) RetryObserver() retry.Observer {
	if m == nil {
		return nil
	}
	return func(op string, _ int, _ error) {
		m.retries.WithLabelValues(op).Inc()
	}
}
