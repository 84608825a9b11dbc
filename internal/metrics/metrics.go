// Package metrics exposes Prometheus instrumentation for the auth subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medstore"

// Authentication results.
const (
	ResultSuccess            = "success"
	ResultInvalidInput       = "invalid_input"
	ResultInvalidCredentials = "invalid_credentials"
	ResultLocked             = "locked"
	ResultStoreError         = "store_error"
)

// AuthMetrics holds the auth collectors. A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	attempts           *prometheus.CounterVec
	lockouts           prometheus.Counter
	activeSessions     prometheus.Gauge
	sessionExpirations prometheus.Counter
	operations         *prometheus.CounterVec
}

// NewAuthMetrics creates the collectors and registers them with reg.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Identifiers locked after too many failed attempts.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_active",
			Help:      "1 while a session is open on this terminal.",
		}),
		sessionExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_expirations_total",
			Help:      "Sessions ended by the idle timeout.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "operations_total",
			Help:      "Account management operations by operation and outcome kind.",
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(m.attempts, m.lockouts, m.activeSessions, m.sessionExpirations, m.operations)
	return m
}

// NewRegistry returns a registry with the Go and process collectors installed.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveAttempt counts one authentication attempt.
func (m *AuthMetrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// ObserveLockout counts an identifier crossing the failure threshold.
func (m *AuthMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// SessionOpened marks a session as active.
func (m *AuthMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Set(1)
}

// SessionClosed marks the session slot as empty. expired distinguishes idle timeouts.
func (m *AuthMetrics) SessionClosed(expired bool) {
	if m == nil {
		return
	}
	m.activeSessions.Set(0)
	if expired {
		m.sessionExpirations.Inc()
	}
}

// ObserveOperation counts an account management operation. result is "success" or an error kind.
func (m *AuthMetrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
}
