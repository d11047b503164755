// Package metrics exposes the agent's prometheus collectors.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "olibox"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	txStatus   *prometheus.CounterVec
	login      *prometheus.CounterVec
	challenge  *prometheus.CounterVec
	errors     *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		txStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_status_total",
			Help:      "Transaction status events observed while waiting for inclusion.",
		}, []string{"status"}),
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Login attempts against the authorization endpoint.",
		}, []string{"result"}),
		challenge: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_total",
			Help:      "Challenge responses verified.",
		}, []string{"result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors returned to API clients by category.",
		}, []string{"category"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of API operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.txStatus, m.login, m.challenge, m.errors, m.opDuration)
	}
	return m
}

func (m *Metrics) RecordTxStatus(status string) {
	if m == nil {
		return
	}
	m.txStatus.WithLabelValues(label(status)).Inc()
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.login.WithLabelValues(label(result)).Inc()
}

func (m *Metrics) RecordChallenge(result string) {
	if m == nil {
		return
	}
	m.challenge.WithLabelValues(label(result)).Inc()
}

func (m *Metrics) RecordError(category string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(label(category)).Inc()
}

func (m *Metrics) ObserveOp(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(label(operation)).Observe(time.Since(started).Seconds())
}

// Handler serves the collectors of g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
