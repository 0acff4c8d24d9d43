// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Plays          *prometheus.CounterVec
	PlayFailures   *prometheus.CounterVec
	PlayRejections *prometheus.CounterVec
	PlaysInFlight  prometheus.Gauge
	SettlementTime prometheus.Histogram
	AccountOps     *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Plays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flip_plays_total",
				Help: "Total settled plays",
			},
			[]string{"selection", "result"},
		),
		PlayFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flip_play_failures_total",
				Help: "Total plays that failed to submit or settle",
			},
			[]string{"reason"},
		),
		PlayRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flip_play_rejections_total",
				Help: "Total play requests refused before submission",
			},
			[]string{"reason"},
		),
		PlaysInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flip_plays_in_flight",
				Help: "Plays submitted and awaiting settlement",
			},
		),
		SettlementTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flip_settlement_seconds",
				Help:    "Time from play submission to settlement",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
		),
		AccountOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flip_account_operations_total",
				Help: "Total account lifecycle operations",
			},
			[]string{"op", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flip_http_requests_total",
				Help: "Total local API requests",
			},
			[]string{"method", "route", "code"},
		),
	}

	m.registry.MustRegister(
		m.Plays,
		m.PlayFailures,
		m.PlayRejections,
		m.PlaysInFlight,
		m.SettlementTime,
		m.AccountOps,
		m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PlaySettled counts a settled play.
func (m *Metrics) PlaySettled(selection string, won bool, seconds float64) {
	if m == nil {
		return
	}
	result := "loss"
	if won {
		result = "win"
	}
	m.Plays.WithLabelValues(selection, result).Inc()
	m.SettlementTime.Observe(seconds)
}

// PlayFailed counts a play that did not settle.
func (m *Metrics) PlayFailed(reason string) {
	if m == nil {
		return
	}
	m.PlayFailures.WithLabelValues(reason).Inc()
}

// PlayRejected counts a play refused by the session gate.
func (m *Metrics) PlayRejected(reason string) {
	if m == nil {
		return
	}
	m.PlayRejections.WithLabelValues(reason).Inc()
}

// InFlight moves the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.PlaysInFlight.Add(delta)
}

// AccountOp counts an account lifecycle call.
func (m *Metrics) AccountOp(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AccountOps.WithLabelValues(op, status).Inc()
}
