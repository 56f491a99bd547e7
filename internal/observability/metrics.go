// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Simulation
	TicksTotal     prometheus.Counter
	TradesTotal    *prometheus.CounterVec
	TradeRejects   *prometheus.CounterVec
	TradeLatency   prometheus.Histogram
	ActiveSessions prometheus.Gauge

	// Fan-out and persistence
	WSClients     prometheus.Gauge
	JournalErrors prometheus.Counter
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "papertrader"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TicksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of price ticks across all sessions",
		}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Executed paper trades by side",
		}, []string{"side"}),
		TradeRejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_rejections_total",
			Help:      "Rejected paper trades by reason code",
		}, []string{"code"}),
		TradeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_duration_seconds",
			Help:      "Time to validate and apply a trade",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live paper-trading sessions",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		JournalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Trades that could not be written to the journal",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTrade counts an executed trade and how long it took.
func (m *Metrics) RecordTrade(side string, seconds float64) {
	m.TradesTotal.WithLabelValues(side).Inc()
	m.TradeLatency.Observe(seconds)
}

// RecordReject counts a rejected trade by its reason code.
func (m *Metrics) RecordReject(code string) {
	m.TradeRejects.WithLabelValues(code).Inc()
}
