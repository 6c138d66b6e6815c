// Package metrics holds the exchange's prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exchange"

type Metrics struct {
	registry *prometheus.Registry

	QuoteCacheHits   prometheus.Counter
	QuoteCacheMisses prometheus.Counter
	QuoteFetchErrors *prometheus.CounterVec
	QuoteFetchTime   prometheus.Histogram

	BroadcastCycles     prometheus.Counter
	BroadcastFailures   prometheus.Counter
	BroadcastDuration   prometheus.Histogram
	BroadcastDeliveries prometheus.Counter
	PrunedConnections   prometheus.Counter

	Connections       prometheus.Gauge
	SubscribedSymbols prometheus.Gauge

	OrdersTotal   *prometheus.CounterVec
	OrderRejected *prometheus.CounterVec
}

// -----------------------------------------------------------------------------

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		QuoteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quotes",
			Name: "cache_hits_total", Help: "Quote lookups served from cache",
		}),
		QuoteCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quotes",
			Name: "cache_misses_total", Help: "Quote lookups that went upstream",
		}),
		QuoteFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quotes",
			Name: "fetch_errors_total", Help: "Failed upstream quote fetches",
		}, []string{"symbol"}),
		QuoteFetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "quotes",
			Name: "fetch_duration_seconds", Help: "Upstream quote fetch latency",
			Buckets: prometheus.DefBuckets,
		}),

		BroadcastCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast",
			Name: "cycles_total", Help: "Completed broadcast cycles",
		}),
		BroadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast",
			Name: "cycle_failures_total", Help: "Broadcast cycles aborted by a fault",
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "broadcast",
			Name: "cycle_duration_seconds", Help: "Broadcast cycle duration",
			Buckets: prometheus.DefBuckets,
		}),
		BroadcastDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast",
			Name: "deliveries_total", Help: "Messages queued to subscribers",
		}),
		PrunedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast",
			Name: "pruned_connections_total", Help: "Subscriptions dropped after a failed send",
		}),

		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws",
			Name: "connections", Help: "Open push connections",
		}),
		SubscribedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws",
			Name: "subscribed_symbols", Help: "Symbols with at least one subscriber",
		}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name: "orders_total", Help: "Executed orders",
		}, []string{"side"}),
		OrderRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name: "orders_rejected_total", Help: "Rejected orders by reason",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.QuoteCacheHits, m.QuoteCacheMisses, m.QuoteFetchErrors, m.QuoteFetchTime,
		m.BroadcastCycles, m.BroadcastFailures, m.BroadcastDuration, m.BroadcastDeliveries, m.PrunedConnections,
		m.Connections, m.SubscribedSymbols,
		m.OrdersTotal, m.OrderRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// -----------------------------------------------------------------------------

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// -----------------------------------------------------------------------------

func (m *Metrics) CacheHit() {
	if m != nil {
		m.QuoteCacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.QuoteCacheMisses.Inc()
	}
}

func (m *Metrics) FetchFailed(symbol string) {
	if m != nil {
		m.QuoteFetchErrors.WithLabelValues(symbol).Inc()
	}
}

func (m *Metrics) ObserveFetch(seconds float64) {
	if m != nil {
		m.QuoteFetchTime.Observe(seconds)
	}
}

// -----------------------------------------------------------------------------

func (m *Metrics) CycleCompleted(seconds float64, deliveries, pruned int) {
	if m == nil {
		return
	}
	m.BroadcastCycles.Inc()
	m.BroadcastDuration.Observe(seconds)
	m.BroadcastDeliveries.Add(float64(deliveries))
	m.PrunedConnections.Add(float64(pruned))
}

func (m *Metrics) CycleFailed() {
	if m != nil {
		m.BroadcastFailures.Inc()
	}
}

func (m *Metrics) SetSubscriptions(connections, symbols int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(connections))
	m.SubscribedSymbols.Set(float64(symbols))
}

// -----------------------------------------------------------------------------

func (m *Metrics) OrderExecuted(side string) {
	if m != nil {
		m.OrdersTotal.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) OrderRejectedFor(reason string) {
	if m != nil {
		m.OrderRejected.WithLabelValues(reason).Inc()
	}
}
