package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// alert pipeline.
type Metrics struct {
	EventsCreated    prometheus.Counter
	EventsSuppressed *prometheus.CounterVec // labels: channel
	Deliveries       *prometheus.CounterVec // labels: channel, outcome={delivered,invalid,undelivered}
	DispatchRounds   prometheus.Histogram

	GeocodeFallbacks prometheus.Counter
	StoreFallback    prometheus.Gauge // 1 while serving recipients from the snapshot
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EventsCreated,
		m.EventsSuppressed,
		m.Deliveries,
		m.DispatchRounds,
		m.GeocodeFallbacks,
		m.StoreFallback,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "events_created_total",
			Help:      "Total event records persisted.",
		}),
		EventsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "events_suppressed_total",
			Help:      "Broadcasts suppressed as duplicates, by channel.",
		}, []string{"channel"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "deliveries_total",
			Help:      "Delivery outcomes by channel.",
		}, []string{"channel", "outcome"}),
		DispatchRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alert_engine",
			Name:      "dispatch_rounds",
			Help:      "Retry rounds used per broadcast.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		GeocodeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "geocode_fallbacks_total",
			Help:      "Lookups that fell back to the default coordinate.",
		}),
		StoreFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alert_engine",
			Name:      "store_fallback",
			Help:      "1 when the recipient registry is serving the fallback snapshot.",
		}),
	}
}
