package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the storm
// intelligence core.
type Metrics struct {
	AdapterRequests *prometheus.CounterVec   // labels: source={catalog,archive,alerts}, outcome={success,error,empty}
	EventsReturned  *prometheus.CounterVec   // labels: source
	AdapterDuration *prometheus.HistogramVec // labels: source

	CacheLookups *prometheus.CounterVec // labels: cache, result={hit,miss}

	SearchDuration   prometheus.Histogram
	HotZonesPerQuery prometheus.Histogram
}

// NewMetrics creates and registers all core metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		AdapterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_intel",
			Name:      "adapter_requests_total",
			Help:      "Event source adapter requests by source and outcome.",
		}, []string{"source", "outcome"}),
		EventsReturned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_intel",
			Name:      "events_returned_total",
			Help:      "Normalized storm events returned by each source.",
		}, []string{"source"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storm_intel",
			Name:      "adapter_request_duration_seconds",
			Help:      "External provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_intel",
			Name:      "cache_lookups_total",
			Help:      "Adapter cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_intel",
			Name:      "search_duration_seconds",
			Help:      "Duration of a complete multi-source search fan-out.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		HotZonesPerQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_intel",
			Name:      "hot_zones_per_query",
			Help:      "Number of hot zones produced per hot-zone query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 7, 10},
		}),
	}

	prometheus.MustRegister(
		m.AdapterRequests,
		m.EventsReturned,
		m.AdapterDuration,
		m.CacheLookups,
		m.SearchDuration,
		m.HotZonesPerQuery,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		AdapterRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "storm_intel", Name: "adapter_requests_total"}, []string{"source", "outcome"}),
		EventsReturned:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "storm_intel", Name: "events_returned_total"}, []string{"source"}),
		AdapterDuration:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "storm_intel", Name: "adapter_request_duration_seconds"}, []string{"source"}),
		CacheLookups:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "storm_intel", Name: "cache_lookups_total"}, []string{"cache", "result"}),
		SearchDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "storm_intel", Name: "search_duration_seconds"}),
		HotZonesPerQuery: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "storm_intel", Name: "hot_zones_per_query"}),
	}
}
