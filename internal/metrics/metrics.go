// Package metrics holds the Prometheus collectors for the indexing pipeline
// and the hybrid search path.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Name:      "outbox_events_total",
			Help:      "Outbox events by processing outcome",
		},
		[]string{"outcome"}, // "processed" / "retried" / "dead_lettered"
	)

	OutboxPendingEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docvault",
			Name:      "outbox_pending_events",
			Help:      "Pending outbox events observed at the last tick",
		},
	)

	OutboxTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Name:      "outbox_tick_duration_seconds",
			Help:      "Duration of one outbox processor tick",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Name:      "search_requests_total",
			Help:      "Hybrid search requests by status",
		},
		[]string{"status"}, // "ok" / "invalid" / "error"
	)

	SearchRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Name:      "search_request_duration_seconds",
			Help:      "Hybrid search request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Name:      "search_cache_total",
			Help:      "Search cache lookups",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var registered bool

// Register registers all collectors. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(OutboxEventsTotal)
	prometheus.MustRegister(OutboxPendingEvents)
	prometheus.MustRegister(OutboxTickDuration)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	prometheus.MustRegister(SearchCacheTotal)
	registered = true
}
