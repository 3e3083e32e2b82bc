package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalog_search",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency, by provider selection and result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "result"},
	)

	degradationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog_search",
			Subsystem: "retrieval",
			Name:      "degradations_total",
			Help:      "Searches that omitted an optional stage.",
		},
		[]string{"feature"},
	)
)
