package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog_search",
			Subsystem: "indexer",
			Name:      "documents_total",
			Help:      "Documents processed, by vector space and outcome (indexed or skipped).",
		},
		[]string{"space", "outcome"},
	)

	pageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalog_search",
			Subsystem: "indexer",
			Name:      "page_duration_seconds",
			Help:      "Time spent embedding and writing one page, cooldown excluded.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"space"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog_search",
			Subsystem: "indexer",
			Name:      "runs_total",
			Help:      "Indexing runs, by vector space and result.",
		},
		[]string{"space", "result"},
	)
)
