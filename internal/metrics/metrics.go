// Package metrics holds the Prometheus collectors for indexing, search and
// watching, plus the admin HTTP router that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trenton"

// Indexing metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_jobs_total",
			Help:      "Index jobs by mode and terminal state",
		},
		[]string{"mode", "state"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_jobs_active",
			Help:      "Index jobs queued or running",
		},
	)

	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_files_total",
			Help:      "Files handled by the indexer, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_workers_busy",
			Help:      "Worker pool slots currently in use",
		},
	)

	EmbedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embed_duration_seconds",
			Help:      "Embedder call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"modality"},
	)

	EmbedRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_retries_total",
			Help:      "Retries of retryable embedding pipeline failures",
		},
	)
)

// Search metrics
var (
	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by kind and status",
		},
		[]string{"kind", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	SearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of matches returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)
)

// Watcher metrics
var (
	WatchEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Raw filesystem events by operation",
		},
		[]string{"op"},
	)

	WatchIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_intents_total",
			Help:      "Debounced intents by kind",
		},
		[]string{"kind"},
	)

	WatchOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_overflows_total",
			Help:      "Watch queue overflows that triggered a rescan",
		},
	)

	WatchedRoots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_roots",
			Help:      "Number of folder roots being watched",
		},
	)
)

// Store metrics
var (
	StoreWriteConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_conflicts_total",
			Help:      "Store writes that hit a busy database and were retried",
		},
	)
)
