package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Activity feed metrics
	FeedQueriesTotal  *prometheus.CounterVec
	FeedQueryDuration prometheus.Histogram
	ActionsRecorded   *prometheus.CounterVec
	ActionsPurged     prometheus.Counter

	// Job dispatcher metrics
	JobsEnqueuedTotal  *prometheus.CounterVec
	JobsProcessedTotal *prometheus.CounterVec
	JobRetriesTotal    *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the metrics singleton, registering collectors on first use
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			FeedQueriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_queries_total",
					Help: "Total number of activity feed queries",
				},
				[]string{"status"},
			),
			FeedQueryDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "feed_query_duration_seconds",
					Help:    "Activity feed query latency in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
				},
			),
			ActionsRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "actions_recorded_total",
					Help: "Total number of activity records appended",
				},
				[]string{"verb"},
			),
			ActionsPurged: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "actions_purged_total",
					Help: "Total number of activity records deleted by retention",
				},
			),
			JobsEnqueuedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "jobs_enqueued_total",
					Help: "Total number of background jobs enqueued",
				},
				[]string{"kind"},
			),
			JobsProcessedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "jobs_processed_total",
					Help: "Total number of background jobs reaching a terminal state",
				},
				[]string{"kind", "status"},
			),
			JobRetriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "job_retries_total",
					Help: "Total number of background job retries scheduled",
				},
				[]string{"kind"},
			),
			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache"},
			),
		}
	})
	return instance
}
