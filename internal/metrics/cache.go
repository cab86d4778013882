package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache Prometheus metrics. Scope is deliberately not a label here: scopes are
// user identifiers and would blow up label cardinality. Per-scope series live
// in the in-process stats engine instead.
var (
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semcache",
			Name:      "cache_requests_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"outcome"}, // "hit" / "miss"
	)

	CacheQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "semcache",
			Name:      "cache_query_duration_seconds",
			Help:      "End-to-end lookup duration (embed + search + decide)",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	CacheSimilarityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "semcache",
			Name:      "cache_similarity_score",
			Help:      "Best-candidate similarity score observed per lookup",
			Buckets:   prometheus.LinearBuckets(0.5, 0.05, 11),
		},
	)

	CacheSaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "semcache",
			Name:      "cache_save_duration_seconds",
			Help:      "End-to-end save duration (embed + insert)",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semcache",
			Name:      "cache_writes_total",
			Help:      "Total number of cache save attempts",
		},
		[]string{"status"}, // "success" / "error"
	)

	CacheSearchCandidates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "semcache",
			Name:      "cache_search_candidates",
			Help:      "Number of candidates returned by the last vector search",
		},
	)
)

var cacheMetricsRegistered bool

// RegisterCacheMetrics registers Prometheus cache metrics. Must be called once from main.
func RegisterCacheMetrics() {
	if cacheMetricsRegistered {
		return
	}
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheQueryDuration)
	prometheus.MustRegister(CacheSimilarityScore)
	prometheus.MustRegister(CacheSaveDuration)
	prometheus.MustRegister(CacheWritesTotal)
	prometheus.MustRegister(CacheSearchCandidates)
	cacheMetricsRegistered = true
}
