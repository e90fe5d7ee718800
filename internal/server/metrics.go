package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the key-value server.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	// RequestDuration is labeled by operation (get, get_popular, put,
	// delete) and outcome (ok, not_found, client_error, server_error,
	// busy).
	RequestDuration *prometheus.HistogramVec

	PoolInUse          prometheus.GaugeFunc
	ExecutorQueueDepth prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the provided
// registry. poolInUse and queueDepth sample the pool and executor at
// scrape time.
func NewMetrics(reg prometheus.Registerer, poolInUse, queueDepth func() float64) *Metrics {
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kvserve_cache_hits_total",
		Help: "Total cache lookups answered without touching the store",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kvserve_cache_misses_total",
		Help: "Total cache lookups that fell through to the store",
	})

	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kvserve_cache_evictions_total",
		Help: "Total entries evicted to make room in a cache shard",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kvserve_request_duration_seconds",
		Help:    "Request latency by operation and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "outcome"})

	poolGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kvserve_pool_sessions_in_use",
		Help: "Store sessions currently borrowed from the pool",
	}, poolInUse)

	queueGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kvserve_executor_queue_depth",
		Help: "Tasks waiting for an executor worker",
	}, queueDepth)

	reg.MustRegister(cacheHits, cacheMisses, cacheEvictions, requestDuration, poolGauge, queueGauge)

	return &Metrics{
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
		CacheEvictions:     cacheEvictions,
		RequestDuration:    requestDuration,
		PoolInUse:          poolGauge,
		ExecutorQueueDepth: queueGauge,
	}
}
