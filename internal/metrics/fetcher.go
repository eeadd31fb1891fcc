package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FetcherMetrics tracks read-path metrics for the tiered message fetcher.
// All metrics live on a private registry so the exporter only ever serves
// the fetcher's own series.
type FetcherMetrics struct {
	registry *prometheus.Registry

	cacheAccess     *prometheus.CounterVec
	cacheHit        *prometheus.CounterVec
	cacheMiss       *prometheus.CounterVec
	cacheEviction   prometheus.Counter
	fetchTotal      *prometheus.CounterVec
	fetchMessages   *prometheus.CounterVec
	fetchBytes      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	prefetchTotal   *prometheus.CounterVec
	prefetchBatches *prometheus.CounterVec
	inflightWait    *prometheus.CounterVec
	readAheadFactor *prometheus.GaugeVec
	queryTotal      *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
}

// NewFetcherMetrics builds the fetcher metric set on a fresh registry
func NewFetcherMetrics() *FetcherMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}

	return &FetcherMetrics{
		registry: registry,
		cacheAccess: counter(MetricCacheAccessTotal,
			"Number of messages requested from the read-ahead cache",
			LabelTopic, LabelGroup),
		cacheHit: counter(MetricCacheHitTotal,
			"Number of messages served from the read-ahead cache",
			LabelTopic, LabelGroup),
		cacheMiss: counter(MetricCacheMissTotal,
			"Number of cache lookups that missed",
			LabelTopic, LabelGroup),
		cacheEviction: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheEvictionTotal,
			Help: "Number of cache entries evicted",
		}),
		fetchTotal: counter(MetricFetchTotal,
			"Number of backend fetches issued",
			LabelTopic, LabelQueue, LabelStatus),
		fetchMessages: counter(MetricFetchMessagesTotal,
			"Number of messages returned by backend fetches",
			LabelTopic, LabelQueue),
		fetchBytes: counter(MetricFetchBytesTotal,
			"Number of commit-log bytes read from the backend",
			LabelTopic, LabelQueue),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricFetchDuration,
			Help:    "Backend fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{LabelTopic, LabelQueue}),
		prefetchTotal: counter(MetricPrefetchTotal,
			"Number of prefetch triggers that issued backend fetches",
			LabelTopic, LabelGroup),
		prefetchBatches: counter(MetricPrefetchBatchesTotal,
			"Number of prefetch batches issued",
			LabelTopic, LabelGroup),
		inflightWait: counter(MetricInflightWaitTotal,
			"Number of requests that suspended on an in-flight fetch",
			LabelTopic, LabelGroup),
		readAheadFactor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricReadAheadFactor,
			Help: "Current read-ahead factor per queue",
		}, []string{LabelTopic, LabelQueue}),
		queryTotal: counter(MetricQueryTotal,
			"Number of by-key index queries",
			LabelTopic, LabelStatus),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "Index query duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{LabelTopic}),
	}
}

// Registry returns the private registry for the HTTP exporter
func (m *FetcherMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCacheAccess records cache access and hit counts for one request
func (m *FetcherMetrics) RecordCacheAccess(topic, group string, requested, hits int) {
	if m == nil {
		return
	}
	m.cacheAccess.WithLabelValues(topic, group).Add(float64(requested))
	m.cacheHit.WithLabelValues(topic, group).Add(float64(hits))
	if hits < requested {
		m.cacheMiss.WithLabelValues(topic, group).Add(float64(requested - hits))
	}
}

// RecordCacheEviction records a cache entry eviction
func (m *FetcherMetrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.cacheEviction.Inc()
}

// RecordFetch records a completed backend fetch
func (m *FetcherMetrics) RecordFetch(topic, queue, status string, messages int, bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(topic, queue, status).Inc()
	if messages > 0 {
		m.fetchMessages.WithLabelValues(topic, queue).Add(float64(messages))
	}
	if bytes > 0 {
		m.fetchBytes.WithLabelValues(topic, queue).Add(float64(bytes))
	}
	m.fetchDuration.WithLabelValues(topic, queue).Observe(elapsed.Seconds())
}

// RecordPrefetch records a prefetch trigger and its batch count
func (m *FetcherMetrics) RecordPrefetch(topic, group string, batches int) {
	if m == nil {
		return
	}
	m.prefetchTotal.WithLabelValues(topic, group).Inc()
	m.prefetchBatches.WithLabelValues(topic, group).Add(float64(batches))
}

// RecordInflightWait records a request suspending on an in-flight fetch
func (m *FetcherMetrics) RecordInflightWait(topic, group string) {
	if m == nil {
		return
	}
	m.inflightWait.WithLabelValues(topic, group).Inc()
}

// SetReadAheadFactor records the current read-ahead factor for a queue
func (m *FetcherMetrics) SetReadAheadFactor(topic, queue string, factor int) {
	if m == nil {
		return
	}
	m.readAheadFactor.WithLabelValues(topic, queue).Set(float64(factor))
}

// RecordQuery records a by-key index query
func (m *FetcherMetrics) RecordQuery(topic, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queryTotal.WithLabelValues(topic, status).Inc()
	m.queryDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}
