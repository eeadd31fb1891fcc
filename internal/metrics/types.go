package metrics

// Metric name constants following Prometheus naming conventions
// Format: tieredstore_{component}_{metric}_{unit}

// Read-ahead cache metrics
const (
	MetricCacheAccessTotal   = "tieredstore_cache_access_total"
	MetricCacheHitTotal      = "tieredstore_cache_hit_total"
	MetricCacheMissTotal     = "tieredstore_cache_miss_total"
	MetricCacheEvictionTotal = "tieredstore_cache_eviction_total"
	MetricCacheWeightBytes   = "tieredstore_cache_weight_bytes"
)

// Backend fetch metrics
const (
	MetricFetchTotal           = "tieredstore_fetch_total"
	MetricFetchMessagesTotal   = "tieredstore_fetch_messages_total"
	MetricFetchBytesTotal      = "tieredstore_fetch_bytes_total"
	MetricFetchDuration        = "tieredstore_fetch_duration_seconds"
	MetricPrefetchTotal        = "tieredstore_prefetch_total"
	MetricPrefetchBatchesTotal = "tieredstore_prefetch_batches_total"
	MetricInflightWaitTotal    = "tieredstore_inflight_wait_total"
	MetricReadAheadFactor      = "tieredstore_read_ahead_factor"
)

// Index query metrics
const (
	MetricQueryTotal    = "tieredstore_query_total"
	MetricQueryDuration = "tieredstore_query_duration_seconds"
)

// Label name constants
const (
	LabelTopic  = "topic"
	LabelQueue  = "queue"
	LabelGroup  = "group"
	LabelStatus = "status"
)
