package tracing

// Span attribute keys following OpenTelemetry semantic conventions
const (
	// Queue identity attributes
	AttrTopic  = "tieredstore.topic"
	AttrBroker = "tieredstore.broker"
	AttrQueue  = "tieredstore.queue_id"

	// Fetch attributes
	AttrGroup        = "tieredstore.group"
	AttrQueueOffset  = "tieredstore.queue_offset"
	AttrMaxCount     = "tieredstore.max_count"
	AttrBatchSize    = "tieredstore.batch_size"
	AttrMessageCount = "tieredstore.message.count"
	AttrBytesRead    = "tieredstore.bytes.read"

	// Index query attributes
	AttrKey = "tieredstore.key"

	// Cache attributes
	AttrCacheHits       = "tieredstore.cache.hits"
	AttrReadAheadFactor = "tieredstore.read_ahead_factor"

	// Operation attributes
	AttrOperation = "tieredstore.operation"
	AttrStatus    = "tieredstore.status"
	AttrError     = "tieredstore.error"
)
