package fetcher

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/flowmesh/tieredstore/internal/metrics"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
)

// MessageWrapper is one cached message plus the locality hints of the batch
// that fetched it
type MessageWrapper struct {
	// Buffer references the message bytes inside the fetched commit-log slice
	Buffer []byte

	// CurOffset is the logical queue offset of this message
	CurOffset int64

	// MinOffset and MaxOffset bound the batch this entry was fetched in.
	// Hints only; entries of a batch may be evicted independently.
	MinOffset int64
	MaxOffset int64

	// Size is the message count of the batch that produced this entry
	Size int

	accessCount atomic.Int32
}

// AddAccessCount increments the hit counter and returns the new value
func (w *MessageWrapper) AddAccessCount() int32 {
	return w.accessCount.Add(1)
}

// AccessCount returns the number of times this entry served a hit
func (w *MessageWrapper) AccessCount() int32 {
	return w.accessCount.Load()
}

// CacheConfig tunes the read-ahead cache
type CacheConfig struct {
	// MaxWeight bounds the total buffer bytes held
	MaxWeight int64

	// ExpireDuration is the time-to-live from write
	ExpireDuration time.Duration
}

// MessageCache is the weight-bounded, time-expiring read-ahead cache keyed
// by (flat file, queue offset)
type MessageCache struct {
	cache   *ristretto.Cache[string, *MessageWrapper]
	ttl     time.Duration
	metrics *metrics.FetcherMetrics
}

// NewMessageCache builds the cache. Entry weight is the message buffer byte
// count; entries expire ExpireDuration after write regardless of use.
func NewMessageCache(cfg CacheConfig, m *metrics.FetcherMetrics) (*MessageCache, error) {
	counters := cfg.MaxWeight / 1024
	if counters < 1<<10 {
		counters = 1 << 10
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *MessageWrapper]{
		NumCounters: counters,
		MaxCost:     cfg.MaxWeight,
		BufferItems: 64,
		Metrics:     true,
		OnEvict: func(item *ristretto.Item[*MessageWrapper]) {
			m.RecordCacheEviction()
		},
	})
	if err != nil {
		return nil, err
	}

	return &MessageCache{
		cache:   cache,
		ttl:     cfg.ExpireDuration,
		metrics: m,
	}, nil
}

func cacheKey(fileID uint64, queueOffset int64) string {
	return strconv.FormatUint(fileID, 10) + ":" + strconv.FormatInt(queueOffset, 10)
}

// Get returns the cached wrapper for (file, offset), or nil
func (c *MessageCache) Get(file *flatfile.FlatFile, queueOffset int64) *MessageWrapper {
	wrapper, ok := c.cache.Get(cacheKey(file.ID(), queueOffset))
	if !ok {
		return nil
	}
	return wrapper
}

// Put inserts a wrapper under its (file, offset) key
func (c *MessageCache) Put(file *flatfile.FlatFile, wrapper *MessageWrapper) {
	cost := int64(len(wrapper.Buffer))
	if cost == 0 {
		cost = 1
	}
	c.cache.SetWithTTL(cacheKey(file.ID(), wrapper.CurOffset), wrapper, cost, c.ttl)
}

// Invalidate drops the entry for (file, offset)
func (c *MessageCache) Invalidate(file *flatfile.FlatFile, queueOffset int64) {
	c.cache.Del(cacheKey(file.ID(), queueOffset))
}

// Wait blocks until buffered writes are applied. Used by tests and by
// callers needing read-your-write visibility.
func (c *MessageCache) Wait() {
	c.cache.Wait()
}

// Hits returns the internal hit counter
func (c *MessageCache) Hits() uint64 {
	return c.cache.Metrics.Hits()
}

// Misses returns the internal miss counter
func (c *MessageCache) Misses() uint64 {
	return c.cache.Metrics.Misses()
}

// Close releases the cache
func (c *MessageCache) Close() {
	c.cache.Close()
}
