package fetcher

import (
	"testing"
	"time"

	"github.com/flowmesh/tieredstore/internal/metrics"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*MessageCache, *flatfile.FlatFile, *flatfile.FlatFile) {
	t.Helper()

	cache, err := NewMessageCache(CacheConfig{
		MaxWeight:      1 << 20,
		ExpireDuration: ttl,
	}, metrics.NewFetcherMetrics())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	provider := newMemProvider()
	a := flatfile.NewFlatFile(storage.MessageQueue{Topic: "a", BrokerName: testBroker, QueueID: 0}, provider, flatfile.Options{})
	b := flatfile.NewFlatFile(storage.MessageQueue{Topic: "b", BrokerName: testBroker, QueueID: 0}, provider, flatfile.Options{})
	return cache, a, b
}

func TestMessageCache_PutGetInvalidate(t *testing.T) {
	cache, file, _ := setupTestCache(t, time.Minute)

	wrapper := &MessageWrapper{Buffer: []byte("payload"), CurOffset: 42, MinOffset: 40, MaxOffset: 49, Size: 10}
	cache.Put(file, wrapper)
	cache.Wait()

	got := cache.Get(file, 42)
	require.NotNil(t, got)
	assert.Equal(t, wrapper, got)
	assert.Nil(t, cache.Get(file, 43))

	cache.Invalidate(file, 42)
	cache.Wait()
	assert.Nil(t, cache.Get(file, 42))
}

func TestMessageCache_KeysAreScopedPerFile(t *testing.T) {
	cache, a, b := setupTestCache(t, time.Minute)

	cache.Put(a, &MessageWrapper{Buffer: []byte("from-a"), CurOffset: 7})
	cache.Wait()

	assert.NotNil(t, cache.Get(a, 7))
	assert.Nil(t, cache.Get(b, 7), "same offset on another flat file must not collide")
}

func TestMessageCache_ExpiresAfterWrite(t *testing.T) {
	cache, file, _ := setupTestCache(t, 20*time.Millisecond)

	cache.Put(file, &MessageWrapper{Buffer: []byte("short-lived"), CurOffset: 1})
	cache.Wait()
	require.NotNil(t, cache.Get(file, 1))

	time.Sleep(40 * time.Millisecond)
	assert.Nil(t, cache.Get(file, 1))
}

func TestMessageCache_AccessCount(t *testing.T) {
	wrapper := &MessageWrapper{Buffer: []byte("x"), CurOffset: 0}
	assert.Equal(t, int32(0), wrapper.AccessCount())
	assert.Equal(t, int32(1), wrapper.AddAccessCount())
	assert.Equal(t, int32(2), wrapper.AddAccessCount())
	assert.Equal(t, int32(2), wrapper.AccessCount())
}
