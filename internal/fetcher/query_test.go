package fetcher

import (
	"context"
	"testing"

	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
	"github.com/flowmesh/tieredstore/internal/storage/metastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedIndexedQueue seeds a queue and builds index entries for every message
// under the given key, stamped relative to baseTime
func seedIndexedQueue(t *testing.T, env *testEnv, topic, key string, topicID int32, count int) {
	t.Helper()

	mq := storage.MessageQueue{Topic: topic, BrokerName: testBroker, QueueID: 0}
	env.provider.seed(mq, count)

	q := env.provider.get(mq)
	hash := flatfile.IndexKeyHash(flatfile.BuildKey(topic, key))

	var entries []byte
	for i := 0; i < count; i++ {
		offset := storage.CQEntryCommitLogOffset(q.cq, i*storage.CQEntrySize)
		size := storage.CQEntrySizeField(q.cq, i*storage.CQEntrySize)
		entries = append(entries, flatfile.EncodeIndexEntry(flatfile.IndexEntry{
			Hash:            hash,
			TopicID:         topicID,
			QueueID:         0,
			CommitLogOffset: offset,
			Size:            size,
			TimeDiff:        int32(i * 10),
		})...)
	}
	env.provider.index = append(env.provider.index, flatfile.IndexBlock{BeginTimestamp: 1000, Entries: entries})
}

func registerTopic(t *testing.T, env *testEnv, topic string, topicID int32) {
	t.Helper()
	meta, err := metastore.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, meta.CreateTopic(&metastore.TopicMetadata{Topic: topic, TopicID: topicID}))
	env.fetcher.meta = meta
}

func queryResult(t *testing.T, env *testEnv, topic, key string, maxCount int, begin, end int64) *storage.QueryMessageResult {
	t.Helper()
	res, err := env.fetcher.QueryMessageAsync(context.Background(), topic, key, maxCount, begin, end).Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestQueryMessageAsync_FindsByKey(t *testing.T) {
	env := setupTestFetcher(t, nil)
	registerTopic(t, env, "test-topic", 3)
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 5)

	res := queryResult(t, env, "test-topic", "k-1", 10, 1000, 2000)
	require.Equal(t, 5, res.MessageCount())

	for i, buf := range res.Messages {
		queueOffset, err := storage.MessageQueueOffset(buf)
		require.NoError(t, err)
		assert.Equal(t, int64(i), queueOffset)
	}
}

func TestQueryMessageAsync_MissingMetadataIsEmpty(t *testing.T) {
	env := setupTestFetcher(t, nil)
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 5)

	res := queryResult(t, env, "test-topic", "k-1", 10, 0, 5000)
	assert.Equal(t, 0, res.MessageCount())
}

func TestQueryMessageAsync_FiltersByTimeRange(t *testing.T) {
	env := setupTestFetcher(t, nil)
	registerTopic(t, env, "test-topic", 3)
	// entries stamped 1000, 1010, ..., 1040
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 5)

	res := queryResult(t, env, "test-topic", "k-1", 10, 1010, 1030)
	assert.Equal(t, 3, res.MessageCount())
}

func TestQueryMessageAsync_FiltersByHash(t *testing.T) {
	env := setupTestFetcher(t, nil)
	registerTopic(t, env, "test-topic", 3)
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 5)

	// wrong key: hash mismatch
	res := queryResult(t, env, "test-topic", "other-key", 10, 0, 5000)
	assert.Equal(t, 0, res.MessageCount())
}

func TestQueryMessageAsync_TopicIDMismatchIsEmpty(t *testing.T) {
	env := setupTestFetcher(t, nil)
	// metadata says topic id 9, index entries carry 3
	registerTopic(t, env, "test-topic", 9)
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 5)

	res := queryResult(t, env, "test-topic", "k-1", 10, 0, 5000)
	assert.Equal(t, 0, res.MessageCount())
}

func TestQueryMessageAsync_StopsAtMaxCount(t *testing.T) {
	env := setupTestFetcher(t, nil)
	registerTopic(t, env, "test-topic", 3)
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 20)

	res := queryResult(t, env, "test-topic", "k-1", 7, 0, 5000)
	assert.Equal(t, 7, res.MessageCount())
}

func TestQueryMessageAsync_SkipsMalformedBlocks(t *testing.T) {
	env := setupTestFetcher(t, nil)
	registerTopic(t, env, "test-topic", 3)
	seedIndexedQueue(t, env, "test-topic", "k-1", 3, 5)

	// prepend a block whose size is not a multiple of the entry width
	env.provider.index = append([]flatfile.IndexBlock{
		{BeginTimestamp: 500, Entries: []byte("garbage")},
	}, env.provider.index...)

	res := queryResult(t, env, "test-topic", "k-1", 10, 1000, 2000)
	assert.Equal(t, 5, res.MessageCount())
}
