package flatfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexEntry_RoundTrip(t *testing.T) {
	entry := IndexEntry{
		Hash:            12345,
		TopicID:         7,
		QueueID:         2,
		CommitLogOffset: 1 << 40,
		Size:            512,
		TimeDiff:        60000,
	}

	buf := EncodeIndexEntry(entry)
	require.Len(t, buf, IndexEntrySize)
	assert.Equal(t, entry, DecodeIndexEntry(buf, 0))
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "orders#k-1", BuildKey("orders", "k-1"))
}

func TestIndexKeyHash(t *testing.T) {
	// 31-based rolling hash: "ab" = 31*'a' + 'b'
	assert.Equal(t, int32(31*int32('a')+int32('b')), IndexKeyHash("ab"))

	// never negative
	assert.GreaterOrEqual(t, IndexKeyHash("some#very-long-key-that-overflows-0123456789"), int32(0))

	// stable across calls
	assert.Equal(t, IndexKeyHash("orders#k-1"), IndexKeyHash(BuildKey("orders", "k-1")))
}
