package flatfile

import (
	"context"
	"fmt"
	"testing"

	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) *PebbleProvider {
	t.Helper()
	provider, err := NewPebbleProvider(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })
	return provider
}

func seedQueue(t *testing.T, provider *PebbleProvider, mq storage.MessageQueue, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		body := []byte(fmt.Sprintf("message-%04d", i))
		_, _, err := provider.AppendMessage(mq, body, 1000+int64(i)*10, 0)
		require.NoError(t, err)
	}
}

func TestPebbleProvider_QueueBounds(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}

	_, err := provider.QueueBounds(mq)
	require.Error(t, err)
	assert.Equal(t, storage.CodeIllegalParam, storage.CodeOf(err))

	seedQueue(t, provider, mq, 10)

	bounds, err := provider.QueueBounds(mq)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bounds.MinOffset)
	assert.Equal(t, int64(10), bounds.CommitOffset)
	assert.Equal(t, int64(0), bounds.CommitLogMinOffset)
}

func TestPebbleProvider_Queues(t *testing.T) {
	provider := setupTestProvider(t)
	seedQueue(t, provider, storage.MessageQueue{Topic: "a", BrokerName: "broker-0", QueueID: 0}, 1)
	seedQueue(t, provider, storage.MessageQueue{Topic: "b", BrokerName: "broker-0", QueueID: 3}, 1)

	queues := provider.Queues()
	require.Len(t, queues, 2)
}

func TestPebbleProvider_ReadConsumeQueue(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, 20)

	ctx := context.Background()

	buf, err := provider.ReadConsumeQueue(ctx, mq, 5, 4)
	require.NoError(t, err)
	require.Len(t, buf, 4*storage.CQEntrySize)

	// entries reference increasing commit-log offsets
	prev := int64(-1)
	for pos := 0; pos < len(buf); pos += storage.CQEntrySize {
		offset := storage.CQEntryCommitLogOffset(buf, pos)
		assert.Greater(t, offset, prev)
		prev = offset
	}

	// request past the commit offset is truncated
	buf, err = provider.ReadConsumeQueue(ctx, mq, 18, 10)
	require.NoError(t, err)
	assert.Len(t, buf, 2*storage.CQEntrySize)
}

func TestPebbleProvider_ReadConsumeQueue_Errors(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, 10)

	ctx := context.Background()

	tests := []struct {
		name   string
		offset int64
		count  int
		code   storage.ErrorCode
	}{
		{"negative offset", -1, 4, storage.CodeIllegalParam},
		{"zero count", 0, 0, storage.CodeIllegalParam},
		{"at commit offset", 10, 4, storage.CodeNoNewData},
		{"past commit offset", 15, 4, storage.CodeNoNewData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.ReadConsumeQueue(ctx, mq, tt.offset, tt.count)
			require.Error(t, err)
			assert.Equal(t, tt.code, storage.CodeOf(err))
		})
	}
}

func TestPebbleProvider_ReadCommitLog(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, 10)

	ctx := context.Background()

	// locate the second message through its consume-queue entry
	cq, err := provider.ReadConsumeQueue(ctx, mq, 1, 1)
	require.NoError(t, err)
	offset := storage.CQEntryCommitLogOffset(cq, 0)
	size := storage.CQEntrySizeField(cq, 0)

	record, err := provider.ReadCommitLog(ctx, mq, offset, int64(size))
	require.NoError(t, err)
	require.Len(t, record, int(size))

	queueOffset, err := storage.MessageQueueOffset(record)
	require.NoError(t, err)
	assert.Equal(t, int64(1), queueOffset)

	body, err := storage.MessageBody(record)
	require.NoError(t, err)
	assert.Equal(t, []byte("message-0001"), body)
}

func TestPebbleProvider_ReadCommitLog_SpansRecords(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, 5)

	ctx := context.Background()

	cq, err := provider.ReadConsumeQueue(ctx, mq, 0, 5)
	require.NoError(t, err)
	lastPos := len(cq) - storage.CQEntrySize
	total := storage.CQEntryCommitLogOffset(cq, lastPos) + int64(storage.CQEntrySizeField(cq, lastPos))

	buf, err := provider.ReadCommitLog(ctx, mq, 0, total)
	require.NoError(t, err)
	require.Len(t, buf, int(total))

	messages := storage.SplitMessageBuffer(cq, buf)
	assert.Len(t, messages, 5)
}

func TestPebbleProvider_ReadCommitLog_Errors(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, 2)

	ctx := context.Background()

	_, err := provider.ReadCommitLog(ctx, mq, -1, 10)
	assert.Equal(t, storage.CodeIllegalParam, storage.CodeOf(err))

	_, err = provider.ReadCommitLog(ctx, mq, 0, 0)
	assert.Equal(t, storage.CodeIllegalParam, storage.CodeOf(err))

	_, err = provider.ReadCommitLog(ctx, mq, 1<<40, 10)
	assert.Equal(t, storage.CodeIllegalOffset, storage.CodeOf(err))
}

func TestPebbleProvider_Index(t *testing.T) {
	provider := setupTestProvider(t)

	entry := EncodeIndexEntry(IndexEntry{Hash: 1, TopicID: 1, QueueID: 0, CommitLogOffset: 0, Size: 64, TimeDiff: 100})
	require.NoError(t, provider.AppendIndexEntry(1000, entry))
	require.NoError(t, provider.AppendIndexEntry(1000, entry))
	require.NoError(t, provider.AppendIndexEntry(5000, entry))

	require.Error(t, provider.AppendIndexEntry(1000, []byte("short")))

	blocks, err := provider.ReadIndex(context.Background(), 0, 2000)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, int64(1000), blocks[0].BeginTimestamp)
	assert.Len(t, blocks[0].Entries, 2*IndexEntrySize)

	blocks, err = provider.ReadIndex(context.Background(), 0, 10000)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}
