package flatfile

import (
	"context"

	"github.com/flowmesh/tieredstore/internal/storage"
)

// QueueBounds holds the logical offset range of one queue on the tiered backend
type QueueBounds struct {
	// MinOffset is the first readable queue offset
	MinOffset int64

	// CommitOffset is the next queue offset to be written (one past the last)
	CommitOffset int64

	// CommitLogMinOffset is the byte offset of the earliest commit-log record
	CommitLogMinOffset int64
}

// IndexBlock is one stored block of fixed-width index entries
type IndexBlock struct {
	// BeginTimestamp is the base timestamp of the block; entries store
	// time deltas relative to it
	BeginTimestamp int64

	// Entries holds packed index entries (IndexEntrySize bytes each)
	Entries []byte
}

// Provider reads from the latency-bound backing tier. Implementations map
// domain failures to storage.StoreError codes: reading at or past the commit
// offset yields CodeNoNewData, malformed arguments CodeIllegalParam, offsets
// below the minimum CodeIllegalOffset.
type Provider interface {
	// ReadConsumeQueue returns count fixed-size consume-queue entries
	// starting at the given queue offset. Fewer entries may be returned
	// when the commit offset is closer than count.
	ReadConsumeQueue(ctx context.Context, queue storage.MessageQueue, offset int64, count int) ([]byte, error)

	// ReadCommitLog returns length bytes of the commit log starting at
	// the given byte offset
	ReadCommitLog(ctx context.Context, queue storage.MessageQueue, offset int64, length int64) ([]byte, error)

	// ReadIndex returns index blocks whose time ranges may overlap
	// [beginTime, endTime]
	ReadIndex(ctx context.Context, beginTime, endTime int64) ([]IndexBlock, error)

	// QueueBounds returns the offset bounds of a queue, or a StoreError
	// if the queue is unknown to the backend
	QueueBounds(queue storage.MessageQueue) (QueueBounds, error)

	// Queues lists the queues the backend currently holds
	Queues() []storage.MessageQueue

	// Close releases backend resources
	Close() error
}
