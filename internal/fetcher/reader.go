package fetcher

import (
	"context"
	"strconv"
	"time"

	"github.com/flowmesh/tieredstore/internal/future"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
)

// fetchMessageFromTier pulls a consume-queue slice and the matching
// commit-log slice from the backing tier and splits them into messages.
// Backend failures never escape; they are mapped to result statuses.
func (f *Fetcher) fetchMessageFromTier(ctx context.Context, file *flatfile.FlatFile, queueOffset int64, batchSize int) *future.Future[*storage.GetMessageResult] {
	out := future.New[*storage.GetMessageResult]()
	go func() {
		out.Complete(f.readTier(ctx, file, queueOffset, batchSize))
	}()
	return out
}

func (f *Fetcher) readTier(ctx context.Context, file *flatfile.FlatFile, queueOffset int64, batchSize int) *storage.GetMessageResult {
	mq := file.MessageQueue()
	started := time.Now()

	result := &storage.GetMessageResult{}
	if bounds, err := file.Bounds(); err == nil {
		result.MinOffset = bounds.MinOffset
		result.MaxOffset = bounds.CommitOffset
	}

	finish := func() *storage.GetMessageResult {
		var bytes int64
		for _, msg := range result.Messages {
			bytes += int64(len(msg.Buffer))
		}
		f.metrics.RecordFetch(mq.Topic, queueName(mq), result.Status.String(), result.MessageCount(), bytes, time.Since(started))
		return result
	}

	cqBuf, err := file.GetConsumeQueue(ctx, queueOffset, batchSize)
	if err != nil {
		switch storage.CodeOf(err) {
		case storage.CodeNoNewData:
			result.Status = storage.StatusOffsetOverflowOne
		default:
			result.Status = storage.StatusOffsetFoundNull
		}
		result.NextBeginOffset = queueOffset
		return finish()
	}
	if len(cqBuf) < storage.CQEntrySize {
		result.Status = storage.StatusOffsetFoundNull
		result.NextBeginOffset = queueOffset
		return finish()
	}

	firstCommitLogOffset := storage.CQEntryCommitLogOffset(cqBuf, 0)
	lastPos := len(cqBuf) - storage.CQEntrySize
	lastCommitLogOffset := storage.CQEntryCommitLogOffset(cqBuf, lastPos)
	if lastCommitLogOffset < firstCommitLogOffset {
		f.log.Error().
			Str("topic", mq.Topic).
			Int32("queue_id", mq.QueueID).
			Int("batch_size", batchSize).
			Int64("queue_offset", queueOffset).
			Msg("Message is not in order")
		result.Status = storage.StatusOffsetFoundNull
		result.NextBeginOffset = queueOffset
		return finish()
	}

	length := lastCommitLogOffset - firstCommitLogOffset + int64(storage.CQEntrySizeField(cqBuf, lastPos))

	// Truncate from the tail until the commit-log read fits the size cap
	originLength := length
	for len(cqBuf) > storage.CQEntrySize && length > f.cfg.MessageSizeThreshold {
		cqBuf = cqBuf[:len(cqBuf)-storage.CQEntrySize]
		lastPos = len(cqBuf) - storage.CQEntrySize
		length = storage.CQEntryCommitLogOffset(cqBuf, lastPos) - firstCommitLogOffset + int64(storage.CQEntrySizeField(cqBuf, lastPos))
	}
	if originLength != length {
		f.log.Info().
			Str("topic", mq.Topic).
			Int32("queue_id", mq.QueueID).
			Int("batch_size", batchSize).
			Int64("origin_length", originLength).
			Int64("length", length).
			Msg("Message data is too large, shrinking read range")
	}

	msgBuf, err := file.GetCommitLog(ctx, firstCommitLogOffset, length)
	if err != nil {
		f.log.Warn().Err(err).
			Str("topic", mq.Topic).
			Int32("queue_id", mq.QueueID).
			Msg("Get message failed")
		result.Status = storage.StatusOffsetFoundNull
		result.NextBeginOffset = queueOffset
		return finish()
	}

	messages := storage.SplitMessageBuffer(cqBuf, msgBuf)
	requestCount := len(cqBuf) / storage.CQEntrySize
	if len(messages) > 0 {
		result.Status = storage.StatusFound
		result.NextBeginOffset = queueOffset + int64(len(messages))
		result.Messages = messages
		if requestCount != len(messages) {
			f.log.Error().
				Int("batch_size", batchSize).
				Int("request_count", requestCount).
				Int("actual_count", len(messages)).
				Int64("queue_offset", queueOffset).
				Msg("Split message buffer failed, some messages may be lost")
		} else if requestCount != batchSize {
			f.log.Debug().
				Int("batch_size", batchSize).
				Int("request_count", requestCount).
				Msg("Message count does not meet batch size, maybe dispatch delay")
		}
		return finish()
	}

	nextBeginOffset := queueOffset + int64(requestCount)
	f.log.Error().
		Int("consume_queue_size", len(cqBuf)).
		Int("message_buffer_size", len(msgBuf)).
		Int64("queue_offset", queueOffset).
		Int64("next_begin_offset", nextBeginOffset).
		Msg("Split message buffer produced nothing")
	result.Status = storage.StatusMessageWasRemoving
	result.NextBeginOffset = nextBeginOffset
	return finish()
}

func queueName(mq storage.MessageQueue) string {
	return strconv.Itoa(int(mq.QueueID))
}
