package fetcher

import (
	"context"

	"github.com/flowmesh/tieredstore/internal/future"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
)

// prefetchMessage amplifies the next expected read by the adaptive factor
// and fans the fetches out across concurrent batches. Invoked after every
// cache-hit serving path.
func (f *Fetcher) prefetchMessage(file *flatfile.FlatFile, group string, maxCount int, nextBeginOffset int64) {
	if maxCount == 1 || file.ReadAheadFactor() == 1 {
		return
	}

	mq := file.MessageQueue()

	// make sure there is only one request per group and request range
	prefetchBatchSize := min(maxCount*file.ReadAheadFactor(), f.cfg.MessageCountThreshold)
	inflight := file.Inflight().GetInflightRequest(group, nextBeginOffset, prefetchBatchSize)
	if !inflight.IsAllDone() {
		return
	}

	file.Lock()
	defer file.Unlock()

	inflight = file.Inflight().GetInflightRequestByRange(nextBeginOffset, maxCount)
	if !inflight.IsAllDone() {
		return
	}

	maxOffsetOfLastRequest := file.LastPrefetchOffset()
	lastRequestIsExpired := f.cache.Get(file, nextBeginOffset) == nil

	f.log.Debug().
		Str("group", group).
		Int64("next_begin_offset", nextBeginOffset).
		Int64("max_offset_of_last_request", maxOffsetOfLastRequest).
		Bool("last_request_is_expired", lastRequestIsExpired).
		Msg("Prefetch trigger")

	if !lastRequestIsExpired &&
		(maxOffsetOfLastRequest == -1 || nextBeginOffset < inflight.StartOffset()) {
		return
	}

	var queueOffset int64
	if lastRequestIsExpired {
		// the previously prefetched window expired before it was read
		queueOffset = nextBeginOffset
		file.DecreaseReadAheadFactor()
	} else {
		queueOffset = maxOffsetOfLastRequest + 1
		if queueOffset < nextBeginOffset {
			queueOffset = nextBeginOffset
		}
		file.IncreaseReadAheadFactor()
	}

	factor := min(file.ReadAheadFactor(), f.cfg.MessageCountThreshold/maxCount)
	if factor < 1 {
		factor = 1
	}
	flag := 0
	concurrency := 1
	if factor > f.cfg.BatchSizeFactorThreshold {
		if factor%f.cfg.BatchSizeFactorThreshold != 0 {
			flag = 1
		}
		concurrency = factor/f.cfg.BatchSizeFactorThreshold + flag
	}
	requestBatchSize := maxCount * min(factor, f.cfg.BatchSizeFactorThreshold)

	parts := make([]flatfile.RequestPart, 0, concurrency)
	nextQueueOffset := queueOffset
	if flag == 1 {
		firstBatchSize := factor % f.cfg.BatchSizeFactorThreshold * maxCount
		fut := f.prefetchAndPutToCache(file, nextQueueOffset, firstBatchSize)
		parts = append(parts, flatfile.RequestPart{BatchSize: firstBatchSize, Future: fut})
		nextQueueOffset += int64(firstBatchSize)
	}
	for i := 0; i < concurrency-flag; i++ {
		fut := f.prefetchAndPutToCache(file, nextQueueOffset+int64(i*requestBatchSize), requestBatchSize)
		parts = append(parts, flatfile.RequestPart{BatchSize: requestBatchSize, Future: fut})
	}
	file.Inflight().PutInflightRequest(group, queueOffset, maxCount*factor, parts)

	f.metrics.RecordPrefetch(mq.Topic, group, len(parts))
	f.metrics.SetReadAheadFactor(mq.Topic, queueName(mq), file.ReadAheadFactor())

	f.log.Debug().
		Int64("next_begin_offset", nextBeginOffset).
		Int64("request_offset", queueOffset).
		Int("factor", factor).
		Int("request_batch_size", requestBatchSize).
		Int("concurrency", concurrency).
		Msg("Prefetching messages for later requests")
}

// prefetchAndPutToCache issues one backend fetch and populates the cache
// with every returned message. The returned future resolves to the max
// queue offset produced, or -1 on any abnormal outcome so waiters can fall
// back to a direct fetch.
func (f *Fetcher) prefetchAndPutToCache(file *flatfile.FlatFile, queueOffset int64, batchSize int) *future.Future[int64] {
	mq := file.MessageQueue()
	out := future.New[int64]()

	tierFut := f.fetchMessageFromTier(context.Background(), file, queueOffset, batchSize)
	go func() {
		result, _ := tierFut.MustGet()
		if result == nil || result.Status != storage.StatusFound {
			status := "nil"
			if result != nil {
				status = result.Status.String()
			}
			f.log.Warn().
				Str("topic", mq.Topic).
				Int32("queue_id", mq.QueueID).
				Int64("queue_offset", queueOffset).
				Int("batch_size", batchSize).
				Str("status", status).
				Msg("Read ahead failed")
			out.Complete(-1)
			return
		}
		if result.MessageCount() == 0 {
			f.log.Error().
				Str("topic", mq.Topic).
				Int32("queue_id", mq.QueueID).
				Int64("queue_offset", queueOffset).
				Int("batch_size", batchSize).
				Msg("Read ahead result is FOUND but message list is empty")
			out.Complete(-1)
			return
		}

		minOffset := result.Messages[0].QueueOffset
		maxOffset := result.Messages[len(result.Messages)-1].QueueOffset
		size := result.MessageCount()
		for _, msg := range result.Messages {
			f.cache.Put(file, &MessageWrapper{
				Buffer:    msg.Buffer,
				CurOffset: msg.QueueOffset,
				MinOffset: minOffset,
				MaxOffset: maxOffset,
				Size:      size,
			})
		}
		if size != batchSize || maxOffset != queueOffset+int64(batchSize)-1 {
			f.log.Warn().
				Int("expected", batchSize).
				Int("actual", size).
				Int64("queue_offset", queueOffset).
				Int64("min_offset", minOffset).
				Int64("expected_max_offset", queueOffset+int64(batchSize)-1).
				Int64("max_offset", maxOffset).
				Msg("Read ahead size does not match request")
		}
		// waiters re-probe the cache as soon as this future resolves
		f.cache.Wait()
		file.RecordPrefetchOffset(maxOffset)
		out.Complete(maxOffset)
	}()
	return out
}
