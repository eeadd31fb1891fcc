package fetcher

import (
	"context"
	"time"

	"github.com/flowmesh/tieredstore/internal/config"
	"github.com/flowmesh/tieredstore/internal/future"
	"github.com/flowmesh/tieredstore/internal/logger"
	"github.com/flowmesh/tieredstore/internal/metrics"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
	"github.com/flowmesh/tieredstore/internal/storage/metastore"
	"github.com/rs/zerolog"
)

// Config tunes the fetcher core
type Config struct {
	// BrokerName is the broker identity used to resolve flat files
	BrokerName string

	// CacheMaxWeight bounds read-ahead cache bytes
	CacheMaxWeight int64

	// CacheExpireDuration is the cache time-to-live from write
	CacheExpireDuration time.Duration

	// MessageCountThreshold caps total prefetch message count per trigger
	MessageCountThreshold int

	// MessageSizeThreshold caps commit-log bytes per backend fetch
	MessageSizeThreshold int64

	// BatchSizeFactorThreshold is the factor above which prefetch fans out
	// to multiple concurrent batches
	BatchSizeFactorThreshold int

	// MinFactor is the batch multiplier for synchronous full-miss fetches
	MinFactor int
}

// NewConfigFromApp derives the fetcher config from application configuration
func NewConfigFromApp(cfg *config.Config) Config {
	return Config{
		BrokerName:               cfg.Store.BrokerName,
		CacheMaxWeight:           cfg.CacheMaxWeight(),
		CacheExpireDuration:      cfg.ReadAhead.CacheExpireDuration,
		MessageCountThreshold:    cfg.ReadAhead.MessageCountThreshold,
		MessageSizeThreshold:     cfg.ReadAhead.MessageSizeThreshold,
		BatchSizeFactorThreshold: cfg.ReadAhead.BatchSizeFactorThreshold,
		MinFactor:                cfg.ReadAhead.MinFactor,
	}
}

// Fetcher serves consumer pull requests for messages whose bodies live on
// the tiered backend, hiding the backend's latency behind a read-ahead
// cache, an adaptive prefetcher, and in-flight request coalescing.
type Fetcher struct {
	cfg     Config
	manager *flatfile.Manager
	meta    *metastore.Store
	cache   *MessageCache
	metrics *metrics.FetcherMetrics
	log     zerolog.Logger
}

// NewFetcher builds the fetcher and its read-ahead cache
func NewFetcher(cfg Config, manager *flatfile.Manager, meta *metastore.Store, m *metrics.FetcherMetrics) (*Fetcher, error) {
	cache, err := NewMessageCache(CacheConfig{
		MaxWeight:      cfg.CacheMaxWeight,
		ExpireDuration: cfg.CacheExpireDuration,
	}, m)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		cfg:     cfg,
		manager: manager,
		meta:    meta,
		cache:   cache,
		metrics: m,
		log:     logger.WithComponent("fetcher"),
	}, nil
}

// Cache exposes the read-ahead cache for metrics and tests
func (f *Fetcher) Cache() *MessageCache {
	return f.cache
}

// Close releases the fetcher's resources
func (f *Fetcher) Close() {
	f.cache.Close()
}

// GetMessageAsync serves one pull request. The returned future resolves to
// a result whose status is never an error: backend failures are mapped to
// status codes.
//
// The filter argument is accepted for interface compatibility and threaded
// through untouched; tag filtering happens on the broker side.
func (f *Fetcher) GetMessageAsync(ctx context.Context, group, topic string, queueID int32, queueOffset int64, maxCount int, filter storage.MessageFilter) *future.Future[*storage.GetMessageResult] {
	mq := storage.MessageQueue{Topic: topic, BrokerName: f.cfg.BrokerName, QueueID: queueID}
	ctx, span := StartGetMessageSpan(ctx, mq, group, queueOffset, maxCount)

	out := f.getMessageAsync(ctx, mq, group, queueOffset, maxCount, filter)
	go func() {
		res, _ := out.MustGet()
		if res != nil {
			finishGetMessageSpan(span, res)
		} else {
			span.End()
		}
	}()
	return out
}

func (f *Fetcher) getMessageAsync(ctx context.Context, mq storage.MessageQueue, group string, queueOffset int64, maxCount int, filter storage.MessageFilter) *future.Future[*storage.GetMessageResult] {
	file := f.manager.GetFlatFile(mq)

	if file == nil {
		return future.Completed(&storage.GetMessageResult{
			Status:          storage.StatusNoMatchedLogicQueue,
			NextBeginOffset: queueOffset,
		})
	}

	result := &storage.GetMessageResult{}
	if bounds, err := file.Bounds(); err == nil {
		result.MinOffset = bounds.MinOffset
		result.MaxOffset = bounds.CommitOffset
	}

	// Fill result according to the file offset range.
	// Condition     | Result           | Fix to
	// max <= 0      | no message       | current offset
	// (-oo, min)    | too small        | min offset
	// [min, max)    | correct          |
	// [max, max]    | overflow one     | max offset
	// (max, +oo)    | overflow badly   | max offset
	switch {
	case result.MaxOffset <= 0:
		result.Status = storage.StatusNoMessageInQueue
		result.NextBeginOffset = queueOffset
		return future.Completed(result)
	case queueOffset < result.MinOffset:
		result.Status = storage.StatusOffsetTooSmall
		result.NextBeginOffset = result.MinOffset
		return future.Completed(result)
	case queueOffset == result.MaxOffset:
		result.Status = storage.StatusOffsetOverflowOne
		result.NextBeginOffset = result.MaxOffset
		return future.Completed(result)
	case queueOffset > result.MaxOffset:
		result.Status = storage.StatusOffsetOverflowBadly
		result.NextBeginOffset = result.MaxOffset
		return future.Completed(result)
	}

	return f.getMessageFromCacheAsync(ctx, file, group, queueOffset, maxCount, true)
}

// getMessageFromCacheAsync is the cache-first serving path. A request may
// await at most one in-flight fetch cycle before issuing its own fetch.
func (f *Fetcher) getMessageFromCacheAsync(ctx context.Context, file *flatfile.FlatFile, group string, queueOffset int64, maxCount int, waitInflightRequest bool) *future.Future[*storage.GetMessageResult] {
	mq := file.MessageQueue()

	lastGetOffset := queueOffset - 1
	wrappers := make([]*MessageWrapper, 0, maxCount)
	for i := 0; i < maxCount; i++ {
		lastGetOffset++
		wrapper := f.cache.Get(file, lastGetOffset)
		if wrapper == nil {
			lastGetOffset--
			break
		}
		wrappers = append(wrappers, wrapper)
	}

	// only record cache access once per request
	if waitInflightRequest {
		f.metrics.RecordCacheAccess(mq.Topic, group, maxCount, len(wrappers))
	}

	// If the cache is cold and a fetch for this range is in transit, wait
	// for it instead of issuing a duplicate.
	if len(wrappers) == 0 && waitInflightRequest {
		fut := file.Inflight().GetInflightRequestByRange(queueOffset, maxCount).Future(queueOffset)
		if !fut.IsDone() {
			f.metrics.RecordInflightWait(mq.Topic, group)
			out := future.New[*storage.GetMessageResult]()
			go func() {
				started := time.Now()
				<-fut.Done()
				f.log.Debug().Dur("wait", time.Since(started)).Msg("Waited for in-flight request")
				// to prevent starvation, only wait for an in-flight request once
				inner := f.getMessageFromCacheAsync(ctx, file, group, queueOffset, maxCount, false)
				res, _ := inner.Get(ctx)
				if res == nil {
					res = &storage.GetMessageResult{Status: storage.StatusOffsetFoundNull, NextBeginOffset: queueOffset}
				}
				out.Complete(res)
			}()
			return out
		}
	}

	// try the cache again once the in-flight request is done
	for i := 0; i < maxCount-len(wrappers); i++ {
		lastGetOffset++
		wrapper := f.cache.Get(file, lastGetOffset)
		if wrapper == nil {
			lastGetOffset--
			break
		}
		wrappers = append(wrappers, wrapper)
	}

	f.recordCacheAccess(file, group, queueOffset, wrappers)

	// Cache hit: return immediately and prefetch for later requests
	if len(wrappers) > 0 {
		f.log.Debug().
			Str("topic", mq.Topic).
			Int32("queue_id", mq.QueueID).
			Int64("queue_offset", queueOffset).
			Int("max_count", maxCount).
			Int("hit_count", len(wrappers)).
			Msg("Cache hit")

		go f.prefetchMessage(file, group, maxCount, lastGetOffset+1)

		result := &storage.GetMessageResult{Status: storage.StatusFound}
		if bounds, err := file.Bounds(); err == nil {
			result.MinOffset = bounds.MinOffset
			result.MaxOffset = bounds.CommitOffset
		}
		result.NextBeginOffset = queueOffset + int64(len(wrappers))
		for _, wrapper := range wrappers {
			result.AddMessage(wrapper.Buffer, wrapper.CurOffset)
		}
		return future.Completed(result)
	}

	// Full miss: pull synchronously and install an in-flight entry so
	// concurrent callers coalesce onto this fetch.
	f.log.Warn().
		Str("topic", mq.Topic).
		Int32("queue_id", mq.QueueID).
		Int64("queue_offset", queueOffset).
		Int("max_count", maxCount).
		Msg("Cache miss")

	file.Lock()
	batchSize := maxCount * f.cfg.MinFactor
	tierFut := f.fetchMessageFromTier(ctx, file, queueOffset, batchSize)

	resultFut := future.New[*storage.GetMessageResult]()
	inflightFut := future.New[int64]()
	go func() {
		result, _ := tierFut.Get(ctx)
		if result == nil {
			result = &storage.GetMessageResult{Status: storage.StatusOffsetFoundNull, NextBeginOffset: queueOffset}
		}
		if result.Status != storage.StatusFound {
			resultFut.Complete(result)
			inflightFut.Complete(-1)
			return
		}

		newResult := &storage.GetMessageResult{Status: storage.StatusFound}
		if bounds, err := file.Bounds(); err == nil {
			newResult.MinOffset = bounds.MinOffset
			newResult.MaxOffset = bounds.CommitOffset
		}

		minOffset := result.Messages[0].QueueOffset
		maxOffset := result.Messages[len(result.Messages)-1].QueueOffset
		size := len(result.Messages)
		for _, msg := range result.Messages {
			wrapper := &MessageWrapper{
				Buffer:    msg.Buffer,
				CurOffset: msg.QueueOffset,
				MinOffset: minOffset,
				MaxOffset: maxOffset,
				Size:      size,
			}
			// returned entries start used so a lone consumer can reclaim them
			wrapper.AddAccessCount()
			f.cache.Put(file, wrapper)
			if newResult.MessageCount() < maxCount {
				newResult.AddMessage(msg.Buffer, msg.QueueOffset)
			}
		}
		newResult.NextBeginOffset = queueOffset + int64(newResult.MessageCount())
		// waiters re-probe the cache as soon as the in-flight future resolves
		f.cache.Wait()
		file.RecordPrefetchOffset(maxOffset)
		resultFut.Complete(newResult)
		inflightFut.Complete(newResult.LastQueueOffset())
	}()

	file.Inflight().PutInflightRequest(group, queueOffset, batchSize, []flatfile.RequestPart{
		{BatchSize: batchSize, Future: inflightFut},
	})
	file.Unlock()

	return resultFut
}

// recordCacheAccess bumps access counts on every served wrapper and drops
// entries every active group has already read
func (f *Fetcher) recordCacheAccess(file *flatfile.FlatFile, group string, queueOffset int64, wrappers []*MessageWrapper) {
	if len(wrappers) > 0 {
		queueOffset = wrappers[len(wrappers)-1].CurOffset
	}
	file.RecordGroupAccess(group, queueOffset)

	activeGroups := int32(file.ActiveGroupCount())
	for _, wrapper := range wrappers {
		if wrapper.AddAccessCount() >= activeGroups {
			f.cache.Invalidate(file, wrapper.CurOffset)
		}
	}
}

// GetEarliestMessageTime resolves to the store timestamp of the earliest
// message on the tiered backend, or -1 when unavailable
func (f *Fetcher) GetEarliestMessageTime(ctx context.Context, topic string, queueID int32) *future.Future[int64] {
	mq := storage.MessageQueue{Topic: topic, BrokerName: f.cfg.BrokerName, QueueID: queueID}
	file := f.manager.GetFlatFile(mq)
	if file == nil {
		return future.Completed[int64](-1)
	}

	out := future.New[int64]()
	go func() {
		bounds, err := file.Bounds()
		if err != nil {
			out.Complete(-1)
			return
		}
		header, err := file.GetCommitLog(ctx, bounds.CommitLogMinOffset, storage.StoreTimestampPosition+8)
		if err != nil {
			out.Complete(-1)
			return
		}
		ts, err := storage.MessageStoreTimestamp(header)
		if err != nil {
			out.Complete(-1)
			return
		}
		out.Complete(ts)
	}()
	return out
}

// GetMessageStoreTimestamp resolves to the store timestamp of the message
// at queueOffset, or -1 on any failure
func (f *Fetcher) GetMessageStoreTimestamp(ctx context.Context, topic string, queueID int32, queueOffset int64) *future.Future[int64] {
	mq := storage.MessageQueue{Topic: topic, BrokerName: f.cfg.BrokerName, QueueID: queueID}
	file := f.manager.GetFlatFile(mq)
	if file == nil {
		return future.Completed[int64](-1)
	}

	out := future.New[int64]()
	go func() {
		entry, err := file.GetConsumeQueueEntry(ctx, queueOffset)
		if err != nil || len(entry) < storage.CQEntrySize {
			f.logTimestampFailure(topic, queueID, queueOffset, err)
			out.Complete(-1)
			return
		}
		commitLogOffset := storage.CQEntryCommitLogOffset(entry, 0)
		size := storage.CQEntrySizeField(entry, 0)
		record, err := file.GetCommitLog(ctx, commitLogOffset, int64(size))
		if err != nil {
			f.logTimestampFailure(topic, queueID, queueOffset, err)
			out.Complete(-1)
			return
		}
		ts, err := storage.MessageStoreTimestamp(record)
		if err != nil {
			f.logTimestampFailure(topic, queueID, queueOffset, err)
			out.Complete(-1)
			return
		}
		out.Complete(ts)
	}()
	return out
}

func (f *Fetcher) logTimestampFailure(topic string, queueID int32, queueOffset int64, err error) {
	f.log.Error().Err(err).
		Str("topic", topic).
		Int32("queue_id", queueID).
		Int64("queue_offset", queueOffset).
		Msg("Get or decode message store timestamp failed")
}

// GetOffsetInQueueByTime returns the queue offset matching a timestamp, or
// -1 on failure
func (f *Fetcher) GetOffsetInQueueByTime(ctx context.Context, topic string, queueID int32, timestamp int64, boundary storage.BoundaryType) int64 {
	mq := storage.MessageQueue{Topic: topic, BrokerName: f.cfg.BrokerName, QueueID: queueID}
	file := f.manager.GetFlatFile(mq)
	if file == nil {
		return -1
	}

	offset, err := file.GetOffsetInConsumeQueueByTime(ctx, timestamp, boundary)
	if err != nil {
		f.log.Error().Err(err).
			Str("topic", topic).
			Int32("queue_id", queueID).
			Int64("timestamp", timestamp).
			Msg("Get offset in queue by time failed")
		return -1
	}
	return offset
}
