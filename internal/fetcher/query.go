package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh/tieredstore/internal/future"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
)

// QueryMessageAsync looks messages up by key through the backend's index
// file, bypassing the read-ahead cache. Errors are soft: any failure
// collapses to an empty result.
func (f *Fetcher) QueryMessageAsync(ctx context.Context, topic, key string, maxCount int, beginTime, endTime int64) *future.Future[*storage.QueryMessageResult] {
	started := time.Now()
	ctx, span := StartQuerySpan(ctx, topic, key)

	indexFile := f.manager.GetIndexFile()
	hash := flatfile.IndexKeyHash(flatfile.BuildKey(topic, key))

	topicMeta, err := f.meta.GetTopic(topic)
	if err != nil {
		f.log.Info().Err(err).Str("topic", topic).Msg("Topic metadata not found for query")
		f.metrics.RecordQuery(topic, "no_metadata", time.Since(started))
		span.End()
		return future.Completed(&storage.QueryMessageResult{})
	}
	topicID := topicMeta.TopicID

	out := future.New[*storage.QueryMessageResult]()
	go func() {
		result := &storage.QueryMessageResult{}
		defer func() {
			f.metrics.RecordQuery(topic, "ok", time.Since(started))
			span.End()
			out.Complete(result)
		}()

		blocks, err := indexFile.Query(ctx, topic, key, beginTime, endTime)
		if err != nil {
			f.log.Warn().Err(err).Str("topic", topic).Str("key", key).Msg("Index query failed")
			return
		}

		type pendingFetch struct {
			file   *flatfile.FlatFile
			offset int64
			size   int32
		}
		var pending []pendingFetch

		resultCount := 0
		for _, block := range blocks {
			if len(block.Entries)%flatfile.IndexEntrySize != 0 {
				f.log.Error().
					Int("buffer_size", len(block.Entries)).
					Int("entry_size", flatfile.IndexEntrySize).
					Msg("Index buffer size is not a multiple of the entry size")
				continue
			}

			for pos := 0; pos+flatfile.IndexEntrySize <= len(block.Entries); pos += flatfile.IndexEntrySize {
				entry := flatfile.DecodeIndexEntry(block.Entries, pos)
				if entry.Hash != hash {
					continue
				}
				if entry.TopicID != topicID {
					continue
				}

				mq := storage.MessageQueue{Topic: topic, BrokerName: f.cfg.BrokerName, QueueID: entry.QueueID}
				file := f.manager.GetFlatFile(mq)
				if file == nil {
					continue
				}

				indexTimestamp := block.BeginTimestamp + int64(entry.TimeDiff)
				if indexTimestamp < beginTime || indexTimestamp > endTime {
					continue
				}

				pending = append(pending, pendingFetch{file: file, offset: entry.CommitLogOffset, size: entry.Size})
				resultCount++
				if resultCount >= maxCount {
					break
				}
			}
			if resultCount >= maxCount {
				break
			}
		}

		// Fetch all surviving entries concurrently, keeping index order
		buffers := make([][]byte, len(pending))
		var wg sync.WaitGroup
		for i, p := range pending {
			wg.Add(1)
			go func(i int, p pendingFetch) {
				defer wg.Done()
				buf, err := p.file.GetCommitLog(ctx, p.offset, int64(p.size))
				if err != nil {
					f.log.Warn().Err(err).
						Int64("commit_log_offset", p.offset).
						Int32("size", p.size).
						Msg("Failed to fetch message for index entry")
					return
				}
				buffers[i] = buf
			}(i, p)
		}
		wg.Wait()

		for _, buf := range buffers {
			if buf != nil {
				result.AddMessage(buf)
			}
		}
	}()
	return out
}
