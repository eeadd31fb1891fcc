package flatfile

import (
	"context"
	"encoding/binary"

	"github.com/flowmesh/tieredstore/internal/logger"
	"github.com/rs/zerolog"
)

// IndexEntrySize is the fixed width of one packed index entry:
// [hash:4][topicId:4][queueId:4][commitLogOffset:8][size:4][timeDiff:4]
const IndexEntrySize = 28

// IndexEntry is one decoded index record
type IndexEntry struct {
	Hash            int32
	TopicID         int32
	QueueID         int32
	CommitLogOffset int64
	Size            int32
	TimeDiff        int32
}

// EncodeIndexEntry packs an entry into its 28-byte wire form
func EncodeIndexEntry(e IndexEntry) []byte {
	buf := make([]byte, IndexEntrySize)
	binary.BigEndian.PutUint32(buf[0:], uint32(e.Hash))
	binary.BigEndian.PutUint32(buf[4:], uint32(e.TopicID))
	binary.BigEndian.PutUint32(buf[8:], uint32(e.QueueID))
	binary.BigEndian.PutUint64(buf[12:], uint64(e.CommitLogOffset))
	binary.BigEndian.PutUint32(buf[20:], uint32(e.Size))
	binary.BigEndian.PutUint32(buf[24:], uint32(e.TimeDiff))
	return buf
}

// DecodeIndexEntry unpacks the entry at byte position pos
func DecodeIndexEntry(buf []byte, pos int) IndexEntry {
	return IndexEntry{
		Hash:            int32(binary.BigEndian.Uint32(buf[pos:])),
		TopicID:         int32(binary.BigEndian.Uint32(buf[pos+4:])),
		QueueID:         int32(binary.BigEndian.Uint32(buf[pos+8:])),
		CommitLogOffset: int64(binary.BigEndian.Uint64(buf[pos+12:])),
		Size:            int32(binary.BigEndian.Uint32(buf[pos+20:])),
		TimeDiff:        int32(binary.BigEndian.Uint32(buf[pos+24:])),
	}
}

// BuildKey joins a topic and a message key into the indexed form
func BuildKey(topic, key string) string {
	return topic + "#" + key
}

// IndexKeyHash hashes an index key the same way the on-disk entries were
// built: the 31-based rolling hash with the sign dropped, and the minimum
// integer value mapped to 0.
func IndexKeyHash(key string) int32 {
	var h int32
	for i := 0; i < len(key); i++ {
		h = 31*h + int32(key[i])
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		// -MinInt32 overflows back to itself
		h = 0
	}
	return h
}

// IndexFile answers by-key time-range queries from the backend's stored
// index blocks
type IndexFile struct {
	provider Provider
	log      zerolog.Logger
}

// NewIndexFile creates an index file view over the provider
func NewIndexFile(provider Provider) *IndexFile {
	return &IndexFile{
		provider: provider,
		log:      logger.WithComponent("flatfile.index"),
	}
}

// Query returns index blocks that may hold entries for key within
// [beginTime, endTime]
func (i *IndexFile) Query(ctx context.Context, topic, key string, beginTime, endTime int64) ([]IndexBlock, error) {
	blocks, err := i.provider.ReadIndex(ctx, beginTime, endTime)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
