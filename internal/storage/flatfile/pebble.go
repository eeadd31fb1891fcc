package flatfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/flowmesh/tieredstore/internal/logger"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/rs/zerolog"
)

const (
	queueKeyPrefix = "queue/"
	cqKeyPrefix    = "cq/"
	msgKeyPrefix   = "msg/"
	idxKeyPrefix   = "idx/"
)

// pebbleBounds is the persisted bounds record for one queue
type pebbleBounds struct {
	MinOffset          int64 `json:"minOffset"`
	CommitOffset       int64 `json:"commitOffset"`
	CommitLogMinOffset int64 `json:"commitLogMinOffset"`
	CommitLogNext      int64 `json:"commitLogNext"`
}

// PebbleProvider implements Provider over per-queue Pebble databases.
// A shared meta database records queue bounds and index blocks; each queue
// gets its own database holding consume-queue entries and commit-log records.
type PebbleProvider struct {
	baseDir string
	metaDB  *pebble.DB
	dbs     map[storage.MessageQueue]*pebble.DB
	log     zerolog.Logger
	mu      sync.RWMutex
}

// NewPebbleProvider opens the provider rooted at baseDir
func NewPebbleProvider(baseDir string) (*PebbleProvider, error) {
	metaDB, err := pebble.Open(filepath.Join(baseDir, "meta"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open meta database: %w", err)
	}

	return &PebbleProvider{
		baseDir: baseDir,
		metaDB:  metaDB,
		dbs:     make(map[storage.MessageQueue]*pebble.DB),
		log:     logger.WithComponent("flatfile.pebble"),
	}, nil
}

// Close closes all open databases
func (p *PebbleProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for mq, db := range p.dbs {
		if err := db.Close(); err != nil {
			p.log.Error().Err(err).Str("queue", mq.String()).Msg("Failed to close queue database")
			lastErr = err
		}
	}
	p.dbs = make(map[storage.MessageQueue]*pebble.DB)

	if err := p.metaDB.Close(); err != nil {
		p.log.Error().Err(err).Msg("Failed to close meta database")
		lastErr = err
	}
	return lastErr
}

func queueMetaKey(mq storage.MessageQueue) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%d", queueKeyPrefix, mq.Topic, mq.BrokerName, mq.QueueID))
}

func cqKey(offset int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", cqKeyPrefix, offset))
}

func msgKey(offset int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", msgKeyPrefix, offset))
}

func idxKey(beginTimestamp int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", idxKeyPrefix, beginTimestamp))
}

// queueDB opens (or returns) the database for one queue
func (p *PebbleProvider) queueDB(mq storage.MessageQueue) (*pebble.DB, error) {
	p.mu.RLock()
	db, ok := p.dbs[mq]
	p.mu.RUnlock()
	if ok {
		return db, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.dbs[mq]; ok {
		return db, nil
	}

	path := filepath.Join(p.baseDir, "queues", mq.Topic, fmt.Sprintf("%d", mq.QueueID))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, storage.WrapStoreError(storage.CodeIO, "failed to open queue database", err)
	}
	p.dbs[mq] = db
	return db, nil
}

// getJSON reads and unmarshals a JSON record, reporting pebble.ErrNotFound
func getJSON(db *pebble.DB, key []byte, out any) error {
	val, closer, err := db.Get(key)
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, out)
}

// QueueBounds returns the stored bounds of a queue
func (p *PebbleProvider) QueueBounds(mq storage.MessageQueue) (QueueBounds, error) {
	var b pebbleBounds
	if err := getJSON(p.metaDB, queueMetaKey(mq), &b); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return QueueBounds{}, storage.NewStoreError(storage.CodeIllegalParam, "queue not found: "+mq.String())
		}
		return QueueBounds{}, storage.WrapStoreError(storage.CodeIO, "failed to read queue bounds", err)
	}
	return QueueBounds{
		MinOffset:          b.MinOffset,
		CommitOffset:       b.CommitOffset,
		CommitLogMinOffset: b.CommitLogMinOffset,
	}, nil
}

// Queues lists all queues recorded in the meta database
func (p *PebbleProvider) Queues() []storage.MessageQueue {
	iter, err := p.metaDB.NewIter(&pebble.IterOptions{
		LowerBound: []byte(queueKeyPrefix),
		UpperBound: []byte(queueKeyPrefix + "\xff"),
	})
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to iterate queue metadata")
		return nil
	}
	defer iter.Close()

	var queues []storage.MessageQueue
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(queueKeyPrefix):])
		fields := strings.Split(key, "/")
		if len(fields) != 3 {
			continue
		}
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		queues = append(queues, storage.MessageQueue{Topic: fields[0], BrokerName: fields[1], QueueID: int32(id)})
	}
	return queues
}

// ReadConsumeQueue returns count consume-queue entries starting at offset
func (p *PebbleProvider) ReadConsumeQueue(ctx context.Context, mq storage.MessageQueue, offset int64, count int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.WrapStoreError(storage.CodeIO, "context cancelled", err)
	}
	if offset < 0 || count <= 0 {
		return nil, storage.NewStoreError(storage.CodeIllegalParam, fmt.Sprintf("bad consume queue request: offset=%d count=%d", offset, count))
	}

	bounds, err := p.QueueBounds(mq)
	if err != nil {
		return nil, err
	}
	if offset < bounds.MinOffset {
		return nil, storage.NewStoreError(storage.CodeIllegalOffset, fmt.Sprintf("offset %d below minimum %d", offset, bounds.MinOffset))
	}
	if offset >= bounds.CommitOffset {
		return nil, storage.NewStoreError(storage.CodeNoNewData, fmt.Sprintf("offset %d at or past commit %d", offset, bounds.CommitOffset))
	}

	end := offset + int64(count)
	if end > bounds.CommitOffset {
		end = bounds.CommitOffset
	}

	db, err := p.queueDB(mq)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, int(end-offset)*storage.CQEntrySize)
	for o := offset; o < end; o++ {
		val, closer, err := db.Get(cqKey(o))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				break
			}
			return nil, storage.WrapStoreError(storage.CodeIO, "failed to read consume queue entry", err)
		}
		buf = append(buf, val...)
		closer.Close()
	}
	if len(buf) == 0 {
		return nil, storage.NewStoreError(storage.CodeIllegalOffset, fmt.Sprintf("no consume queue entries at offset %d", offset))
	}
	return buf, nil
}

// ReadCommitLog returns up to length bytes of the commit log starting at offset
func (p *PebbleProvider) ReadCommitLog(ctx context.Context, mq storage.MessageQueue, offset int64, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.WrapStoreError(storage.CodeIO, "context cancelled", err)
	}
	if offset < 0 || length <= 0 {
		return nil, storage.NewStoreError(storage.CodeIllegalParam, fmt.Sprintf("bad commit log request: offset=%d length=%d", offset, length))
	}

	db, err := p.queueDB(mq)
	if err != nil {
		return nil, err
	}

	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(msgKeyPrefix),
		UpperBound: []byte(msgKeyPrefix + "\xff"),
	})
	if err != nil {
		return nil, storage.WrapStoreError(storage.CodeIO, "failed to open commit log iterator", err)
	}
	defer iter.Close()

	// Position on the record containing offset: the greatest key <= offset
	if !iter.SeekLT(msgKey(offset + 1)) {
		return nil, storage.NewStoreError(storage.CodeIllegalOffset, fmt.Sprintf("no commit log record at offset %d", offset))
	}

	buf := make([]byte, 0, length)
	for iter.Valid() && int64(len(buf)) < length {
		recOffset := parseOffsetKey(iter.Key(), msgKeyPrefix)
		rec := iter.Value()
		recEnd := recOffset + int64(len(rec))
		if recEnd > offset {
			from := int64(0)
			if offset > recOffset {
				from = offset - recOffset
			}
			buf = append(buf, rec[from:]...)
		}
		iter.Next()
	}
	if len(buf) == 0 {
		return nil, storage.NewStoreError(storage.CodeIllegalOffset, fmt.Sprintf("commit log offset %d not found", offset))
	}
	if int64(len(buf)) > length {
		buf = buf[:length]
	}
	return buf, nil
}

func parseOffsetKey(key []byte, prefix string) int64 {
	var offset int64
	fmt.Sscanf(string(key[len(prefix):]), "%d", &offset)
	return offset
}

// ReadIndex returns index blocks whose base timestamp could contribute
// entries to [beginTime, endTime]
func (p *PebbleProvider) ReadIndex(ctx context.Context, beginTime, endTime int64) ([]IndexBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.WrapStoreError(storage.CodeIO, "context cancelled", err)
	}

	iter, err := p.metaDB.NewIter(&pebble.IterOptions{
		LowerBound: []byte(idxKeyPrefix),
		UpperBound: []byte(idxKeyPrefix + "\xff"),
	})
	if err != nil {
		return nil, storage.WrapStoreError(storage.CodeIO, "failed to open index iterator", err)
	}
	defer iter.Close()

	var blocks []IndexBlock
	for iter.First(); iter.Valid(); iter.Next() {
		beginTs := parseOffsetKey(iter.Key(), idxKeyPrefix)
		if beginTs > endTime {
			break
		}
		entries := make([]byte, len(iter.Value()))
		copy(entries, iter.Value())
		blocks = append(blocks, IndexBlock{BeginTimestamp: beginTs, Entries: entries})
	}
	return blocks, nil
}

// AppendMessage stores one message and its consume-queue entry. It exists for
// the seeding utility and tests; the read path never calls it.
func (p *PebbleProvider) AppendMessage(mq storage.MessageQueue, body []byte, storeTimestamp, tagHash int64) (queueOffset, commitLogOffset int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b pebbleBounds
	if err := getJSON(p.metaDB, queueMetaKey(mq), &b); err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return 0, 0, storage.WrapStoreError(storage.CodeIO, "failed to read queue bounds", err)
	}

	queueOffset = b.CommitOffset
	commitLogOffset = b.CommitLogNext

	record := storage.EncodeMessage(mq.QueueID, queueOffset, commitLogOffset, storeTimestamp, body)
	entry := storage.EncodeCQEntry(commitLogOffset, int32(len(record)), tagHash)

	path := filepath.Join(p.baseDir, "queues", mq.Topic, fmt.Sprintf("%d", mq.QueueID))
	db, ok := p.dbs[mq]
	if !ok {
		db, err = pebble.Open(path, &pebble.Options{})
		if err != nil {
			return 0, 0, storage.WrapStoreError(storage.CodeIO, "failed to open queue database", err)
		}
		p.dbs[mq] = db
	}

	if err := db.Set(msgKey(commitLogOffset), record, pebble.Sync); err != nil {
		return 0, 0, storage.WrapStoreError(storage.CodeIO, "failed to write commit log record", err)
	}
	if err := db.Set(cqKey(queueOffset), entry, pebble.Sync); err != nil {
		return 0, 0, storage.WrapStoreError(storage.CodeIO, "failed to write consume queue entry", err)
	}

	b.CommitOffset = queueOffset + 1
	b.CommitLogNext = commitLogOffset + int64(len(record))
	data, _ := json.Marshal(&b)
	if err := p.metaDB.Set(queueMetaKey(mq), data, pebble.Sync); err != nil {
		return 0, 0, storage.WrapStoreError(storage.CodeIO, "failed to write queue bounds", err)
	}
	return queueOffset, commitLogOffset, nil
}

// AppendIndexEntry appends one packed entry to the index block at
// beginTimestamp. Seeding only; the read path never calls it.
func (p *PebbleProvider) AppendIndexEntry(beginTimestamp int64, entry []byte) error {
	if len(entry) != IndexEntrySize {
		return storage.NewStoreError(storage.CodeIllegalParam, fmt.Sprintf("index entry must be %d bytes, got %d", IndexEntrySize, len(entry)))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := idxKey(beginTimestamp)
	var block []byte
	val, closer, err := p.metaDB.Get(key)
	if err == nil {
		block = append(block, val...)
		closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return storage.WrapStoreError(storage.CodeIO, "failed to read index block", err)
	}
	block = append(block, entry...)
	if err := p.metaDB.Set(key, block, pebble.Sync); err != nil {
		return storage.WrapStoreError(storage.CodeIO, "failed to write index block", err)
	}
	return nil
}
