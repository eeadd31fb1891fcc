package flatfile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowmesh/tieredstore/internal/logger"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultGroupActivityWindow is how long a consumer group keeps counting
// toward ActiveGroupCount after its last recorded access
const DefaultGroupActivityWindow = 30 * time.Second

var nextFileID atomic.Uint64

// Options tunes per-file read-ahead state
type Options struct {
	// MinFactor is the initial read-ahead factor and its floor
	MinFactor int

	// FactorCeiling is the saturating upper bound of the factor
	FactorCeiling int

	// GroupActivityWindow bounds how long an idle group stays active
	GroupActivityWindow time.Duration
}

// FlatFile binds one message queue to the tiered backend and carries the
// per-queue state the read path needs: the adaptive read-ahead factor, the
// in-flight request registry, and per-group access tracking.
type FlatFile struct {
	id       uint64
	mq       storage.MessageQueue
	provider Provider
	inflight *InflightRegistry
	log      zerolog.Logger

	// mu serializes prefetch planning and the full-miss fetch path.
	// I/O is never performed while holding it.
	mu sync.Mutex

	factorMu  sync.Mutex
	factor    int
	minFactor int
	ceiling   int

	// lastPrefetchOffset is the highest queue offset any completed fetch
	// has populated the cache with, or -1
	lastPrefetchOffset atomic.Int64

	groupMu        sync.Mutex
	groups         map[string]*groupAccess
	activityWindow time.Duration
}

type groupAccess struct {
	offset     int64
	lastAccess time.Time
}

// NewFlatFile creates a flat file handle for one queue
func NewFlatFile(mq storage.MessageQueue, provider Provider, opts Options) *FlatFile {
	minFactor := opts.MinFactor
	if minFactor < 1 {
		minFactor = 1
	}
	ceiling := opts.FactorCeiling
	if ceiling < minFactor {
		ceiling = minFactor
	}
	window := opts.GroupActivityWindow
	if window <= 0 {
		window = DefaultGroupActivityWindow
	}

	file := &FlatFile{
		id:             nextFileID.Add(1),
		mq:             mq,
		provider:       provider,
		inflight:       NewInflightRegistry(),
		log:            logger.WithComponent("flatfile"),
		factor:         minFactor,
		minFactor:      minFactor,
		ceiling:        ceiling,
		groups:         make(map[string]*groupAccess),
		activityWindow: window,
	}
	file.lastPrefetchOffset.Store(-1)
	return file
}

// ID returns the process-unique identity of this handle, used as the cache
// key prefix so entries from different queues never collide
func (f *FlatFile) ID() uint64 {
	return f.id
}

// MessageQueue returns the queue identity
func (f *FlatFile) MessageQueue() storage.MessageQueue {
	return f.mq
}

// Inflight returns the in-flight request registry
func (f *FlatFile) Inflight() *InflightRegistry {
	return f.inflight
}

// Lock acquires the per-file planning mutex
func (f *FlatFile) Lock() {
	f.mu.Lock()
}

// Unlock releases the per-file planning mutex
func (f *FlatFile) Unlock() {
	f.mu.Unlock()
}

// Bounds returns the current queue offset bounds
func (f *FlatFile) Bounds() (QueueBounds, error) {
	return f.provider.QueueBounds(f.mq)
}

// GetConsumeQueue reads count consume-queue entries starting at offset
func (f *FlatFile) GetConsumeQueue(ctx context.Context, offset int64, count int) ([]byte, error) {
	return f.provider.ReadConsumeQueue(ctx, f.mq, offset, count)
}

// GetConsumeQueueEntry reads a single consume-queue entry
func (f *FlatFile) GetConsumeQueueEntry(ctx context.Context, offset int64) ([]byte, error) {
	return f.provider.ReadConsumeQueue(ctx, f.mq, offset, 1)
}

// GetCommitLog reads length bytes of the commit log starting at offset
func (f *FlatFile) GetCommitLog(ctx context.Context, offset int64, length int64) ([]byte, error) {
	return f.provider.ReadCommitLog(ctx, f.mq, offset, length)
}

// ReadAheadFactor returns the current read-ahead factor
func (f *FlatFile) ReadAheadFactor() int {
	f.factorMu.Lock()
	defer f.factorMu.Unlock()
	return f.factor
}

// IncreaseReadAheadFactor grows the factor by one, saturating at the ceiling
func (f *FlatFile) IncreaseReadAheadFactor() {
	f.factorMu.Lock()
	defer f.factorMu.Unlock()
	if f.factor < f.ceiling {
		f.factor++
	}
}

// DecreaseReadAheadFactor shrinks the factor by one, saturating at the floor
func (f *FlatFile) DecreaseReadAheadFactor() {
	f.factorMu.Lock()
	defer f.factorMu.Unlock()
	if f.factor > f.minFactor {
		f.factor--
	}
}

// RecordPrefetchOffset records the highest queue offset a completed fetch
// populated the cache with. Offsets only move forward.
func (f *FlatFile) RecordPrefetchOffset(offset int64) {
	for {
		cur := f.lastPrefetchOffset.Load()
		if offset <= cur || f.lastPrefetchOffset.CompareAndSwap(cur, offset) {
			return
		}
	}
}

// LastPrefetchOffset returns the highest cached queue offset, or -1 when no
// fetch has completed yet
func (f *FlatFile) LastPrefetchOffset() int64 {
	return f.lastPrefetchOffset.Load()
}

// RecordGroupAccess records the latest offset served to a consumer group.
// Offsets only move forward.
func (f *FlatFile) RecordGroupAccess(group string, offset int64) {
	f.groupMu.Lock()
	defer f.groupMu.Unlock()

	access, ok := f.groups[group]
	if !ok {
		access = &groupAccess{}
		f.groups[group] = access
	}
	if offset > access.offset {
		access.offset = offset
	}
	access.lastAccess = time.Now()
}

// GroupOffset returns the latest offset recorded for a group, or -1
func (f *FlatFile) GroupOffset(group string) int64 {
	f.groupMu.Lock()
	defer f.groupMu.Unlock()
	if access, ok := f.groups[group]; ok {
		return access.offset
	}
	return -1
}

// ActiveGroupCount returns the number of consumer groups seen within the
// activity window. Stale groups are pruned.
func (f *FlatFile) ActiveGroupCount() int {
	f.groupMu.Lock()
	defer f.groupMu.Unlock()

	cutoff := time.Now().Add(-f.activityWindow)
	for group, access := range f.groups {
		if access.lastAccess.Before(cutoff) {
			delete(f.groups, group)
		}
	}
	return len(f.groups)
}

// storeTimestampAt reads the store timestamp of the message at queue offset
func (f *FlatFile) storeTimestampAt(ctx context.Context, offset int64) (int64, error) {
	entry, err := f.GetConsumeQueueEntry(ctx, offset)
	if err != nil {
		return -1, err
	}
	if len(entry) < storage.CQEntrySize {
		return -1, storage.NewStoreError(storage.CodeIllegalOffset, "short consume queue entry")
	}
	commitLogOffset := storage.CQEntryCommitLogOffset(entry, 0)
	header, err := f.GetCommitLog(ctx, commitLogOffset, storage.StoreTimestampPosition+8)
	if err != nil {
		return -1, err
	}
	return storage.MessageStoreTimestamp(header)
}

// GetOffsetInConsumeQueueByTime finds the queue offset whose store timestamp
// matches the boundary condition: BoundaryLower returns the first offset at
// or after timestamp, BoundaryUpper the last at or before. Returns -1 when
// no offset qualifies.
func (f *FlatFile) GetOffsetInConsumeQueueByTime(ctx context.Context, timestamp int64, boundary storage.BoundaryType) (int64, error) {
	bounds, err := f.Bounds()
	if err != nil {
		return -1, err
	}
	if bounds.CommitOffset <= bounds.MinOffset {
		return -1, nil
	}

	// Binary search over [min, commit); store timestamps are monotonic
	lo, hi := bounds.MinOffset, bounds.CommitOffset-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		ts, err := f.storeTimestampAt(ctx, mid)
		if err != nil {
			return -1, err
		}
		if ts < timestamp {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	// lo is the first offset with timestamp >= target
	switch boundary {
	case storage.BoundaryUpper:
		if lo < bounds.CommitOffset {
			ts, err := f.storeTimestampAt(ctx, lo)
			if err == nil && ts == timestamp {
				return lo, nil
			}
		}
		if lo <= bounds.MinOffset {
			// every message is newer than the target
			return -1, nil
		}
		return lo - 1, nil
	default:
		if lo >= bounds.CommitOffset {
			return -1, nil
		}
		return lo, nil
	}
}
