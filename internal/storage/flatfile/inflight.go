package flatfile

import (
	"sync"

	"github.com/flowmesh/tieredstore/internal/future"
)

// RequestPart is one physical backend fetch belonging to an in-flight
// request: its batch size and the future resolving to the last queue
// offset the fetch populated (-1 on any abnormal outcome).
type RequestPart struct {
	BatchSize int
	Future    *future.Future[int64]
}

// inflightEntry records one installed request range
type inflightEntry struct {
	group       string
	startOffset int64
	count       int
	parts       []RequestPart
}

func (e *inflightEntry) endOffset() int64 {
	return e.startOffset + int64(e.count)
}

// InflightRegistry tracks ongoing prefetches for one flat file so callers
// with overlapping ranges coalesce onto the same futures instead of issuing
// duplicate backend fetches.
type InflightRegistry struct {
	mu      sync.Mutex
	entries []*inflightEntry
}

// NewInflightRegistry creates an empty registry
func NewInflightRegistry() *InflightRegistry {
	return &InflightRegistry{}
}

// GetInflightRequest returns a view of every in-flight fetch for group
// overlapping [startOffset, startOffset+count)
func (r *InflightRegistry) GetInflightRequest(group string, startOffset int64, count int) *InflightFuture {
	return r.collect(startOffset, count, func(e *inflightEntry) bool { return e.group == group })
}

// GetInflightRequestByRange returns a view of every in-flight fetch from any
// group overlapping [startOffset, startOffset+count)
func (r *InflightRegistry) GetInflightRequestByRange(startOffset int64, count int) *InflightFuture {
	return r.collect(startOffset, count, func(e *inflightEntry) bool { return true })
}

func (r *InflightRegistry) collect(startOffset int64, count int, match func(*inflightEntry) bool) *InflightFuture {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := startOffset + int64(count)
	view := &InflightFuture{startOffset: -1}
	for _, e := range r.entries {
		if !match(e) {
			continue
		}
		if e.startOffset >= end || e.endOffset() <= startOffset {
			continue
		}
		if view.startOffset == -1 || e.startOffset < view.startOffset {
			view.startOffset = e.startOffset
		}
		partStart := e.startOffset
		for _, part := range e.parts {
			view.parts = append(view.parts, boundPart{start: partStart, RequestPart: part})
			partStart += int64(part.BatchSize)
		}
	}
	return view
}

// PutInflightRequest installs a set of pending fetches for group covering
// [startOffset, startOffset+count). The entry removes itself once every
// part future resolves.
func (r *InflightRegistry) PutInflightRequest(group string, startOffset int64, count int, parts []RequestPart) {
	if len(parts) == 0 {
		return
	}

	entry := &inflightEntry{
		group:       group,
		startOffset: startOffset,
		count:       count,
		parts:       parts,
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	go func() {
		for _, part := range parts {
			<-part.Future.Done()
		}
		r.remove(entry)
	}()
}

func (r *InflightRegistry) remove(entry *inflightEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e == entry {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// boundPart is a RequestPart annotated with its absolute start offset
type boundPart struct {
	RequestPart
	start int64
}

// InflightFuture is a read-only view over the in-flight fetches covering a
// requested range
type InflightFuture struct {
	startOffset int64
	parts       []boundPart
}

// IsAllDone reports whether every covered fetch has completed. An empty view
// is trivially done.
func (f *InflightFuture) IsAllDone() bool {
	for _, part := range f.parts {
		if !part.Future.IsDone() {
			return false
		}
	}
	return true
}

// StartOffset returns the start offset of the earliest matched request, or
// -1 when the view is empty
func (f *InflightFuture) StartOffset() int64 {
	return f.startOffset
}

// Future returns the future of the batch containing offset, or an
// already-completed -1 future when no batch covers it
func (f *InflightFuture) Future(offset int64) *future.Future[int64] {
	for _, part := range f.parts {
		if offset >= part.start && offset < part.start+int64(part.BatchSize) {
			return part.Future
		}
	}
	return future.Completed[int64](-1)
}

// LastFuture returns the future of the last batch, or an already-completed
// -1 future when the view is empty
func (f *InflightFuture) LastFuture() *future.Future[int64] {
	if len(f.parts) == 0 {
		return future.Completed[int64](-1)
	}
	return f.parts[len(f.parts)-1].Future
}
