package flatfile

import (
	"sync"

	"github.com/flowmesh/tieredstore/internal/logger"
	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/rs/zerolog"
)

// Manager hands out flat-file handles for queues known to the backend.
// Handles are created lazily and shared: every caller asking for the same
// queue gets the same *FlatFile, so cache keys and per-file state agree.
type Manager struct {
	mu       sync.RWMutex
	provider Provider
	files    map[storage.MessageQueue]*FlatFile
	index    *IndexFile
	opts     Options
	log      zerolog.Logger
}

// NewManager creates a flat-file manager over the provider
func NewManager(provider Provider, opts Options) *Manager {
	return &Manager{
		provider: provider,
		files:    make(map[storage.MessageQueue]*FlatFile),
		index:    NewIndexFile(provider),
		opts:     opts,
		log:      logger.WithComponent("flatfile.manager"),
	}
}

// GetFlatFile returns the shared handle for a queue, or nil when the backend
// does not hold it
func (m *Manager) GetFlatFile(mq storage.MessageQueue) *FlatFile {
	m.mu.RLock()
	file, ok := m.files[mq]
	m.mu.RUnlock()
	if ok {
		return file
	}

	// Only materialize handles for queues the backend knows
	if _, err := m.provider.QueueBounds(mq); err != nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if file, ok := m.files[mq]; ok {
		return file
	}
	file = NewFlatFile(mq, m.provider, m.opts)
	m.files[mq] = file
	m.log.Debug().Str("queue", mq.String()).Uint64("file_id", file.ID()).Msg("Flat file opened")
	return file
}

// GetIndexFile returns the shared index file
func (m *Manager) GetIndexFile() *IndexFile {
	return m.index
}

// FlatFiles returns all materialized handles
func (m *Manager) FlatFiles() []*FlatFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make([]*FlatFile, 0, len(m.files))
	for _, file := range m.files {
		files = append(files, file)
	}
	return files
}
