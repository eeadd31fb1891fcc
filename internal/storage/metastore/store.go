package metastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMetadataFile is the default filename for metadata persistence
	DefaultMetadataFile = "topics.json"
)

// Store manages topic metadata with an in-memory map and disk persistence
type Store struct {
	mu       sync.RWMutex
	topics   map[string]*TopicMetadata
	filePath string
}

// NewStore creates a new metadata store
func NewStore(metadataDir string) (*Store, error) {
	filePath := filepath.Join(metadataDir, DefaultMetadataFile)

	store := &Store{
		topics:   make(map[string]*TopicMetadata),
		filePath: filePath,
	}

	// Load existing metadata from disk
	if err := store.load(); err != nil {
		// If file doesn't exist, that's okay - we'll create it on first write
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load metadata: %w", err)
		}
		log.Info().Str("file", filePath).Msg("Topic metadata file does not exist, will be created on first registration")
	}

	return store, nil
}

// CreateTopic registers a new topic
func (s *Store) CreateTopic(meta *TopicMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.topics[meta.Topic]; exists {
		return TopicExistsError{Topic: meta.Topic}
	}

	now := time.Now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now

	s.topics[meta.Topic] = meta

	if err := s.flush(); err != nil {
		delete(s.topics, meta.Topic)
		return fmt.Errorf("failed to persist topic: %w", err)
	}

	log.Info().Str("topic", meta.Topic).Int32("topic_id", meta.TopicID).Msg("Topic registered")
	return nil
}

// GetTopic retrieves topic metadata by name
func (s *Store) GetTopic(topic string) (*TopicMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, exists := s.topics[topic]
	if !exists {
		return nil, TopicNotFoundError{Topic: topic}
	}

	// Return a copy to prevent external modification
	clone := *meta
	return &clone, nil
}

// ListTopics lists all registered topics sorted by name
func (s *Store) ListTopics() []*TopicMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*TopicMetadata, 0, len(s.topics))
	for _, meta := range s.topics {
		clone := *meta
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Topic < results[j].Topic })
	return results
}

// load reads the metadata file into memory
func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var topics map[string]*TopicMetadata
	if err := json.Unmarshal(data, &topics); err != nil {
		return fmt.Errorf("failed to parse metadata file: %w", err)
	}

	s.topics = topics
	return nil
}

// flush writes the metadata map to disk (assumes lock is held)
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.topics, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file then rename for atomicity
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}
