package metastore

import (
	"fmt"
	"time"
)

// TopicMetadata describes one topic known to the tiered store
type TopicMetadata struct {
	// Topic is the topic name
	Topic string `json:"topic"`

	// TopicID is the numeric identity used by index entries
	TopicID int32 `json:"topicId"`

	// ReserveTime controls retention on the tiered backend (hours, -1 = unlimited)
	ReserveTime int64 `json:"reserveTime"`

	// CreatedAt is when the topic was first registered
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the topic was last modified
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the metadata fields
func (t *TopicMetadata) Validate() error {
	if t.Topic == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	if t.TopicID < 0 {
		return fmt.Errorf("topic id cannot be negative: %d", t.TopicID)
	}
	return nil
}
