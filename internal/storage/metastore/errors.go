package metastore

import "fmt"

// TopicNotFoundError indicates a topic is not registered
type TopicNotFoundError struct {
	Topic string
}

func (e TopicNotFoundError) Error() string {
	return fmt.Sprintf("topic not found: %s", e.Topic)
}

// TopicExistsError indicates a topic is already registered
type TopicExistsError struct {
	Topic string
}

func (e TopicExistsError) Error() string {
	return fmt.Sprintf("topic already exists: %s", e.Topic)
}
