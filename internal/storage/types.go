package storage

import "fmt"

// MessageQueue identifies one logical queue on one broker
type MessageQueue struct {
	Topic      string
	BrokerName string
	QueueID    int32
}

// String returns the canonical queue identity string
func (mq MessageQueue) String() string {
	return fmt.Sprintf("%s:%s:%d", mq.Topic, mq.BrokerName, mq.QueueID)
}

// GetMessageStatus is the outcome of a pull request
type GetMessageStatus int

const (
	// StatusFound means at least one message was returned
	StatusFound GetMessageStatus = iota
	// StatusNoMessageInQueue means the queue has never been written to
	StatusNoMessageInQueue
	// StatusNoMatchedLogicQueue means no flat file exists for the queue
	StatusNoMatchedLogicQueue
	// StatusOffsetTooSmall means the requested offset precedes the queue minimum
	StatusOffsetTooSmall
	// StatusOffsetOverflowOne means the requested offset equals the commit offset
	StatusOffsetOverflowOne
	// StatusOffsetOverflowBadly means the requested offset exceeds the commit offset
	StatusOffsetOverflowBadly
	// StatusOffsetFoundNull means the backend could not serve the offset
	StatusOffsetFoundNull
	// StatusMessageWasRemoving means consume-queue entries exist but their
	// messages could not be parsed out of the commit log
	StatusMessageWasRemoving
)

// String returns the status name
func (s GetMessageStatus) String() string {
	switch s {
	case StatusFound:
		return "FOUND"
	case StatusNoMessageInQueue:
		return "NO_MESSAGE_IN_QUEUE"
	case StatusNoMatchedLogicQueue:
		return "NO_MATCHED_LOGIC_QUEUE"
	case StatusOffsetTooSmall:
		return "OFFSET_TOO_SMALL"
	case StatusOffsetOverflowOne:
		return "OFFSET_OVERFLOW_ONE"
	case StatusOffsetOverflowBadly:
		return "OFFSET_OVERFLOW_BADLY"
	case StatusOffsetFoundNull:
		return "OFFSET_FOUND_NULL"
	case StatusMessageWasRemoving:
		return "MESSAGE_WAS_REMOVING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// BoundaryType selects which side of a timestamp match to return
type BoundaryType int

const (
	// BoundaryLower selects the first offset at or after the timestamp
	BoundaryLower BoundaryType = iota
	// BoundaryUpper selects the last offset at or before the timestamp
	BoundaryUpper
)

// MessageFilter decides whether a message matches a consumer subscription.
// The read path threads it through without evaluating it; filtering happens
// on the broker side.
type MessageFilter interface {
	IsMatched(tagHash int64) bool
}

// SelectedMessage is one message sliced out of a commit-log read
type SelectedMessage struct {
	// QueueOffset is the logical offset of this message
	QueueOffset int64

	// Buffer references the message bytes inside the fetched commit-log slice
	Buffer []byte
}

// GetMessageResult is the outcome of a message pull
type GetMessageResult struct {
	Status          GetMessageStatus
	MinOffset       int64
	MaxOffset       int64
	NextBeginOffset int64
	Messages        []SelectedMessage
}

// AddMessage appends one message to the result
func (r *GetMessageResult) AddMessage(buffer []byte, queueOffset int64) {
	r.Messages = append(r.Messages, SelectedMessage{QueueOffset: queueOffset, Buffer: buffer})
}

// MessageCount returns the number of messages in the result
func (r *GetMessageResult) MessageCount() int {
	return len(r.Messages)
}

// LastQueueOffset returns the queue offset of the last message, or -1 if empty
func (r *GetMessageResult) LastQueueOffset() int64 {
	if len(r.Messages) == 0 {
		return -1
	}
	return r.Messages[len(r.Messages)-1].QueueOffset
}

// QueryMessageResult is the outcome of a by-key index query
type QueryMessageResult struct {
	Messages [][]byte
}

// AddMessage appends one message buffer to the result
func (r *QueryMessageResult) AddMessage(buffer []byte) {
	r.Messages = append(r.Messages, buffer)
}

// MessageCount returns the number of messages in the result
func (r *QueryMessageResult) MessageCount() int {
	return len(r.Messages)
}
