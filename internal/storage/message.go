package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/flowmesh/tieredstore/internal/logger"
)

// Commit-log record layout (big-endian):
//
//	totalSize:4  magic:4  queueId:4  queueOffset:8  commitLogOffset:8
//	storeTimestamp:8  bodyLen:4  body:bodyLen
const (
	// MessageMagicCode marks the start of a commit-log record
	MessageMagicCode uint32 = 0xDAA320A7

	// MessageHeaderSize is the fixed record header length
	MessageHeaderSize = 40

	// Field positions within a record
	queueIDPosition         = 8
	queueOffsetPosition     = 12
	commitLogOffsetPosition = 20

	// StoreTimestampPosition is the offset of the store timestamp field;
	// reading StoreTimestampPosition+8 bytes is enough to decode it
	StoreTimestampPosition = 28

	bodyLenPosition = 36
)

// CQEntrySize is the fixed consume-queue store unit size:
// (commitLogOffset:8, size:4, tagHash:8)
const CQEntrySize = 20

// EncodeMessage builds one commit-log record
func EncodeMessage(queueID int32, queueOffset, commitLogOffset, storeTimestamp int64, body []byte) []byte {
	total := MessageHeaderSize + len(body)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:], uint32(total))
	binary.BigEndian.PutUint32(buf[4:], MessageMagicCode)
	binary.BigEndian.PutUint32(buf[queueIDPosition:], uint32(queueID))
	binary.BigEndian.PutUint64(buf[queueOffsetPosition:], uint64(queueOffset))
	binary.BigEndian.PutUint64(buf[commitLogOffsetPosition:], uint64(commitLogOffset))
	binary.BigEndian.PutUint64(buf[StoreTimestampPosition:], uint64(storeTimestamp))
	binary.BigEndian.PutUint32(buf[bodyLenPosition:], uint32(len(body)))
	copy(buf[MessageHeaderSize:], body)
	return buf
}

// MessageTotalSize decodes the record length field
func MessageTotalSize(buf []byte) (int32, error) {
	if len(buf) < 4 {
		return 0, NewStoreError(CodeIllegalParam, "buffer too short for total size")
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

// MessageQueueOffset decodes the logical queue offset of a record
func MessageQueueOffset(buf []byte) (int64, error) {
	if len(buf) < queueOffsetPosition+8 {
		return 0, NewStoreError(CodeIllegalParam, "buffer too short for queue offset")
	}
	return int64(binary.BigEndian.Uint64(buf[queueOffsetPosition:])), nil
}

// MessageStoreTimestamp decodes the store timestamp of a record
func MessageStoreTimestamp(buf []byte) (int64, error) {
	if len(buf) < StoreTimestampPosition+8 {
		return 0, NewStoreError(CodeIllegalParam, "buffer too short for store timestamp")
	}
	return int64(binary.BigEndian.Uint64(buf[StoreTimestampPosition:])), nil
}

// MessageBody returns the body slice of a full record
func MessageBody(buf []byte) ([]byte, error) {
	if len(buf) < MessageHeaderSize {
		return nil, NewStoreError(CodeIllegalParam, "buffer too short for message header")
	}
	bodyLen := binary.BigEndian.Uint32(buf[bodyLenPosition:])
	if len(buf) < MessageHeaderSize+int(bodyLen) {
		return nil, NewStoreError(CodeIllegalParam, "buffer too short for message body")
	}
	return buf[MessageHeaderSize : MessageHeaderSize+int(bodyLen)], nil
}

// EncodeCQEntry builds one consume-queue store unit
func EncodeCQEntry(commitLogOffset int64, size int32, tagHash int64) []byte {
	buf := make([]byte, CQEntrySize)
	binary.BigEndian.PutUint64(buf[0:], uint64(commitLogOffset))
	binary.BigEndian.PutUint32(buf[8:], uint32(size))
	binary.BigEndian.PutUint64(buf[12:], uint64(tagHash))
	return buf
}

// CQEntryCommitLogOffset decodes the commit-log offset of the entry at
// byte position pos within a consume-queue buffer
func CQEntryCommitLogOffset(cqBuf []byte, pos int) int64 {
	return int64(binary.BigEndian.Uint64(cqBuf[pos:]))
}

// CQEntrySizeField decodes the message size of the entry at byte position pos
func CQEntrySizeField(cqBuf []byte, pos int) int32 {
	return int32(binary.BigEndian.Uint32(cqBuf[pos+8:]))
}

// CQEntryTagHash decodes the tag hash of the entry at byte position pos
func CQEntryTagHash(cqBuf []byte, pos int) int64 {
	return int64(binary.BigEndian.Uint64(cqBuf[pos+12:]))
}

// SplitMessageBuffer slices a commit-log read into individual messages using
// the consume-queue entries that produced it. Entries whose position or size
// does not line up with the commit-log bytes are skipped and logged; the
// returned messages are in consume-queue order.
func SplitMessageBuffer(cqBuf, msgBuf []byte) []SelectedMessage {
	if len(cqBuf) < CQEntrySize || len(msgBuf) == 0 {
		return nil
	}

	clog := logger.WithComponent("storage.codec")
	messages := make([]SelectedMessage, 0, len(cqBuf)/CQEntrySize)
	firstCommitLogOffset := CQEntryCommitLogOffset(cqBuf, 0)

	for pos := 0; pos+CQEntrySize <= len(cqBuf); pos += CQEntrySize {
		commitLogOffset := CQEntryCommitLogOffset(cqBuf, pos)
		size := int(CQEntrySizeField(cqBuf, pos))

		relative := commitLogOffset - firstCommitLogOffset
		if relative < 0 || size <= 0 || relative+int64(size) > int64(len(msgBuf)) {
			clog.Warn().
				Int64("commit_log_offset", commitLogOffset).
				Int("size", size).
				Int("buffer_size", len(msgBuf)).
				Msg("Consume queue entry out of commit log bounds, skipping")
			continue
		}

		slice := msgBuf[relative : relative+int64(size)]
		totalSize, err := MessageTotalSize(slice)
		if err != nil || int(totalSize) != size {
			clog.Warn().
				Int("cq_size", size).
				Int32("message_size", totalSize).
				Msg("Message size does not match consume queue entry, skipping")
			continue
		}

		magic := binary.BigEndian.Uint32(slice[4:])
		if magic != MessageMagicCode {
			clog.Warn().
				Str("magic", fmt.Sprintf("%#x", magic)).
				Msg("Bad message magic code, skipping")
			continue
		}

		queueOffset, err := MessageQueueOffset(slice)
		if err != nil {
			continue
		}
		messages = append(messages, SelectedMessage{QueueOffset: queueOffset, Buffer: slice})
	}

	return messages
}
