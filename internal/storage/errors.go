package storage

import (
	"errors"
	"fmt"
)

// ErrorCode classifies backend failures so the read path can map them
// to pull statuses instead of propagating them
type ErrorCode int

const (
	// CodeUnknown covers unclassified failures
	CodeUnknown ErrorCode = iota
	// CodeNoNewData means the requested range starts at or past the commit offset
	CodeNoNewData
	// CodeIllegalParam means the request arguments are malformed
	CodeIllegalParam
	// CodeIllegalOffset means the requested offset is outside the stored range
	CodeIllegalOffset
	// CodeIO means the backing tier failed to serve the read
	CodeIO
)

// String returns the code name
func (c ErrorCode) String() string {
	switch c {
	case CodeNoNewData:
		return "NO_NEW_DATA"
	case CodeIllegalParam:
		return "ILLEGAL_PARAM"
	case CodeIllegalOffset:
		return "ILLEGAL_OFFSET"
	case CodeIO:
		return "IO_ERROR"
	default:
		return "UNKNOWN"
	}
}

// StoreError is a classified backend failure
type StoreError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError with the given code
func NewStoreError(code ErrorCode, message string) *StoreError {
	return &StoreError{Code: code, Message: message}
}

// WrapStoreError wraps an underlying error with a code
func WrapStoreError(code ErrorCode, message string, err error) *StoreError {
	return &StoreError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, or CodeUnknown
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}
