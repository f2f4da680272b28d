package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeEmptyBatch: a batch with no operations was submitted.
	ErrCodeEmptyBatch ErrorCode = "EMPTY_BATCH"

	// ErrCodeBatchTooLarge: a batch exceeded the configured maximum size.
	ErrCodeBatchTooLarge ErrorCode = "BATCH_TOO_LARGE"

	// ErrCodeInvalidOperation: an operation failed validation.
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// ErrCodeBufferTooSmall: a copy-out buffer is shorter than the row count.
	ErrCodeBufferTooSmall ErrorCode = "BUFFER_TOO_SMALL"

	// ErrCodeInvalidHandle: a handle was never issued.
	ErrCodeInvalidHandle ErrorCode = "INVALID_HANDLE"

	// ErrCodeStaleHandle: a handle refers to a released slot.
	ErrCodeStaleHandle ErrorCode = "STALE_HANDLE"

	// ErrCodeReleased: a result arena was used after release.
	ErrCodeReleased ErrorCode = "RELEASED"

	// ErrCodeNotInitialized: the runtime was used before Init or after Teardown.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// ErrCodeAlreadyInitialized: Init was called twice without Teardown.
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeClosed: the engine was closed.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodePersistFailed: the durable commit of a batch failed.
	ErrCodePersistFailed ErrorCode = "PERSIST_FAILED"
)

// EngineError is a caller-contract violation or engine failure.
// Data conflicts are never reported this way; they are Outcomes.
type EngineError struct {
	Code    ErrorCode
	Message string
	Details map[string]string
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewError creates an EngineError.
func NewError(code ErrorCode, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an EngineError around a cause.
func WrapError(code ErrorCode, err error, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewBufferTooSmallError reports a copy-out buffer shorter than the row count.
func NewBufferTooSmallError(have int, need uint64) *EngineError {
	return &EngineError{
		Code:    ErrCodeBufferTooSmall,
		Message: fmt.Sprintf("buffer holds %d rows, need %d", have, need),
		Details: map[string]string{
			"have": fmt.Sprintf("%d", have),
			"need": fmt.Sprintf("%d", need),
		},
	}
}

// HasCode reports whether err (or anything it wraps) is an EngineError with code.
func HasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// CodeOf returns the code of the first EngineError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsEmptyBatch reports an ErrCodeEmptyBatch error.
func IsEmptyBatch(err error) bool { return HasCode(err, ErrCodeEmptyBatch) }

// IsBufferTooSmall reports an ErrCodeBufferTooSmall error.
func IsBufferTooSmall(err error) bool { return HasCode(err, ErrCodeBufferTooSmall) }
