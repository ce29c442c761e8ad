package client

import (
	"errors"
	"fmt"
)

// FailureCause is the terminal failure reported to a request's OnFailure.
type FailureCause int

const (
	// TimedOut means the request outlived its deadline while queued.
	TimedOut FailureCause = iota
	// BufferAllocFail means no buffer could be opened, even after Reclaim.
	BufferAllocFail
	// MultipartReadInterrupted means a frame of another type arrived in the
	// middle of a multi-frame read and nothing else claimed it.
	MultipartReadInterrupted
	// StreamWriteFailure means a buffer accepted fewer bytes than written.
	StreamWriteFailure
	// MalformedHandler means the request or its reply could not be handled.
	MalformedHandler
	// ConnectionLost means the transport dropped with the request pending.
	ConnectionLost
	// ClientDestructorCalled means the client was closed with the request
	// pending.
	ClientDestructorCalled
)

// String returns a human-readable name for the failure cause
func (f FailureCause) String() string {
	switch f {
	case TimedOut:
		return "timed out"
	case BufferAllocFail:
		return "buffer allocation failed"
	case MultipartReadInterrupted:
		return "multipart read interrupted"
	case StreamWriteFailure:
		return "stream write failure"
	case MalformedHandler:
		return "malformed handler"
	case ConnectionLost:
		return "connection lost"
	case ClientDestructorCalled:
		return "client closed"
	default:
		return fmt.Sprintf("FailureCause(%d)", int(f))
	}
}

// ErrorType represents the category of a submission error
type ErrorType int

const (
	// ErrTypeQueueFull indicates the reply queue had no room, even after compaction
	ErrTypeQueueFull ErrorType = iota
	// ErrTypeSend indicates the transport refused the request frame
	ErrTypeSend
	// ErrTypeEncode indicates the request could not be encoded
	ErrTypeEncode
	// ErrTypeClosed indicates the client has been closed
	ErrTypeClosed
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeQueueFull:
		return "Queue Full"
	case ErrTypeSend:
		return "Send Error"
	case ErrTypeEncode:
		return "Encode Error"
	case ErrTypeClosed:
		return "Client Closed"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

var (
	// ErrQueueFull matches any queue-full RequestError with errors.Is.
	ErrQueueFull = errors.New("reply queue full")

	// ErrClosed matches any closed-client RequestError with errors.Is.
	ErrClosed = errors.New("client closed")

	// ErrConnectionFailed is returned by PollUntil when the connection is
	// down and could not be re-established.
	ErrConnectionFailed = errors.New("connection failed")
)

// RequestError is returned by Submit and the command methods. When one is
// returned, none of the request's callbacks will ever run.
type RequestError struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the package sentinels.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrQueueFull:
		return e.Type == ErrTypeQueueFull
	case ErrClosed:
		return e.Type == ErrTypeClosed
	}
	return false
}

// NewQueueFullError creates a queue-full error
func NewQueueFullError(needed, free int) *RequestError {
	return &RequestError{
		Type:    ErrTypeQueueFull,
		Message: fmt.Sprintf("need %d slots, %d free", needed, free),
	}
}

// NewSendError creates a transport send error
func NewSendError(message string, err error) *RequestError {
	return &RequestError{
		Type:    ErrTypeSend,
		Message: message,
		Err:     err,
	}
}

// NewEncodeError creates an encoding error
func NewEncodeError(message string, err error) *RequestError {
	return &RequestError{
		Type:    ErrTypeEncode,
		Message: message,
		Err:     err,
	}
}

func newClosedError() *RequestError {
	return &RequestError{Type: ErrTypeClosed, Message: "client is closed"}
}

// IsQueueFullError checks if an error is a queue-full error
func IsQueueFullError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Type == ErrTypeQueueFull
}

// IsSendError checks if an error is a transport send error
func IsSendError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Type == ErrTypeSend
}

// IsEncodeError checks if an error is an encoding error
func IsEncodeError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Type == ErrTypeEncode
}

// FailureError carries a request's FailureCause to synchronous callers.
type FailureError struct {
	Cause FailureCause
}

// Error implements the error interface
func (e *FailureError) Error() string {
	return "request failed: " + e.Cause.String()
}

// IsFailure reports whether err is a FailureError with the given cause.
func IsFailure(err error, cause FailureCause) bool {
	var failErr *FailureError
	return errors.As(err, &failErr) && failErr.Cause == cause
}
