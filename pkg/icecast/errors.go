package icecast

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is returned by Encode for a nil input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig covers every configuration problem found before any I/O.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnsupportedContentType is returned for content types the server
	// handshake does not accept. It also matches ErrInvalidConfig.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrContentTypeChanged is returned when a buffer declares a content type
	// different from the one already sent in the handshake. It also matches
	// ErrInvalidConfig.
	ErrContentTypeChanged = errors.New("content type changed mid-stream")

	// ErrConnectionFailed is returned when resolving, dialing or sending the
	// handshake fails. The client is unusable afterwards.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrStreamWriteFailed is returned when a buffer could not be written in
	// full. The client is unusable afterwards.
	ErrStreamWriteFailed = errors.New("stream write failed")

	// ErrCancelled is returned when a blocked Send was interrupted by Stop or
	// by its context.
	ErrCancelled = errors.New("cancelled")

	ErrClientFailed   = errors.New("client failed")
	ErrClientStopped  = errors.New("client stopped")
	ErrSendInProgress = errors.New("send already in progress")
)

// configError wraps cause so that it matches both ErrInvalidConfig and cause.
type configError struct {
	cause error
	msg   string
}

func (e *configError) Error() string {
	return ErrInvalidConfig.Error() + ": " + e.msg
}

func (e *configError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *configError) Unwrap() error { return e.cause }

func invalidConfig(cause error, format string, args ...interface{}) error {
	return &configError{cause: cause, msg: fmt.Sprintf(format, args...)}
}
