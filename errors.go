package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned when an optional operation is not supported.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNeedMoreInput is returned by a Decoder when it cannot produce a frame
	// until it receives more packets. It is not a failure.
	ErrNeedMoreInput = errors.New("decoder needs more input")

	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = errors.New("frame queue closed")

	// ErrAlreadyRunning is returned by Start while a decode goroutine is active.
	ErrAlreadyRunning = errors.New("decode pipeline already running")

	// ErrConverterNotInitialized is returned when conversion is requested
	// without a usable conversion context.
	ErrConverterNotInitialized = errors.New("video converter not initialized")

	// ErrUnsupportedFormat is returned for pixel format pairs a converter
	// cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
)

// DecodeError reports a failed decoder transaction.
type DecodeError struct {
	Media StreamKind
	Stage string // "send" or "receive"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decoder %s failed: %v", e.Media, e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConversionError reports a failed video conversion call.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("video conversion failed: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
