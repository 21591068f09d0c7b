package stream

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by UsageError.
var (
	ErrNotStarted        = errors.New("stream not started")
	ErrAlreadyStarted    = errors.New("stream already started")
	ErrAlreadyNegotiated = errors.New("compressor already negotiated")
	ErrNegativeCredit    = errors.New("negative credit")
	ErrHalfClosed        = errors.New("write direction half-closed")
	ErrClosed            = errors.New("stream closed")
)

// Resource exhaustion failures. Both terminate the stream.
var (
	ErrPendingOverflow  = errors.New("pending inbound messages exceed limit")
	ErrOutboundOverflow = errors.New("outbound buffer exceeds limit")
)

// UsageError reports a call made in the wrong lifecycle phase or with invalid
// arguments. It is returned synchronously and does not affect stream state.
type UsageError struct {
	Op  string
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("stream: %s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// NegotiationError reports an inbound message declaring an encoding with no
// registered decompressor. It terminates the stream: skipping a message would
// silently break delivery ordering.
type NegotiationError struct {
	Encoding string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("stream: no decompressor registered for encoding %q", e.Encoding)
}

func usageErr(op string, cause error) error {
	return &UsageError{Op: op, Err: cause}
}
