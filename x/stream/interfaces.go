// Package stream implements a flow-controlled, compression-negotiating message
// stream: one ordered bidirectional channel of opaque payloads between two
// endpoints, with credit-based inbound delivery and non-blocking buffered
// writes paced by an edge-triggered readiness signal.
package stream

import (
	"github.com/compose-network/msgstream/x/codec"
)

// Listener consumes inbound messages and stream events. The stream invokes it
// without holding internal locks; MessageRead may re-enter the stream (for
// example to request more credit). After OnClose fires, no further callbacks
// are made and the stream drops its listener reference.
type Listener interface {
	// MessageRead delivers one decoded message payload.
	MessageRead(payload []byte)
	// OnReady signals a false-to-true readiness transition, exactly once per
	// edge.
	OnReady()
	// OnClose signals stream termination. err is nil on orderly close.
	OnClose(err error)
}

// Stream is the application-facing contract. Configuration calls
// (PickCompressor, SetMessageCompression, registry setters) are only valid
// before Start; data-path calls (Request, WriteMessage, Flush) only after.
//
// Applications must serialize their own calls; only the transport-facing side
// (see transport.Handler) may run concurrently with them.
type Stream interface {
	// Request grants n additional delivery credits. n == 0 is a no-op;
	// n < 0 is a usage error.
	Request(n int) error

	// WriteMessage hands one payload to the stream for transmission. It never
	// blocks; payloads buffer internally until Flush. Submission order is
	// preserved.
	WriteMessage(payload []byte) error

	// Flush pushes buffered payloads to the carrier.
	Flush() error

	// IsReady reports whether more writes can be accepted without excessive
	// buffering. Advisory: writing while not ready only grows the buffer.
	IsReady() bool

	// PickCompressor selects a compressor whose encoding the remote endpoint
	// accepts, in registry preference order. Returns nil when there is no
	// match. Calling it a second time is a usage error.
	PickCompressor(encodings []string) (codec.Compressor, error)

	// SetMessageCompression toggles per-message compression. A no-op when no
	// compressor has been negotiated.
	SetMessageCompression(enable bool) error

	// SetCompressorRegistry replaces the registry consulted by PickCompressor.
	SetCompressorRegistry(reg *codec.CompressorRegistry) error

	// SetDecompressorRegistry replaces the registry used to resolve inbound
	// message encodings.
	SetDecompressorRegistry(reg *codec.DecompressorRegistry) error

	// Start activates the stream. Unset registries default to the built-ins.
	Start() error

	// HalfClose flushes and closes the write direction. Inbound delivery
	// continues until Close.
	HalfClose() error

	// Close terminates the stream. Idempotent; safe from any goroutine. The
	// listener receives OnClose exactly once as its final callback.
	Close(err error) error
}

// Stats receives stream-level measurements. Implementations must be safe for
// concurrent use. See internal/network for the prometheus implementation.
type Stats interface {
	MessageSent(encoding string, sizeBytes int)
	MessageReceived(encoding string, sizeBytes int)
	MessageDelivered()
	CreditGranted(n int)
	PendingDepth(depth int)
	StreamClosed(err error)
}

type noopStats struct{}

func (noopStats) MessageSent(string, int)     {}
func (noopStats) MessageReceived(string, int) {}
func (noopStats) MessageDelivered()           {}
func (noopStats) CreditGranted(int)           {}
func (noopStats) PendingDepth(int)            {}
func (noopStats) StreamClosed(error)          {}
