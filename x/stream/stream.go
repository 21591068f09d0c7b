package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/compose-network/msgstream/x/codec"
	"github.com/compose-network/msgstream/x/transport"
)

// MessageStream is the concrete Stream implementation. It composes the demand
// tracker, readiness signal and negotiation state over a transport.Sink.
//
// Application-side calls must be serialized by the caller. HandleFrame and
// SetWritable are driven by the carrier's I/O goroutine and may run
// concurrently with them; the demand tracker, readiness signal and close state
// are the only state shared across the two.
type MessageStream struct {
	id    string
	log   zerolog.Logger
	sink  transport.Sink
	stats Stats
	cfg   Config

	demand       *demandTracker
	ready        *readySignal
	closed       atomic.Bool
	readyPending atomic.Bool

	mu         sync.Mutex
	state      State
	listener   Listener
	outbound   []transport.Frame
	delivering bool
	closeErr   error

	// Negotiation state. Written only before Start, read-only afterwards.
	compressors      *codec.CompressorRegistry
	decompressors    *codec.DecompressorRegistry
	negotiated       codec.Compressor
	negotiationDone  bool
	compressMessages bool

	closeOnce sync.Once
}

var _ Stream = (*MessageStream)(nil)
var _ transport.Handler = (*MessageStream)(nil)

// New creates a stream in the Created state. The listener's lifetime is
// managed by the caller; the stream drops its reference on close.
func New(id string, sink transport.Sink, listener Listener, cfg Config) *MessageStream {
	cfg = cfg.withDefaults()

	return &MessageStream{
		id:       id,
		log:      cfg.Logger.With().Str("component", "stream").Str("stream_id", id).Logger(),
		sink:     sink,
		stats:    cfg.Stats,
		cfg:      cfg,
		demand:   newDemandTracker(cfg.MaxPendingMessages),
		ready:    newReadySignal(cfg.MaxOutboundBuffered),
		listener: listener,
	}
}

// ID returns the stream identifier.
func (s *MessageStream) ID() string { return s.id }

// SetListener replaces the listener before activation. Carrier bindings use
// this when the listener needs a reference to the stream it consumes.
func (s *MessageStream) SetListener(l Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigPhase("set_listener"); err != nil {
		return err
	}
	s.listener = l
	return nil
}

// State returns the current lifecycle phase.
func (s *MessageStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetCompressorRegistry replaces the registry consulted by PickCompressor.
// Must be called before negotiation.
func (s *MessageStream) SetCompressorRegistry(reg *codec.CompressorRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigPhase("set_compressor_registry"); err != nil {
		return err
	}
	if s.negotiationDone {
		return usageErr("set_compressor_registry", ErrAlreadyNegotiated)
	}
	s.compressors = reg
	s.state = StateConfigured
	return nil
}

// SetDecompressorRegistry replaces the registry used to resolve inbound
// message encodings. Must be called before Start.
func (s *MessageStream) SetDecompressorRegistry(reg *codec.DecompressorRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigPhase("set_decompressor_registry"); err != nil {
		return err
	}
	s.decompressors = reg
	s.state = StateConfigured
	return nil
}

// PickCompressor selects a compressor the remote endpoint accepts, in registry
// preference order, and records it for the write path. Negotiation happens at
// most once; a second call is a usage error.
func (s *MessageStream) PickCompressor(encodings []string) (codec.Compressor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigPhase("pick_compressor"); err != nil {
		return nil, err
	}
	if s.negotiationDone {
		return nil, usageErr("pick_compressor", ErrAlreadyNegotiated)
	}
	s.negotiationDone = true

	if s.compressors == nil {
		s.compressors = codec.DefaultCompressorRegistry()
	}
	s.negotiated = selectCompressor(s.compressors, encodings)
	s.state = StateConfigured

	if s.negotiated != nil {
		s.log.Debug().Str("encoding", s.negotiated.Name()).Msg("Negotiated message compression")
	} else {
		s.log.Debug().Strs("offered", encodings).Msg("No acceptable message encoding")
	}
	return s.negotiated, nil
}

// SetMessageCompression toggles per-message compression. A documented no-op
// when no compressor has been negotiated. May be called between messages; the
// announced encoding never changes mid-message because each written message is
// framed atomically.
func (s *MessageStream) SetMessageCompression(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return usageErr("set_message_compression", ErrClosed)
	}
	if s.negotiated == nil {
		return nil
	}
	s.compressMessages = enable
	return nil
}

// Start activates the stream. Unset registries default to the built-ins.
func (s *MessageStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCreated, StateConfigured:
	default:
		return usageErr("start", ErrAlreadyStarted)
	}

	if s.compressors == nil {
		s.compressors = codec.DefaultCompressorRegistry()
	}
	if s.decompressors == nil {
		s.decompressors = codec.DefaultDecompressorRegistry()
	}
	s.state = StateActive

	s.log.Debug().Msg("Stream started")
	return nil
}

// Request grants n additional delivery credits and drains any deliverable
// pending messages. Never blocks.
func (s *MessageStream) Request(n int) error {
	if n < 0 {
		return usageErr("request", ErrNegativeCredit)
	}

	s.mu.Lock()
	switch s.state {
	case StateActive, StateHalfClosed:
	case StateClosed:
		s.mu.Unlock()
		return usageErr("request", ErrClosed)
	default:
		s.mu.Unlock()
		return usageErr("request", ErrNotStarted)
	}
	s.mu.Unlock()

	if n == 0 {
		return nil
	}

	s.demand.grant(n)
	s.stats.CreditGranted(n)
	s.deliverPending()
	return nil
}

// WriteMessage buffers one payload for transmission, compressing it when
// message compression is enabled and a compressor was negotiated. Never
// blocks; submission order is preserved.
func (s *MessageStream) WriteMessage(payload []byte) error {
	s.mu.Lock()
	switch s.state {
	case StateActive:
	case StateHalfClosed:
		s.mu.Unlock()
		return usageErr("write_message", ErrHalfClosed)
	case StateClosed:
		s.mu.Unlock()
		return usageErr("write_message", ErrClosed)
	default:
		s.mu.Unlock()
		return usageErr("write_message", ErrNotStarted)
	}
	compress := s.compressMessages && s.negotiated != nil
	compressor := s.negotiated
	s.mu.Unlock()

	frame := transport.Frame{Encoding: codec.NameIdentity, Payload: payload}
	if compress {
		data, err := compressor.Compress(payload)
		if err != nil {
			err = fmt.Errorf("compress message: %w", err)
			s.fail(err)
			return err
		}
		frame = transport.Frame{Encoding: compressor.Name(), Compressed: true, Payload: data}
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return usageErr("write_message", ErrClosed)
	}
	s.outbound = append(s.outbound, frame)
	depth := len(s.outbound)
	s.mu.Unlock()

	s.ready.setBuffered(depth)

	if depth > s.cfg.MaxOutboundBuffered*outboundHardFactor {
		s.fail(ErrOutboundOverflow)
		return ErrOutboundOverflow
	}
	return nil
}

// Flush hands all buffered frames to the carrier in submission order.
func (s *MessageStream) Flush() error {
	s.mu.Lock()
	switch s.state {
	case StateActive:
	case StateHalfClosed:
		s.mu.Unlock()
		return usageErr("flush", ErrHalfClosed)
	case StateClosed:
		s.mu.Unlock()
		return usageErr("flush", ErrClosed)
	default:
		s.mu.Unlock()
		return usageErr("flush", ErrNotStarted)
	}
	batch := s.outbound
	s.outbound = nil
	s.mu.Unlock()

	if err := s.writeBatch(batch); err != nil {
		return err
	}

	if edge := s.ready.setBuffered(0); edge {
		s.scheduleReady()
	}
	return nil
}

// IsReady reports whether the carrier can absorb more writes without excessive
// buffering. Always false before Start and after close.
func (s *MessageStream) IsReady() bool {
	s.mu.Lock()
	active := s.state == StateActive || s.state == StateHalfClosed
	s.mu.Unlock()

	return active && s.ready.isReady()
}

// HalfClose flushes buffered frames and closes the write direction. Inbound
// delivery continues until Close.
func (s *MessageStream) HalfClose() error {
	s.mu.Lock()
	switch s.state {
	case StateActive:
	case StateHalfClosed, StateClosed:
		s.mu.Unlock()
		return usageErr("half_close", ErrClosed)
	default:
		s.mu.Unlock()
		return usageErr("half_close", ErrNotStarted)
	}
	s.state = StateHalfClosed
	batch := s.outbound
	s.outbound = nil
	s.mu.Unlock()

	s.log.Debug().Msg("Stream half-closed")
	return s.writeBatch(batch)
}

// Close terminates the stream from either goroutine. Idempotent. Pending
// messages are dropped, the listener receives OnClose exactly once as its
// final callback, and the listener reference is released.
func (s *MessageStream) Close(err error) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.closeErr = err
	s.outbound = nil
	delivering := s.delivering
	s.mu.Unlock()

	s.closed.Store(true)
	s.demand.reset()
	s.stats.StreamClosed(err)

	if err != nil {
		s.log.Warn().Err(err).Msg("Stream closed with error")
	} else {
		s.log.Debug().Msg("Stream closed")
	}

	// If a delivery loop is running it observes the closed flag after the
	// current callback returns and emits OnClose itself, so the listener
	// never sees MessageRead after OnClose.
	if !delivering {
		s.notifyClose()
	}
	return nil
}

// HandleFrame delivers one inbound frame from the carrier's read goroutine.
// The payload is decompressed per its declared encoding and forwarded to the
// listener strictly under credit. A returned error means the stream failed.
func (s *MessageStream) HandleFrame(frame transport.Frame) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	switch s.state {
	case StateActive, StateHalfClosed:
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return usageErr("handle_frame", ErrNotStarted)
	}
	decompressors := s.decompressors
	s.mu.Unlock()

	payload := frame.Payload
	if frame.Compressed {
		d, ok := decompressors.Get(frame.Encoding)
		if !ok {
			err := &NegotiationError{Encoding: frame.Encoding}
			s.fail(err)
			return err
		}
		decoded, err := d.Decompress(payload)
		if err != nil {
			err = fmt.Errorf("decompress %s message: %w", frame.Encoding, err)
			s.fail(err)
			return err
		}
		payload = decoded
	}

	s.stats.MessageReceived(frame.Encoding, len(frame.Payload))

	if err := s.demand.enqueue(payload); err != nil {
		s.fail(err)
		return err
	}
	s.stats.PendingDepth(s.demand.depth())

	s.deliverPending()
	return nil
}

// SetWritable records carrier write capacity from the I/O goroutine and fires
// OnReady on a false-to-true readiness edge.
func (s *MessageStream) SetWritable(writable bool) {
	if edge := s.ready.setWritable(writable); edge {
		s.scheduleReady()
	}
}

// Snapshot describes a stream for diagnostics.
type Snapshot struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Credit   int64  `json:"credit"`
	Pending  int    `json:"pending"`
	Outbound int    `json:"outbound"`
	Ready    bool   `json:"ready"`
	Encoding string `json:"encoding,omitempty"`
}

// Snapshot returns a point-in-time view of the stream.
func (s *MessageStream) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:       s.id,
		State:    s.state.String(),
		Outbound: len(s.outbound),
	}
	if s.negotiated != nil {
		snap.Encoding = s.negotiated.Name()
	}
	s.mu.Unlock()

	snap.Credit = s.demand.outstanding()
	snap.Pending = s.demand.depth()
	snap.Ready = s.ready.isReady()
	return snap
}

// requireConfigPhase must be called with s.mu held.
func (s *MessageStream) requireConfigPhase(op string) error {
	switch s.state {
	case StateCreated, StateConfigured:
		return nil
	case StateClosed:
		return usageErr(op, ErrClosed)
	default:
		return usageErr(op, ErrAlreadyStarted)
	}
}

func (s *MessageStream) writeBatch(batch []transport.Frame) error {
	for _, frame := range batch {
		if err := s.sink.WriteFrame(frame); err != nil {
			err = fmt.Errorf("write frame: %w", err)
			s.fail(err)
			return err
		}
		s.stats.MessageSent(frame.Encoding, len(frame.Payload))
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.sink.Flush(); err != nil {
		err = fmt.Errorf("flush carrier: %w", err)
		s.fail(err)
		return err
	}
	return nil
}

// scheduleReady flags a readiness edge for the delivery loop. Routing OnReady
// through the same loop as message callbacks keeps every listener invocation
// on a single logical executor, which is what makes the close barrier hold.
func (s *MessageStream) scheduleReady() {
	s.readyPending.Store(true)
	s.deliverPending()
}

// deliverPending drains deliverable messages and flagged readiness edges to
// the listener. A single delivery loop runs at a time; callbacks execute
// without stream locks held, so a listener may re-enter Request and the loop
// picks up the new credit. When the stream closes mid-loop, the loop emits
// OnClose after the current callback returns, so the listener never observes
// a callback after OnClose.
func (s *MessageStream) deliverPending() {
	s.mu.Lock()
	if s.delivering || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	for {
		for !s.closed.Load() {
			s.mu.Lock()
			listener := s.listener
			s.mu.Unlock()
			if listener == nil {
				break
			}

			if s.readyPending.CompareAndSwap(true, false) {
				listener.OnReady()
				continue
			}

			msg, ok := s.demand.next()
			if !ok {
				break
			}
			listener.MessageRead(msg)
			s.stats.MessageDelivered()
		}

		s.mu.Lock()
		if s.state == StateClosed {
			s.delivering = false
			s.mu.Unlock()
			s.notifyClose()
			return
		}
		// Credit, messages or a readiness edge may have arrived between the
		// last check and re-acquiring the lock; loop again instead of parking.
		if s.demand.deliverable() || s.readyPending.Load() {
			s.mu.Unlock()
			continue
		}
		s.delivering = false
		s.mu.Unlock()
		return
	}
}

func (s *MessageStream) notifyClose() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		listener := s.listener
		err := s.closeErr
		s.listener = nil
		s.mu.Unlock()

		if listener != nil {
			listener.OnClose(err)
		}
	})
}

func (s *MessageStream) fail(err error) {
	_ = s.Close(err)
}
