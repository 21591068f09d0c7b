package stream

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/msgstream/x/codec"
	"github.com/compose-network/msgstream/x/transport"
)

// testSink records frames handed to the carrier.
type testSink struct {
	mu       sync.Mutex
	frames   []transport.Frame
	flushes  int
	writeErr error
}

func (s *testSink) WriteFrame(f transport.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *testSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *testSink) Frames() []transport.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// testListener records callbacks; onRead optionally re-enters the stream.
type testListener struct {
	mu       sync.Mutex
	messages [][]byte
	readies  int
	closes   []error
	onRead   func(payload []byte)
}

func (l *testListener) MessageRead(payload []byte) {
	l.mu.Lock()
	l.messages = append(l.messages, payload)
	hook := l.onRead
	l.mu.Unlock()
	if hook != nil {
		hook(payload)
	}
}

func (l *testListener) OnReady() {
	l.mu.Lock()
	l.readies++
	l.mu.Unlock()
}

func (l *testListener) OnClose(err error) {
	l.mu.Lock()
	l.closes = append(l.closes, err)
	l.mu.Unlock()
}

func (l *testListener) Messages() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *testListener) Readies() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readies
}

func (l *testListener) Closes() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]error, len(l.closes))
	copy(out, l.closes)
	return out
}

func newTestStream(t *testing.T) (*MessageStream, *testSink, *testListener) {
	t.Helper()
	sink := &testSink{}
	listener := &testListener{}
	st := New("test-stream", sink, listener, DefaultConfig())
	return st, sink, listener
}

func startedStream(t *testing.T) (*MessageStream, *testSink, *testListener) {
	t.Helper()
	st, sink, listener := newTestStream(t)
	require.NoError(t, st.Start())
	return st, sink, listener
}

func inbound(payload string) transport.Frame {
	return transport.Frame{Encoding: codec.NameIdentity, Payload: []byte(payload)}
}

func TestStream_DataPathBeforeStartIsUsageError(t *testing.T) {
	t.Parallel()

	st, _, _ := newTestStream(t)

	var usage *UsageError

	err := st.Request(1)
	require.ErrorAs(t, err, &usage)
	assert.ErrorIs(t, err, ErrNotStarted)

	err = st.WriteMessage([]byte("x"))
	assert.ErrorIs(t, err, ErrNotStarted)

	err = st.Flush()
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.False(t, st.IsReady())
}

func TestStream_ConfigAfterStartIsUsageError(t *testing.T) {
	t.Parallel()

	st, _, _ := startedStream(t)

	_, err := st.PickCompressor([]string{"gzip"})
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	err = st.SetCompressorRegistry(codec.NewCompressorRegistry())
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	err = st.SetDecompressorRegistry(codec.NewDecompressorRegistry())
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	err = st.Start()
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStream_PickCompressorTwiceIsUsageError(t *testing.T) {
	t.Parallel()

	st, _, _ := newTestStream(t)
	require.NoError(t, st.SetCompressorRegistry(gzipOnlyRegistry()))

	c, err := st.PickCompressor([]string{"gzip"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "gzip", c.Name())

	_, err = st.PickCompressor([]string{"gzip"})
	assert.ErrorIs(t, err, ErrAlreadyNegotiated)
}

func TestStream_NegativeCreditRejected(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)

	err := st.Request(-1)
	assert.ErrorIs(t, err, ErrNegativeCredit)

	// The counter is untouched: a message still needs real credit.
	require.NoError(t, st.HandleFrame(inbound("m")))
	assert.Empty(t, listener.Messages())
}

func TestStream_RequestZeroIsNoOp(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)
	require.NoError(t, st.HandleFrame(inbound("m")))

	require.NoError(t, st.Request(0))
	assert.Empty(t, listener.Messages())

	require.NoError(t, st.Request(1))
	assert.Len(t, listener.Messages(), 1)
}

func TestStream_CreditGatesDelivery(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)

	require.NoError(t, st.Request(2))
	require.NoError(t, st.HandleFrame(inbound("a")))
	require.NoError(t, st.HandleFrame(inbound("b")))
	require.NoError(t, st.HandleFrame(inbound("c")))

	msgs := listener.Messages()
	require.Len(t, msgs, 2, "third message must wait for credit")
	assert.Equal(t, []byte("a"), msgs[0])
	assert.Equal(t, []byte("b"), msgs[1])

	require.NoError(t, st.Request(1))
	msgs = listener.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []byte("c"), msgs[2])
}

func TestStream_ListenerMayRequestFromCallback(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)
	listener.onRead = func([]byte) {
		// Pull-based consumer: one credit per delivered message.
		_ = st.Request(1)
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, st.HandleFrame(inbound("m")))
	}
	require.NoError(t, st.Request(1))

	assert.Len(t, listener.Messages(), 5)
}

func TestStream_WriteOrderPreservedAcrossCompressionToggles(t *testing.T) {
	t.Parallel()

	sink := &testSink{}
	listener := &testListener{}
	st := New("s", sink, listener, DefaultConfig())

	require.NoError(t, st.SetCompressorRegistry(gzipOnlyRegistry()))
	_, err := st.PickCompressor([]string{"gzip"})
	require.NoError(t, err)
	require.NoError(t, st.Start())

	require.NoError(t, st.WriteMessage([]byte("A")))
	require.NoError(t, st.SetMessageCompression(true))
	require.NoError(t, st.WriteMessage([]byte("B")))
	require.NoError(t, st.SetMessageCompression(false))
	require.NoError(t, st.WriteMessage([]byte("C")))
	require.NoError(t, st.Flush())

	frames := sink.Frames()
	require.Len(t, frames, 3)

	assert.False(t, frames[0].Compressed)
	assert.Equal(t, []byte("A"), frames[0].Payload)

	assert.True(t, frames[1].Compressed)
	assert.Equal(t, "gzip", frames[1].Encoding)
	decoded, err := codec.NewGzipDecompressor().Decompress(frames[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), decoded)

	assert.False(t, frames[2].Compressed)
	assert.Equal(t, []byte("C"), frames[2].Payload)
}

func TestStream_CompressionToggleWithoutNegotiationIsNoOp(t *testing.T) {
	t.Parallel()

	st, sink, _ := newTestStream(t)

	require.NoError(t, st.SetMessageCompression(true))
	require.NoError(t, st.Start())
	require.NoError(t, st.WriteMessage([]byte("plain")))
	require.NoError(t, st.Flush())

	frames := sink.Frames()
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Compressed)
	assert.Equal(t, []byte("plain"), frames[0].Payload)
}

func TestStream_NegotiatedGzipRoundTrip(t *testing.T) {
	t.Parallel()

	sink := &testSink{}
	st := New("s", sink, &testListener{}, DefaultConfig())
	require.NoError(t, st.SetCompressorRegistry(gzipOnlyRegistry()))

	c, err := st.PickCompressor([]string{"gzip", "snappy"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "gzip", c.Name())

	require.NoError(t, st.Start())
	require.NoError(t, st.SetMessageCompression(true))

	payload := []byte("the payload to survive the round trip")
	require.NoError(t, st.WriteMessage(payload))
	require.NoError(t, st.Flush())

	frames := sink.Frames()
	require.Len(t, frames, 1)
	require.True(t, frames[0].Compressed)

	decoded, err := codec.NewGzipDecompressor().Decompress(frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestStream_InboundCompressedMessage(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)
	require.NoError(t, st.Request(1))

	compressed, err := codec.NewGzipCompressor().Compress([]byte("inbound"))
	require.NoError(t, err)

	require.NoError(t, st.HandleFrame(transport.Frame{
		Encoding:   "gzip",
		Compressed: true,
		Payload:    compressed,
	}))

	msgs := listener.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("inbound"), msgs[0])
}

func TestStream_UnknownEncodingFailsStream(t *testing.T) {
	t.Parallel()

	sink := &testSink{}
	listener := &testListener{}
	st := New("s", sink, listener, DefaultConfig())
	require.NoError(t, st.SetDecompressorRegistry(codec.NewDecompressorRegistry()))
	require.NoError(t, st.Start())
	require.NoError(t, st.Request(1))

	err := st.HandleFrame(transport.Frame{Encoding: "brotli", Compressed: true, Payload: []byte{1}})

	var negErr *NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, "brotli", negErr.Encoding)

	assert.Equal(t, StateClosed, st.State())
	closes := listener.Closes()
	require.Len(t, closes, 1)
	assert.ErrorAs(t, closes[0], &negErr)
}

func TestStream_PendingOverflowFailsStream(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxPendingMessages = 2

	listener := &testListener{}
	st := New("s", &testSink{}, listener, cfg)
	require.NoError(t, st.Start())

	require.NoError(t, st.HandleFrame(inbound("a")))
	require.NoError(t, st.HandleFrame(inbound("b")))

	err := st.HandleFrame(inbound("c"))
	assert.ErrorIs(t, err, ErrPendingOverflow)
	assert.Equal(t, StateClosed, st.State())

	closes := listener.Closes()
	require.Len(t, closes, 1)
	assert.ErrorIs(t, closes[0], ErrPendingOverflow)
}

func TestStream_ReadyEdgeFiresOnce(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)

	st.SetWritable(false)
	assert.False(t, st.IsReady())
	assert.Equal(t, 0, listener.Readies())

	st.SetWritable(true)
	assert.True(t, st.IsReady())
	assert.Equal(t, 1, listener.Readies())

	// Redundant capacity reports and polling produce no further edges.
	for i := 0; i < 20; i++ {
		st.SetWritable(true)
		_ = st.IsReady()
	}
	assert.Equal(t, 1, listener.Readies())
}

func TestStream_OutboundBufferingDropsReadiness(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxOutboundBuffered = 2

	listener := &testListener{}
	sink := &testSink{}
	st := New("s", sink, listener, cfg)
	require.NoError(t, st.Start())

	require.NoError(t, st.WriteMessage([]byte("a")))
	assert.True(t, st.IsReady())

	require.NoError(t, st.WriteMessage([]byte("b")))
	assert.False(t, st.IsReady(), "threshold reached")

	require.NoError(t, st.Flush())
	assert.True(t, st.IsReady())
	assert.Equal(t, 1, listener.Readies())
	assert.Len(t, sink.Frames(), 2)
}

func TestStream_OutboundHardCapFailsStream(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxOutboundBuffered = 1

	listener := &testListener{}
	st := New("s", &testSink{}, listener, cfg)
	require.NoError(t, st.Start())

	var err error
	for i := 0; i < 10; i++ {
		err = st.WriteMessage([]byte("x"))
		if err != nil {
			break
		}
	}

	assert.ErrorIs(t, err, ErrOutboundOverflow)
	assert.Equal(t, StateClosed, st.State())
}

func TestStream_CloseIsIdempotentAndFinal(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)

	require.NoError(t, st.Close(nil))
	require.NoError(t, st.Close(errors.New("late")))

	closes := listener.Closes()
	require.Len(t, closes, 1)
	assert.NoError(t, closes[0])

	// No callbacks after close.
	assert.ErrorIs(t, st.HandleFrame(inbound("m")), ErrClosed)
	st.SetWritable(false)
	st.SetWritable(true)
	assert.Empty(t, listener.Messages())
	assert.Equal(t, 0, listener.Readies())

	assert.ErrorIs(t, st.Request(1), ErrClosed)
	assert.ErrorIs(t, st.WriteMessage([]byte("x")), ErrClosed)
}

func TestStream_CloseFromListenerCallback(t *testing.T) {
	t.Parallel()

	st, _, listener := startedStream(t)
	listener.onRead = func([]byte) {
		_ = st.Close(nil)
	}

	require.NoError(t, st.Request(5))
	require.NoError(t, st.HandleFrame(inbound("a")))

	// The second frame arrives after close and is rejected; the listener saw
	// exactly one message and then OnClose.
	assert.ErrorIs(t, st.HandleFrame(inbound("b")), ErrClosed)
	assert.Len(t, listener.Messages(), 1)
	require.Len(t, listener.Closes(), 1)
}

func TestStream_HalfCloseStopsWritesKeepsReads(t *testing.T) {
	t.Parallel()

	st, sink, listener := startedStream(t)

	require.NoError(t, st.WriteMessage([]byte("tail")))
	require.NoError(t, st.HalfClose())

	// Buffered output was flushed on half-close.
	require.Len(t, sink.Frames(), 1)

	assert.ErrorIs(t, st.WriteMessage([]byte("x")), ErrHalfClosed)
	assert.ErrorIs(t, st.Flush(), ErrHalfClosed)

	require.NoError(t, st.Request(1))
	require.NoError(t, st.HandleFrame(inbound("in")))
	assert.Len(t, listener.Messages(), 1)
}

func TestStream_ConcurrentInboundAndCredit(t *testing.T) {
	t.Parallel()

	const total = 500

	st, _, listener := startedStream(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_ = st.HandleFrame(inbound("m"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_ = st.Request(1)
		}
	}()
	wg.Wait()

	// Drain whatever credit/pending alignment remains.
	snap := st.Snapshot()
	assert.LessOrEqual(t, len(listener.Messages()), total)
	assert.Equal(t, int64(total-len(listener.Messages())), snap.Credit)
}

func TestStream_SnapshotReflectsState(t *testing.T) {
	t.Parallel()

	st, _, _ := newTestStream(t)
	require.NoError(t, st.SetCompressorRegistry(gzipOnlyRegistry()))
	_, err := st.PickCompressor([]string{"gzip"})
	require.NoError(t, err)
	require.NoError(t, st.Start())

	require.NoError(t, st.Request(3))
	require.NoError(t, st.HandleFrame(inbound("a")))

	snap := st.Snapshot()
	assert.Equal(t, "test-stream", snap.ID)
	assert.Equal(t, "active", snap.State)
	assert.Equal(t, int64(2), snap.Credit)
	assert.Equal(t, 0, snap.Pending)
	assert.Equal(t, "gzip", snap.Encoding)
	assert.True(t, snap.Ready)
}
