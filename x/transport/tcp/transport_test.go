package tcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/msgstream/x/stream"
	"github.com/compose-network/msgstream/x/transport"
)

// echoListener bounces every message back on its stream and keeps the credit
// window open one message at a time.
type echoListener struct {
	st *stream.MessageStream
}

func (l *echoListener) MessageRead(payload []byte) {
	_ = l.st.WriteMessage(payload)
	_ = l.st.Flush()
	_ = l.st.Request(1)
}

func (l *echoListener) OnReady()      {}
func (l *echoListener) OnClose(error) {}

type echoHandler struct{}

func (echoHandler) OnStream(st *stream.MessageStream) stream.Listener {
	return &echoListener{st: st}
}

// recordingListener collects messages delivered to the client side.
type recordingListener struct {
	mu       sync.Mutex
	messages [][]byte
	closes   int
}

func (l *recordingListener) MessageRead(payload []byte) {
	l.mu.Lock()
	l.messages = append(l.messages, payload)
	l.mu.Unlock()
}

func (l *recordingListener) OnReady() {}

func (l *recordingListener) OnClose(error) {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
}

func (l *recordingListener) Messages() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.messages))
	copy(out, l.messages)
	return out
}

func testConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func startEchoServer(t *testing.T) *Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(testConfig(), stream.DefaultConfig(), echoHandler{}, nil, nil, zerolog.Nop())

	go func() {
		_ = srv.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return srv.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "server did not bind")

	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return srv
}

func TestTransport_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	srv := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, srv.Addr(), testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.ElementsMatch(t, []string{"gzip", "snappy", "zstd"}, client.PeerEncodings())

	listener := &recordingListener{}
	st, err := client.OpenStream(listener, stream.DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, st.Request(3))
	require.NoError(t, st.WriteMessage([]byte("one")))
	require.NoError(t, st.WriteMessage([]byte("two")))
	require.NoError(t, st.WriteMessage([]byte("three")))
	require.NoError(t, st.Flush())

	require.Eventually(t, func() bool {
		return len(listener.Messages()) == 3
	}, 5*time.Second, 10*time.Millisecond)

	msgs := listener.Messages()
	assert.Equal(t, []byte("one"), msgs[0])
	assert.Equal(t, []byte("two"), msgs[1])
	assert.Equal(t, []byte("three"), msgs[2])
}

func TestTransport_CompressedEcho(t *testing.T) {
	t.Parallel()

	srv := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, srv.Addr(), testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	listener := &recordingListener{}
	st, err := client.OpenStream(listener, stream.DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, st.SetMessageCompression(true))
	require.NoError(t, st.Request(1))

	payload := []byte("this payload crosses the wire gzip-compressed")
	require.NoError(t, st.WriteMessage(payload))
	require.NoError(t, st.Flush())

	require.Eventually(t, func() bool {
		return len(listener.Messages()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, payload, listener.Messages()[0])
}

func TestTransport_SecondStreamRejected(t *testing.T) {
	t.Parallel()

	srv := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, srv.Addr(), testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.OpenStream(&recordingListener{}, stream.DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = client.OpenStream(&recordingListener{}, stream.DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrStreamOpen)
}

func TestTransport_ServerSnapshotsAndLimit(t *testing.T) {
	t.Parallel()

	srv := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, srv.Addr(), testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.OpenStream(&recordingListener{}, stream.DefaultConfig(), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(srv.Snapshots()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	snap := srv.Snapshots()[0]
	assert.Equal(t, "active", snap.State)
	assert.Equal(t, "gzip", snap.Encoding)
}

func TestTransport_ClientCloseClosesStream(t *testing.T) {
	t.Parallel()

	srv := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, srv.Addr(), testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)

	listener := &recordingListener{}
	st, err := client.OpenStream(listener, stream.DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return st.State() == stream.StateClosed
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return listener.closes == 1
	}, 5*time.Second, 10*time.Millisecond)
}
