package tcp

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/msgstream/x/codec"
	"github.com/compose-network/msgstream/x/stream"
	"github.com/compose-network/msgstream/x/transport"
)

// ErrStreamOpen is returned when OpenStream is called twice: a connection
// carries exactly one stream.
var ErrStreamOpen = errors.New("tcp: stream already open on this connection")

// Client dials a stream server and opens one stream over the connection.
type Client struct {
	cfg           transport.Config
	log           zerolog.Logger
	conn          *Connection
	decompressors *codec.DecompressorRegistry
	peerEncodings []string

	mtx    sync.Mutex
	opened bool
}

// Dial connects and performs the encoding advertisement handshake. The
// decompressor registry determines what this side advertises; nil defaults to
// the built-ins.
func Dial(ctx context.Context, addr string, cfg transport.Config, decompressors *codec.DecompressorRegistry, log zerolog.Logger) (*Client, error) {
	if decompressors == nil {
		decompressors = codec.DefaultDecompressorRegistry()
	}

	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	conn := NewConnection(netConn, uuid.NewString(), cfg, log)

	if err := conn.SendAdvertisement(decompressors.Names()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	peerEncodings, err := conn.ReadAdvertisement()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Client{
		cfg:           cfg,
		log:           log.With().Str("component", "tcp-client").Logger(),
		conn:          conn,
		decompressors: decompressors,
		peerEncodings: peerEncodings,
	}, nil
}

// PeerEncodings returns the encodings the server advertised.
func (c *Client) PeerEncodings() []string {
	out := make([]string, len(c.peerEncodings))
	copy(out, c.peerEncodings)
	return out
}

// OpenStream negotiates, starts and serves the connection's stream. The read
// loop runs on its own goroutine and closes the stream when the connection
// ends.
func (c *Client) OpenStream(listener stream.Listener, scfg stream.Config, compressors *codec.CompressorRegistry) (*stream.MessageStream, error) {
	c.mtx.Lock()
	if c.opened {
		c.mtx.Unlock()
		return nil, ErrStreamOpen
	}
	c.opened = true
	c.mtx.Unlock()

	if compressors == nil {
		compressors = codec.DefaultCompressorRegistry()
	}

	st := stream.New(c.conn.ID(), c.conn, listener, scfg)
	if err := st.SetCompressorRegistry(compressors); err != nil {
		return nil, err
	}
	if err := st.SetDecompressorRegistry(c.decompressors); err != nil {
		return nil, err
	}
	if _, err := st.PickCompressor(c.peerEncodings); err != nil {
		return nil, err
	}
	if err := st.Start(); err != nil {
		return nil, err
	}
	c.conn.Attach(st)

	go func() {
		err := c.conn.Serve()
		_ = st.Close(normalizeEOF(err))
	}()

	return st, nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}
