package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/msgstream/x/transport"
)

// ErrOutboundFull is returned by WriteFrame when the connection's outbound
// queue cannot absorb another frame. The stream treats it as carrier failure.
var ErrOutboundFull = errors.New("tcp: outbound queue full")

// handshakeTimeout bounds the initial encoding advertisement exchange.
const handshakeTimeout = 5 * time.Second

type outboundItem struct {
	frame transport.Frame
	flush bool
}

// Connection wraps one net.Conn carrying a single message stream. It
// implements transport.Sink: frames are queued to a writer goroutine so that
// WriteFrame and Flush never block on the socket, and queue occupancy is
// reported to the stream through transport.Handler.SetWritable.
type Connection struct {
	conn     net.Conn
	id       string
	log      zerolog.Logger
	codec    *FrameCodec
	cfg      transport.Config
	outbound chan outboundItem
	done     chan struct{}

	reader *bufio.Reader
	writer *bufio.Writer

	mu         sync.RWMutex
	handler    transport.Handler
	unwritable bool
	info       transport.ConnectionInfo
	closeErr   error

	closeOnce sync.Once

	bytesRead    uint64
	bytesWritten uint64
}

// NewConnection wraps an established net.Conn. The caller must run Serve to
// drive the read side.
func NewConnection(netConn net.Conn, id string, cfg transport.Config, log zerolog.Logger) *Connection {
	now := time.Now()

	c := &Connection{
		conn:     netConn,
		id:       id,
		log:      log.With().Str("component", "tcp-conn").Str("conn_id", id).Logger(),
		codec:    NewFrameCodec(cfg.MaxFrameSize),
		cfg:      cfg,
		outbound: make(chan outboundItem, cfg.OutboundQueue),
		done:     make(chan struct{}),
		reader:   bufio.NewReaderSize(netConn, 16384),
		writer:   bufio.NewWriterSize(netConn, 16384),
		info: transport.ConnectionInfo{
			ID:          id,
			RemoteAddr:  netConn.RemoteAddr().String(),
			ConnectedAt: now,
			LastSeen:    now,
		},
	}

	go c.writeLoop()
	return c
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Info returns connection metadata with live byte counters.
func (c *Connection) Info() transport.ConnectionInfo {
	c.mu.RLock()
	info := c.info
	c.mu.RUnlock()

	info.BytesRead = atomic.LoadUint64(&c.bytesRead)
	info.BytesWritten = atomic.LoadUint64(&c.bytesWritten)
	return info
}

// Attach binds the stream's transport-facing handler. Must be called before
// Serve.
func (c *Connection) Attach(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// WriteFrame queues one frame for transmission. Never blocks; a full queue is
// reported as ErrOutboundFull.
func (c *Connection) WriteFrame(frame transport.Frame) error {
	select {
	case <-c.done:
		return c.closeReason()
	default:
	}

	select {
	case c.outbound <- outboundItem{frame: frame}:
	default:
		return ErrOutboundFull
	}

	// High watermark: stop advertising capacity when the queue is 3/4 full.
	if len(c.outbound) >= cap(c.outbound)*3/4 {
		c.setWritable(false)
	}
	return nil
}

// Flush asks the writer goroutine to push buffered bytes to the socket.
// Best-effort and non-blocking: the writer flushes on queue drain anyway.
func (c *Connection) Flush() error {
	select {
	case <-c.done:
		return c.closeReason()
	case c.outbound <- outboundItem{flush: true}:
		return nil
	default:
		return nil
	}
}

// Serve reads frames and dispatches them to the attached handler until the
// connection fails or is closed. It runs on the caller's goroutine, which
// becomes the stream's I/O context.
func (c *Connection) Serve() error {
	for {
		if c.cfg.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				c.fail(err)
				return err
			}
		}

		frame, _, isControl, err := c.codec.ReadFrame(c.reader)
		if err != nil {
			c.fail(err)
			return c.closeReason()
		}

		c.touch()
		atomic.AddUint64(&c.bytesRead, uint64(len(frame.Payload)))

		if isControl {
			// Advertisements after the handshake carry no meaning here.
			c.log.Debug().Msg("Ignoring late control frame")
			continue
		}

		c.mu.RLock()
		handler := c.handler
		c.mu.RUnlock()
		if handler == nil {
			err := errors.New("tcp: frame received before stream attach")
			c.fail(err)
			return err
		}

		if err := handler.HandleFrame(frame); err != nil {
			c.fail(err)
			return err
		}
	}
}

// SendAdvertisement writes a control frame listing the encodings this side
// accepts. Part of the connection handshake; writes directly, bypassing the
// outbound queue.
func (c *Connection) SendAdvertisement(encodings []string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	if err := c.codec.WriteControl(c.writer, controlFrame{Encodings: encodings}); err != nil {
		return fmt.Errorf("send advertisement: %w", err)
	}
	return c.writer.Flush()
}

// ReadAdvertisement reads the peer's control frame. Part of the handshake.
func (c *Connection) ReadAdvertisement() ([]string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	_, ctrl, isControl, err := c.codec.ReadFrame(c.reader)
	if err != nil {
		return nil, fmt.Errorf("read advertisement: %w", err)
	}
	if !isControl {
		return nil, errors.New("tcp: expected control frame during handshake")
	}
	return ctrl.Encodings, nil
}

// Close tears the connection down. Idempotent.
func (c *Connection) Close() error {
	c.fail(nil)
	return nil
}

func (c *Connection) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()

		close(c.done)
		_ = c.conn.Close()

		if err != nil {
			c.log.Warn().Err(err).Msg("Connection failed")
		} else {
			c.log.Debug().Msg("Connection closed")
		}
	})
}

func (c *Connection) closeReason() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return net.ErrClosed
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case item := <-c.outbound:
			if item.flush {
				if err := c.writer.Flush(); err != nil {
					c.fail(err)
					return
				}
				continue
			}

			if c.cfg.WriteTimeout > 0 {
				if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
					c.fail(err)
					return
				}
			}

			if err := c.codec.WriteFrame(c.writer, item.frame); err != nil {
				c.fail(err)
				return
			}
			atomic.AddUint64(&c.bytesWritten, uint64(len(item.frame.Payload)))

			// Flush opportunistically once the queue drains.
			if len(c.outbound) == 0 {
				if err := c.writer.Flush(); err != nil {
					c.fail(err)
					return
				}
			}

			// Low watermark: readvertise capacity at 1/4 occupancy.
			if len(c.outbound) <= cap(c.outbound)/4 {
				c.setWritable(true)
			}
		}
	}
}

func (c *Connection) setWritable(writable bool) {
	c.mu.Lock()
	changed := c.unwritable == writable
	c.unwritable = !writable
	handler := c.handler
	c.mu.Unlock()

	if changed && handler != nil {
		handler.SetWritable(writable)
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.info.LastSeen = time.Now()
	c.mu.Unlock()
}
