// Package transport defines the contract between a message stream and the
// carrier that moves its frames. Concrete bindings live in subpackages.
package transport

import "time"

// Frame is the unit of exchange between a stream and its carrier: one message
// payload plus the encoding it was compressed with.
type Frame struct {
	// Encoding is the encoding name the payload was compressed with. Ignored
	// when Compressed is false.
	Encoding string
	// Compressed reports whether Payload must be run through a decompressor.
	Compressed bool
	// Payload is the (possibly compressed) message bytes.
	Payload []byte
}

// Sink accepts framed outbound messages from a stream.
//
// WriteFrame and Flush must not block on network I/O; implementations buffer
// internally and report capacity through the stream's SetWritable. WriteFrame
// returns an error only when the carrier cannot accept the frame at all, e.g.
// its outbound buffer is exhausted or the connection is gone.
type Sink interface {
	WriteFrame(Frame) error
	Flush() error
}

// Handler is the transport-facing side of a stream. The carrier's read
// goroutine feeds inbound frames and readiness transitions through it; these
// calls run concurrently with the application's use of the stream.
type Handler interface {
	// HandleFrame delivers one inbound frame. A returned error means the
	// stream has failed and the carrier should tear the channel down.
	HandleFrame(Frame) error
	// SetWritable reports transitions of the carrier's write capacity.
	SetWritable(writable bool)
}

// ConnectionInfo captures metadata about one carrier connection.
type ConnectionInfo struct {
	ID           string
	RemoteAddr   string
	ConnectedAt  time.Time
	LastSeen     time.Time
	BytesRead    uint64
	BytesWritten uint64
}

// Config defines runtime parameters shared by carrier bindings.
type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr"      yaml:"listen_addr"`
	MaxFrameSize   int           `mapstructure:"max_frame_size"   yaml:"max_frame_size"`
	MaxConnections int           `mapstructure:"max_connections"  yaml:"max_connections"`
	OutboundQueue  int           `mapstructure:"outbound_queue"   yaml:"outbound_queue"`
	InitialCredit  int           `mapstructure:"initial_credit"   yaml:"initial_credit"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
}

// DefaultConfig returns production-ready carrier defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":9000",
		MaxFrameSize:   4 * 1024 * 1024,
		MaxConnections: 256,
		OutboundQueue:  64,
		InitialCredit:  32,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   20 * time.Second,
	}
}
