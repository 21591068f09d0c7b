package stream

import "github.com/rs/zerolog"

// outboundHardFactor scales the readiness threshold into the hard cap at which
// a stream fails instead of buffering further.
const outboundHardFactor = 4

// Config defines runtime parameters for a single stream.
type Config struct {
	// MaxPendingMessages caps inbound messages held while no credit is
	// outstanding. Exceeding it fails the stream.
	MaxPendingMessages int

	// MaxOutboundBuffered is the outbound depth at which the stream reports
	// not-ready. The stream fails outright at outboundHardFactor times this.
	MaxOutboundBuffered int

	// Logger for stream lifecycle events. Defaults to a disabled logger.
	Logger zerolog.Logger

	// Stats receives measurements. Optional.
	Stats Stats
}

// DefaultConfig returns production-ready stream defaults.
func DefaultConfig() Config {
	return Config{
		MaxPendingMessages:  1024,
		MaxOutboundBuffered: 32,
		Logger:              zerolog.Nop(),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxPendingMessages <= 0 {
		c.MaxPendingMessages = 1024
	}
	if c.MaxOutboundBuffered <= 0 {
		c.MaxOutboundBuffered = 32
	}
	if c.Stats == nil {
		c.Stats = noopStats{}
	}
	return c
}
