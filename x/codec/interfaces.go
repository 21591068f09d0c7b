// Package codec provides message compression codecs and the registries used to
// resolve them by encoding name at negotiation time and per received message.
package codec

// NameIdentity is the reserved encoding name for uncompressed payloads.
const NameIdentity = "identity"

// Compressor compresses outbound message payloads for a single encoding.
//
// Implementations must be safe for concurrent use; a single instance is shared
// by every stream that negotiates its encoding.
type Compressor interface {
	// Name returns the encoding name announced to the remote endpoint.
	Name() string
	// Compress returns the compressed form of data.
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses inbound message payloads for a single encoding.
type Decompressor interface {
	// Name returns the encoding name this decompressor handles.
	Name() string
	// Decompress returns the original form of compressed data.
	Decompress(data []byte) ([]byte, error)
}
