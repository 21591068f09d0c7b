package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const nameZstd = "zstd"

// ZstdCompressor implements zstd message compression using a shared encoder in
// stateless EncodeAll mode.
type ZstdCompressor struct {
	encoder *zstd.Encoder
}

// NewZstdCompressor creates a zstd compressor at the default level.
func NewZstdCompressor() *ZstdCompressor {
	// zstd.NewWriter only fails on invalid options.
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	return &ZstdCompressor{encoder: enc}
}

func (c *ZstdCompressor) Name() string { return nameZstd }

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// ZstdDecompressor implements zstd message decompression using a shared decoder.
type ZstdDecompressor struct {
	decoder *zstd.Decoder
}

// NewZstdDecompressor creates a zstd decompressor.
func NewZstdDecompressor() *ZstdDecompressor {
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return &ZstdDecompressor{decoder: dec}
}

func (d *ZstdDecompressor) Name() string { return nameZstd }

func (d *ZstdDecompressor) Decompress(data []byte) ([]byte, error) {
	out, err := d.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
