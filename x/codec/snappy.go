package codec

import (
	"fmt"

	"github.com/golang/snappy"
)

const nameSnappy = "snappy"

// SnappyCompressor implements snappy block-format message compression.
type SnappyCompressor struct{}

// NewSnappyCompressor creates a snappy compressor.
func NewSnappyCompressor() *SnappyCompressor { return &SnappyCompressor{} }

func (*SnappyCompressor) Name() string { return nameSnappy }

func (*SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// SnappyDecompressor implements snappy block-format message decompression.
type SnappyDecompressor struct{}

// NewSnappyDecompressor creates a snappy decompressor.
func NewSnappyDecompressor() *SnappyDecompressor { return &SnappyDecompressor{} }

func (*SnappyDecompressor) Name() string { return nameSnappy }

func (*SnappyDecompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}
