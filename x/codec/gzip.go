package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

const nameGzip = "gzip"

// GzipCompressor implements gzip message compression with pooled writers.
type GzipCompressor struct {
	writers sync.Pool
}

// NewGzipCompressor creates a gzip compressor at the default compression level.
func NewGzipCompressor() *GzipCompressor {
	return &GzipCompressor{
		writers: sync.Pool{
			New: func() any {
				return gzip.NewWriter(io.Discard)
			},
		},
	}
}

func (c *GzipCompressor) Name() string { return nameGzip }

func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) / 2)

	w := c.writers.Get().(*gzip.Writer)
	defer c.writers.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}

	return buf.Bytes(), nil
}

// GzipDecompressor implements gzip message decompression with pooled readers.
type GzipDecompressor struct {
	readers sync.Pool
}

// NewGzipDecompressor creates a gzip decompressor.
func NewGzipDecompressor() *GzipDecompressor {
	return &GzipDecompressor{}
}

func (d *GzipDecompressor) Name() string { return nameGzip }

func (d *GzipDecompressor) Decompress(data []byte) ([]byte, error) {
	src := bytes.NewReader(data)

	var r *gzip.Reader
	if pooled, ok := d.readers.Get().(*gzip.Reader); ok {
		if err := pooled.Reset(src); err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		r = pooled
	} else {
		fresh, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		r = fresh
	}
	defer d.readers.Put(r)

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}

	return out, nil
}
