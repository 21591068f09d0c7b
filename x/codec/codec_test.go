package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, c Compressor, d Decompressor, payload []byte) {
	t.Helper()

	compressed, err := c.Compress(payload)
	require.NoError(t, err)

	out, err := d.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestGzipRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewGzipCompressor()
	d := NewGzipDecompressor()

	roundTrip(t, c, d, []byte("hello, stream"))
	roundTrip(t, c, d, bytes.Repeat([]byte("abcdefgh"), 4096))
	roundTrip(t, c, d, []byte{})
}

func TestSnappyRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewSnappyCompressor()
	d := NewSnappyDecompressor()

	roundTrip(t, c, d, []byte("hello, stream"))
	roundTrip(t, c, d, bytes.Repeat([]byte{0xde, 0xad}, 1<<16))
}

func TestZstdRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewZstdCompressor()
	d := NewZstdDecompressor()

	roundTrip(t, c, d, []byte("hello, stream"))
	roundTrip(t, c, d, bytes.Repeat([]byte("0123456789"), 10000))
}

func TestGzipCompressesRepetitiveData(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("aaaaaaaaaaaaaaaa"), 1024)
	compressed, err := NewGzipCompressor().Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))
}

func TestDecompressRejectsGarbage(t *testing.T) {
	t.Parallel()

	garbage := []byte{0x00, 0x01, 0x02, 0x03}

	_, err := NewGzipDecompressor().Decompress(garbage)
	assert.Error(t, err)

	_, err = NewSnappyDecompressor().Decompress(garbage)
	assert.Error(t, err)

	_, err = NewZstdDecompressor().Decompress(garbage)
	assert.Error(t, err)
}

func TestGzipCompressorConcurrent(t *testing.T) {
	t.Parallel()

	c := NewGzipCompressor()
	d := NewGzipDecompressor()
	payload := bytes.Repeat([]byte("concurrent"), 512)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				compressed, err := c.Compress(payload)
				if err != nil {
					done <- err
					return
				}
				out, err := d.Decompress(compressed)
				if err != nil {
					done <- err
					return
				}
				if !bytes.Equal(out, payload) {
					done <- assert.AnError
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
}
