package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompressor struct{ name string }

func (f *fakeCompressor) Name() string                    { return f.name }
func (f *fakeCompressor) Compress(d []byte) ([]byte, error) { return d, nil }

type fakeDecompressor struct{ name string }

func (f *fakeDecompressor) Name() string                      { return f.name }
func (f *fakeDecompressor) Decompress(d []byte) ([]byte, error) { return d, nil }

func TestCompressorRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewCompressorRegistry()
	r.Register(&fakeCompressor{name: "lz-test"})

	got, ok := r.Get("lz-test")
	require.True(t, ok)
	assert.Equal(t, "lz-test", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestCompressorRegistry_NamesPreserveOrder(t *testing.T) {
	t.Parallel()

	r := NewCompressorRegistry()
	r.Register(&fakeCompressor{name: "a"})
	r.Register(&fakeCompressor{name: "b"})
	r.Register(&fakeCompressor{name: "c"})

	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestCompressorRegistry_ReRegisterKeepsPosition(t *testing.T) {
	t.Parallel()

	r := NewCompressorRegistry()
	first := &fakeCompressor{name: "a"}
	r.Register(first)
	r.Register(&fakeCompressor{name: "b"})

	replacement := &fakeCompressor{name: "a"}
	r.Register(replacement)

	assert.Equal(t, []string{"a", "b"}, r.Names())
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestDefaultCompressorRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultCompressorRegistry()
	assert.Equal(t, []string{"gzip", "snappy", "zstd"}, r.Names())
}

func TestDecompressorRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewDecompressorRegistry()
	r.Register(&fakeDecompressor{name: "gzip"})

	got, ok := r.Get("gzip")
	require.True(t, ok)
	assert.Equal(t, "gzip", got.Name())

	_, ok = r.Get("zstd")
	assert.False(t, ok)
}

func TestDefaultDecompressorRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultDecompressorRegistry()
	names := r.Names()
	assert.ElementsMatch(t, []string{"gzip", "snappy", "zstd"}, names)
}
