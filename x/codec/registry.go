package codec

import "sync"

// CompressorRegistry maps encoding names to compressors. Registration order is
// preserved and doubles as the local preference order during negotiation.
type CompressorRegistry struct {
	mu          sync.RWMutex
	order       []string
	compressors map[string]Compressor
}

// NewCompressorRegistry creates an empty compressor registry.
func NewCompressorRegistry() *CompressorRegistry {
	return &CompressorRegistry{
		compressors: make(map[string]Compressor),
	}
}

// DefaultCompressorRegistry returns a registry with the built-in codecs
// registered in preference order: gzip, snappy, zstd.
func DefaultCompressorRegistry() *CompressorRegistry {
	r := NewCompressorRegistry()
	r.Register(NewGzipCompressor())
	r.Register(NewSnappyCompressor())
	r.Register(NewZstdCompressor())
	return r
}

// Register adds a compressor under its encoding name. Re-registering a name
// replaces the codec but keeps its original preference position.
func (r *CompressorRegistry) Register(c Compressor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.compressors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.compressors[name] = c
}

// Get retrieves a compressor by encoding name.
func (r *CompressorRegistry) Get(name string) (Compressor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.compressors[name]
	return c, ok
}

// Names returns the registered encoding names in preference order.
func (r *CompressorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// DecompressorRegistry maps encoding names to decompressors. Streams resolve a
// decompressor per received message from the encoding tag the sender framed it
// with.
type DecompressorRegistry struct {
	mu            sync.RWMutex
	decompressors map[string]Decompressor
}

// NewDecompressorRegistry creates an empty decompressor registry.
func NewDecompressorRegistry() *DecompressorRegistry {
	return &DecompressorRegistry{
		decompressors: make(map[string]Decompressor),
	}
}

// DefaultDecompressorRegistry returns a registry accepting all built-in codecs.
func DefaultDecompressorRegistry() *DecompressorRegistry {
	r := NewDecompressorRegistry()
	r.Register(NewGzipDecompressor())
	r.Register(NewSnappyDecompressor())
	r.Register(NewZstdDecompressor())
	return r
}

// Register adds a decompressor under its encoding name.
func (r *DecompressorRegistry) Register(d Decompressor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decompressors[d.Name()] = d
}

// Get retrieves a decompressor by encoding name.
func (r *DecompressorRegistry) Get(name string) (Decompressor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decompressors[name]
	return d, ok
}

// Names returns the accepted encoding names. Order is unspecified.
func (r *DecompressorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decompressors))
	for name := range r.decompressors {
		names = append(names, name)
	}
	return names
}
