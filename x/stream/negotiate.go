package stream

import "github.com/compose-network/msgstream/x/codec"

// selectCompressor picks the first compressor, in registry preference order,
// whose encoding name the remote endpoint accepts. Returns nil when the
// accepted set is empty or no registered encoding matches.
func selectCompressor(reg *codec.CompressorRegistry, encodings []string) codec.Compressor {
	if reg == nil || len(encodings) == 0 {
		return nil
	}

	accepted := make(map[string]struct{}, len(encodings))
	for _, enc := range encodings {
		accepted[enc] = struct{}{}
	}

	for _, name := range reg.Names() {
		if _, ok := accepted[name]; ok {
			c, _ := reg.Get(name)
			return c
		}
	}
	return nil
}
