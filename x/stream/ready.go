package stream

import "sync"

// readySignal folds carrier write capacity and local outbound depth into a
// single boolean, detecting false-to-true edges so the listener is notified
// exactly once per transition. Touched from both goroutines.
type readySignal struct {
	mu        sync.Mutex
	writable  bool
	buffered  int
	threshold int
}

func newReadySignal(threshold int) *readySignal {
	// A stream starts writable until the carrier says otherwise.
	return &readySignal{writable: true, threshold: threshold}
}

func (r *readySignal) ready() bool {
	return r.writable && r.buffered < r.threshold
}

// isReady reports current readiness.
func (r *readySignal) isReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready()
}

// setWritable records carrier capacity and reports whether readiness
// transitioned from false to true.
func (r *readySignal) setWritable(writable bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.ready()
	r.writable = writable
	return !before && r.ready()
}

// setBuffered records the local outbound depth and reports whether readiness
// transitioned from false to true.
func (r *readySignal) setBuffered(n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.ready()
	r.buffered = n
	return !before && r.ready()
}
