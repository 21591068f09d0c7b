package stream

import "sync"

// demandTracker accounts consumer-granted delivery credit and holds messages
// that arrive while no credit is outstanding. It is the only inbound state
// shared between the application and transport goroutines.
type demandTracker struct {
	mu         sync.Mutex
	credit     int64
	pending    [][]byte
	maxPending int
}

func newDemandTracker(maxPending int) *demandTracker {
	return &demandTracker{maxPending: maxPending}
}

// grant adds n credits. Credit is additive and never replaced.
func (d *demandTracker) grant(n int) {
	d.mu.Lock()
	d.credit += int64(n)
	d.mu.Unlock()
}

// enqueue appends an inbound message to the pending queue. It returns
// ErrPendingOverflow when the queue is at capacity.
func (d *demandTracker) enqueue(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) >= d.maxPending {
		return ErrPendingOverflow
	}
	d.pending = append(d.pending, payload)
	return nil
}

// next pops the oldest pending message if a credit is outstanding, consuming
// exactly one credit. It returns false when there is nothing deliverable.
func (d *demandTracker) next() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.credit <= 0 || len(d.pending) == 0 {
		return nil, false
	}
	d.credit--
	msg := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return msg, true
}

// deliverable reports whether next would succeed.
func (d *demandTracker) deliverable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.credit > 0 && len(d.pending) > 0
}

// outstanding returns the current credit balance.
func (d *demandTracker) outstanding() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.credit
}

// depth returns the number of messages held pending credit.
func (d *demandTracker) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// reset drops all pending messages. Called when the stream closes.
func (d *demandTracker) reset() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}
