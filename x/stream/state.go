package stream

// State is the lifecycle phase of a stream. Configuration operations are only
// valid before activation; data-path operations only after.
type State int32

const (
	// StateCreated is the initial phase; nothing has been configured yet.
	StateCreated State = iota
	// StateConfigured means at least one configuration call has been made.
	StateConfigured
	// StateActive means Start has been called and messages may flow.
	StateActive
	// StateHalfClosed means the local write direction is done; inbound
	// delivery continues.
	StateHalfClosed
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateActive:
		return "active"
	case StateHalfClosed:
		return "half_closed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
