// Package supervisor keeps one Icecast stream connected and fed through the
// audio analysis decoder, reconnecting forever on failure.
package supervisor

// State represents the current state of the connection supervisor.
type State int

const (
	// StateIdle is the initial state before Run is called.
	StateIdle State = iota

	// StateConnecting indicates the HTTP request is in flight.
	StateConnecting

	// StateStreaming indicates bytes are flowing into the decoder.
	StateStreaming

	// StateBackoff indicates the supervisor is waiting before reconnecting.
	StateBackoff

	// StateStopped indicates Run has returned.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true while the supervisor loop is running.
func (s State) IsActive() bool {
	return s == StateConnecting || s == StateStreaming || s == StateBackoff
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
