// Package relay maintains the connection to the relay service: creating
// sync sessions over HTTPS, holding the persistent WebSocket open, and
// reconnecting with backoff until explicitly stopped.
package relay

// Phase is the position in the connection lifecycle.
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the observable connection state. Exactly one value is active
// at a time; every transition reaches the OnState callback and the
// runtime state file. Token is set while connected, Reason while failed.
type State struct {
	Phase  Phase
	Token  string
	Reason string
}

// Stopped is the state before Start and after Stop.
func Stopped() State { return State{Phase: PhaseStopped} }

// Connecting covers both session creation and the WebSocket dial.
func Connecting() State { return State{Phase: PhaseConnecting} }

// Connected carries the active session token, which doubles as the
// pairing code payload.
func Connected(token string) State { return State{Phase: PhaseConnected, Token: token} }

// Failed carries a human-readable reason; the client re-enters
// connecting after the backoff delay.
func Failed(reason string) State { return State{Phase: PhaseFailed, Reason: reason} }
