package supervisor

// Phase is the lifecycle position of a supervised stream.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of a supervised stream.
//
// Connected and Reconnecting are never both true. RetryCount and
// ElapsedSeconds are zero in every snapshot published on entering
// PhaseConnected.
type State struct {
	Phase          Phase
	Connected      bool
	Reconnecting   bool
	RetryCount     int
	ElapsedSeconds int

	// LastError is the failure that caused the most recent reconnect.
	LastError error
}

// Label is a short human-readable description of the state.
func (s State) Label() string {
	switch s.Phase {
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseConnecting:
		if s.RetryCount > 0 {
			return "reconnecting"
		}
		return "connecting"
	default:
		return s.Phase.String()
	}
}

// SlowHint returns escalating hint text for a connection that has been
// pending for elapsed seconds, or "" while it is not yet considered slow.
func SlowHint(elapsed int) string {
	switch {
	case elapsed >= 15:
		return "Server may be unavailable. Still retrying..."
	case elapsed >= 10:
		return "This is taking longer than usual..."
	case elapsed >= 5:
		return "Still connecting..."
	default:
		return ""
	}
}
