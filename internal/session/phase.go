package session

// Phase identifies where a session is in its lifecycle.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseProbing
	PhasePlanning
	PhaseEncoding
	PhaseVerifying
	PhaseCompleted
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseProbing:
		return "probing"
	case PhasePlanning:
		return "planning"
	case PhaseEncoding:
		return "encoding"
	case PhaseVerifying:
		return "verifying"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends the session. A session in a
// terminal phase never transitions again.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}
