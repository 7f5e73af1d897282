package bundle

// State is the lifecycle state of a bundle.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed // Start failed after the watchdog was bound
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "Unconfigured"
	case StateConfigured:
		return "Configured"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}
