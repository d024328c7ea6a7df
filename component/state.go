package component

// State represents the lifecycle state of a component.
type State int

const (
	StateRegistered  State = iota // Registered, not yet initialized
	StateInitialized              // Init() succeeded
	StateStarted                  // Start() succeeded, running
	StateStopped                  // Stop() called
	StateFailed                   // Init() or Start() failed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsRunnable returns true if the component may be started from this state.
// A stopped component can be started again.
func (s State) IsRunnable() bool {
	return s == StateInitialized || s == StateStarted || s == StateStopped
}
