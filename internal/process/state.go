package process

// State represents the lifecycle of a helper process.
type State int

const (
	// StateCreated is the initial state before the process has started.
	StateCreated State = iota

	// StateStarting indicates the process is spawned but not yet ready.
	StateStarting

	// StateRunning indicates the process is ready.
	StateRunning

	// StateStopping indicates a stop was requested.
	StateStopping

	// StateStopped indicates the process has exited.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true while the process may still be running.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// IsTerminal returns true once the process has exited.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
