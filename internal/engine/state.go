package engine

// State is the phase an iteration is in.
type State int

const (
	StateNotStarted State = iota
	StateBrowserStarting
	StateNavigating
	StateWaitingForPageComplete
	StateCollectingScripts
	StateCollectingMetrics
	StateBrowserStopping
	StateDone
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateBrowserStarting:
		return "browser_starting"
	case StateNavigating:
		return "navigating"
	case StateWaitingForPageComplete:
		return "waiting_for_page_complete"
	case StateCollectingScripts:
		return "collecting_scripts"
	case StateCollectingMetrics:
		return "collecting_metrics"
	case StateBrowserStopping:
		return "browser_stopping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the iteration has finished.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
