package scheduler

// State is the lifecycle state of a BuildItem. States only move
// forward; DONE and FAILED are terminal.
type State int

const (
	// StateWaiting means one or more build-after dependencies have
	// not finished.
	StateWaiting State = iota
	// StateReady means all dependencies are done and the item is
	// waiting for a free slot.
	StateReady
	// StateBuilding means the item occupies a slot and its backend
	// task is running.
	StateBuilding
	// StateDone means the backend reported success.
	StateDone
	// StateFailed means the backend reported failure. Failed items
	// are never retried within a run.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateReady:
		return "READY"
	case StateBuilding:
		return "BUILDING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state is final for an item.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// canTransition reports whether moving from s to next is a legal
// state-machine step.
func (s State) canTransition(next State) bool {
	switch s {
	case StateWaiting:
		return next == StateReady
	case StateReady:
		return next == StateBuilding
	case StateBuilding:
		return next == StateDone || next == StateFailed
	default:
		return false
	}
}
