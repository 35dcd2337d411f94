package scheduler

import "slices"

// Source describes where a backend finds the thing to build for one
// item: either a build NVR to fetch from koji, or a local source tree
// that must be packaged into an SRPM first. Exactly one field is set.
type Source struct {
	NVR  string
	Path string
}

// ItemSnapshot is an immutable by-value copy of one item's state,
// pushed to the status sink on every change and returned to callers
// for final inspection.
type ItemSnapshot struct {
	Name   string
	State  State
	Status string
	// LogFiles are log artifacts discovered while building.
	LogFiles []string
	// Task and TaskChildren are remote-backend display lines for the
	// farm task and its children.
	Task         string
	TaskChildren []string
	// DebugMessages carry failure forensics, e.g. the chroot path and
	// the command to enter it.
	DebugMessages []string
}

// Equal reports whether two snapshots are identical by value.
func (s ItemSnapshot) Equal(other ItemSnapshot) bool {
	return s.Name == other.Name &&
		s.State == other.State &&
		s.Status == other.Status &&
		s.Task == other.Task &&
		slices.Equal(s.LogFiles, other.LogFiles) &&
		slices.Equal(s.TaskChildren, other.TaskChildren) &&
		slices.Equal(s.DebugMessages, other.DebugMessages)
}

// buildItem is the mutable per-item record. It is owned by the
// scheduler's event loop; backends never touch it directly.
type buildItem struct {
	name          string
	source        Source
	state         State
	status        string
	logFiles      []string
	task          string
	taskChildren  []string
	debugMessages []string
}

func (it *buildItem) snapshot() ItemSnapshot {
	return ItemSnapshot{
		Name:          it.name,
		State:         it.state,
		Status:        it.status,
		LogFiles:      slices.Clone(it.logFiles),
		Task:          it.task,
		TaskChildren:  slices.Clone(it.taskChildren),
		DebugMessages: slices.Clone(it.debugMessages),
	}
}
