package scheduler

import "context"

// event is a message from a backend goroutine to the scheduler's
// event loop. All item mutation happens on the loop; backends only
// send events.
type event interface{ eventName() string }

// updateEvent carries field changes for one item. Nil pointer/slice
// fields are left unchanged.
type updateEvent struct {
	name          string
	state         *State
	status        *string
	logFiles      []string
	task          *string
	taskChildren  []string
	debugMessages []string
}

func (e updateEvent) eventName() string { return e.name }

// completionEvent signals that a backend's Build call returned. A
// non-nil err is an unexpected internal failure and aborts the run.
type completionEvent struct {
	name string
	slot int
	err  error
}

func (e completionEvent) eventName() string { return e.name }

// Item is a backend's window onto one building item. Progress updates
// flow through its methods to the scheduler loop; backends never see
// the item record itself.
type Item interface {
	Name() string
	Source() Source
	SetStatus(status string)
	SetProgress(status string, logFiles []string)
	SetTask(task string, children []string)
	Done(status string)
	Fail(status string, debug ...string)
}

// ItemHandle is the scheduler's Item implementation. Its methods
// forward typed updates to the event loop; they never block longer
// than the run itself.
type ItemHandle struct {
	name   string
	source Source
	ctx    context.Context
	events chan<- event
}

// Name returns the item's package name.
func (h *ItemHandle) Name() string { return h.name }

// Source returns the item's build source.
func (h *ItemHandle) Source() Source { return h.source }

// SetStatus replaces the item's human-readable status text.
func (h *ItemHandle) SetStatus(status string) {
	h.send(updateEvent{name: h.name, status: &status})
}

// SetProgress replaces the status text and the discovered log files
// in one update.
func (h *ItemHandle) SetProgress(status string, logFiles []string) {
	h.send(updateEvent{name: h.name, status: &status, logFiles: logFiles})
}

// SetTask replaces the remote task display lines and clears the
// status text, which is redundant while the task lines are shown.
func (h *ItemHandle) SetTask(task string, children []string) {
	empty := ""
	if children == nil {
		children = []string{}
	}
	h.send(updateEvent{name: h.name, status: &empty, task: &task, taskChildren: children})
}

// Done transitions the item to DONE with a final status.
func (h *ItemHandle) Done(status string) {
	state := StateDone
	h.send(updateEvent{name: h.name, state: &state, status: &status})
}

// Fail transitions the item to FAILED with a final status and
// optional debug messages for human diagnosis.
func (h *ItemHandle) Fail(status string, debug ...string) {
	state := StateFailed
	u := updateEvent{name: h.name, state: &state, status: &status}
	if len(debug) > 0 {
		u.debugMessages = debug
	}
	h.send(u)
}

func (h *ItemHandle) send(e event) {
	select {
	case h.events <- e:
	case <-h.ctx.Done():
	}
}
