// Package scheduler executes a batch of package builds in dependency
// order with bounded parallelism. Items move through a WAITING →
// READY → BUILDING → DONE/FAILED state machine driven by a single
// event-loop goroutine; execution backends report progress through
// per-item handles.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Backend executes one item's build. Implementations must drive the
// item to DONE or FAILED through the handle and return nil for every
// recoverable condition; a non-nil error is treated as an unexpected
// internal failure and aborts the whole run.
type Backend interface {
	Build(ctx context.Context, item Item, slot int) error

	// RetainFailedSlots reports whether a failed build's slot should
	// be permanently retired, keeping its sandbox inspectable at the
	// cost of growing the slot pool.
	RetainFailedSlots() bool
}

// Sink receives item-state snapshots for live display. UpdateItems is
// only called from the scheduler's event loop.
type Sink interface {
	UpdateItems(items []ItemSnapshot)
}

type nopSink struct{}

func (nopSink) UpdateItems([]ItemSnapshot) {}

// BuildAfter maps a package to the same-batch packages that must
// reach DONE before it may start building. Self-references are
// ignored.
type BuildAfter map[string][]string

// Scheduler owns all mutable scheduling state. Items are added before
// Build is called; the batch is fixed once scheduling starts.
type Scheduler struct {
	backend    Backend
	sink       Sink
	buildAfter BuildAfter
	parallel   int

	items   map[string]*buildItem
	order   []string
	slots   []bool
	running int
	started bool
	events  chan event
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithParallelJobs sets the global concurrency limit (default 3).
// Non-positive values are ignored.
func WithParallelJobs(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// WithSink sets the live status sink (default discards updates).
func WithSink(sink Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// New creates a Scheduler for the given backend and build-after
// graph.
func New(backend Backend, buildAfter BuildAfter, opts ...Option) *Scheduler {
	s := &Scheduler{
		backend:    backend,
		sink:       nopSink{},
		buildAfter: buildAfter,
		parallel:   3,
		items:      make(map[string]*buildItem),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots = make([]bool, s.parallel)
	return s
}

// AddItem adds one package to the batch. All items must be added
// before Build is called.
func (s *Scheduler) AddItem(name string, source Source) {
	if s.started {
		panic("scheduler: AddItem called after Build started")
	}
	s.items[name] = &buildItem{name: name, source: source}
	s.order = append(s.order, name)
}

// Items returns a snapshot of every item, in insertion order. Callers
// inspect the final states after Build returns to decide overall
// success.
func (s *Scheduler) Items() []ItemSnapshot {
	snaps := make([]ItemSnapshot, 0, len(s.items))
	for _, name := range s.order {
		snaps = append(snaps, s.items[name].snapshot())
	}
	return snaps
}

// Build runs the batch to completion. It returns nil when every item
// that could run has reached a terminal state; items blocked behind a
// failed dependency are left in WAITING. A non-nil error means the
// run was aborted by an unexpected backend failure or context
// cancellation.
func (s *Scheduler) Build(ctx context.Context) error {
	s.started = true
	s.events = make(chan event, 64)

	s.schedule(ctx)
	for s.running > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			switch ev := ev.(type) {
			case updateEvent:
				if err := s.applyUpdate(ctx, ev); err != nil {
					return err
				}
			case completionEvent:
				if err := s.complete(ctx, ev); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// schedule re-scans every item: WAITING items whose dependencies are
// all DONE are promoted to READY, and READY items are started while
// free slots remain. Runs on the event loop.
func (s *Scheduler) schedule(ctx context.Context) {
	for _, name := range s.order {
		item := s.items[name]
		if item.state != StateWaiting {
			continue
		}
		var notReady []string
		for _, dep := range sortedDeps(s.buildAfter[name]) {
			if dep == name {
				continue
			}
			if other, ok := s.items[dep]; ok && other.state != StateDone {
				notReady = append(notReady, dep)
			}
		}
		if len(notReady) > 0 {
			item.status = "Waiting for: " + strings.Join(notReady, " ")
		} else {
			item.state = StateReady
			item.status = "Ready"
		}
	}

	for _, name := range s.order {
		item := s.items[name]
		if item.state != StateReady {
			continue
		}
		slot, ok := s.allocateSlot()
		if !ok {
			break
		}
		item.state = StateBuilding
		s.running++

		h := &ItemHandle{name: item.name, source: item.source, ctx: ctx, events: s.events}
		go func(h *ItemHandle, slot int) {
			err := s.backend.Build(ctx, h, slot)
			select {
			case s.events <- completionEvent{name: h.name, slot: slot, err: err}:
			case <-ctx.Done():
			}
		}(h, slot)
	}

	s.sink.UpdateItems(s.Items())
}

// applyUpdate applies a backend progress event to its item. A
// transition into a terminal state triggers a full reschedule so
// dependents are promoted immediately.
func (s *Scheduler) applyUpdate(ctx context.Context, u updateEvent) error {
	item, ok := s.items[u.name]
	if !ok {
		return fmt.Errorf("scheduler: update for unknown item %q", u.name)
	}

	if u.state != nil && *u.state != item.state {
		if !item.state.canTransition(*u.state) {
			return fmt.Errorf("scheduler: invalid transition for %s: %s → %s",
				u.name, item.state, *u.state)
		}
		item.state = *u.state
	}
	if u.status != nil {
		item.status = *u.status
	}
	if u.logFiles != nil {
		item.logFiles = u.logFiles
	}
	if u.task != nil {
		item.task = *u.task
	}
	if u.taskChildren != nil {
		item.taskChildren = u.taskChildren
	}
	if u.debugMessages != nil {
		item.debugMessages = u.debugMessages
	}

	if u.state != nil && u.state.Terminal() {
		s.schedule(ctx)
	} else {
		s.sink.UpdateItems([]ItemSnapshot{item.snapshot()})
	}
	return nil
}

// complete handles a backend's Build call returning. A backend that
// returns with its item still BUILDING violated the scheduling
// contract; the item is failed rather than silently dropped.
func (s *Scheduler) complete(ctx context.Context, ev completionEvent) error {
	s.running--
	if ev.err != nil {
		return fmt.Errorf("building %s: %w", ev.name, ev.err)
	}

	item := s.items[ev.name]
	if item.state == StateBuilding {
		item.state = StateFailed
		item.status = "Build backend exited in BUILDING state"
	}

	if item.state == StateDone || !s.backend.RetainFailedSlots() {
		s.slots[ev.slot] = false
	} else {
		// The failed slot stays occupied so its sandbox can be
		// inspected; append a fresh slot to restore parallelism.
		s.slots = append(s.slots, false)
	}

	s.schedule(ctx)
	return nil
}

// allocateSlot claims the lowest free slot. A finished item's slot is
// released only once its backend's Build call returns, so a terminal
// update can briefly leave no slot free; ready items then wait for the
// completion event.
func (s *Scheduler) allocateSlot() (int, bool) {
	for i, occupied := range s.slots {
		if !occupied {
			s.slots[i] = true
			return i, true
		}
	}
	return 0, false
}

func sortedDeps(deps []string) []string {
	if len(deps) <= 1 {
		return deps
	}
	out := make([]string, len(deps))
	copy(out, deps)
	sort.Strings(out)
	return out
}
