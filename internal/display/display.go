// Package display renders the live build status: one line per item,
// color-coded by state, with log files, farm tasks, and debug detail
// indented underneath. On a terminal it repaints in place through
// bubbletea; elsewhere it degrades to plain progress lines.
package display

import (
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

// RenderWhen selects the visual treatment of the final render.
type RenderWhen int

const (
	// RenderRunning is the normal in-progress rendering.
	RenderRunning RenderWhen = iota
	// RenderDone is the final render of a completed run.
	RenderDone
	// RenderInterrupted marks still-building items as interrupted
	// instead of showing their stale status.
	RenderInterrupted
	// RenderException is used when the run aborted on an internal
	// error.
	RenderException
)

// Display is the scheduler's status sink. Item snapshots arrive
// through UpdateItems; identical snapshots are discarded so a
// repaint only happens when something visible changed. The snapshot
// store is mutex-guarded because the final render may run from a
// different goroutine than the scheduler's updates.
type Display struct {
	mu      sync.Mutex
	items   []scheduler.ItemSnapshot
	stopped bool

	out     io.Writer
	program *tea.Program
	runDone chan struct{}
}

var _ scheduler.Sink = (*Display)(nil)

// New returns a display writing to out. The in-place terminal UI is
// only used when out is a terminal.
func New(out io.Writer) *Display {
	d := &Display{out: out}
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		d.program = tea.NewProgram(
			model{},
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		)
	}
	return d
}

// Start begins rendering. Callers must pair it with Stop.
func (d *Display) Start() {
	if d.program == nil {
		return
	}
	d.runDone = make(chan struct{})
	go func() {
		defer close(d.runDone)
		// Run errors leave us with plain output, nothing more.
		_, _ = d.program.Run()
	}()
}

// Stop performs the final render and tears the terminal UI down. It
// is safe to call after an interrupt or a scheduler abort; when
// selects how in-flight items are shown.
func (d *Display) Stop(when RenderWhen) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	items := d.items
	d.mu.Unlock()

	if d.program != nil && d.runDone != nil {
		d.program.Send(itemsMsg(items))
		d.program.Send(finishMsg(when))
		<-d.runDone
		return
	}
	Render(d.out, items, when)
}

// UpdateItems implements scheduler.Sink. The scheduler sends a
// single-item list for progress updates and the full list on
// scheduling changes; either way the update is merged per item into
// the stored snapshot, so no item ever drops out of the picture.
func (d *Display) UpdateItems(items []scheduler.ItemSnapshot) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	prev := d.items
	merged, changed := mergeSnapshots(prev, items)
	if !changed {
		d.mu.Unlock()
		return
	}
	d.items = merged
	d.mu.Unlock()

	if d.program != nil {
		d.program.Send(itemsMsg(merged))
		return
	}
	d.printTransitions(prev, merged)
}

// printTransitions emits one plain line per item that reached a
// terminal state, so non-terminal output stays readable in CI logs.
func (d *Display) printTransitions(prev, items []scheduler.ItemSnapshot) {
	prevStates := make(map[string]scheduler.State, len(prev))
	for _, item := range prev {
		prevStates[item.Name] = item.State
	}
	for _, item := range items {
		if item.State.Terminal() && prevStates[item.Name] != item.State {
			fmt.Fprintf(d.out, "%s: %s\n", item.Name, item.Status)
		}
	}
}

// mergeSnapshots folds an update into the stored list, keyed by item
// name. Items keep their first-seen order; unchanged updates report
// changed=false so no repaint happens.
func mergeSnapshots(prev, update []scheduler.ItemSnapshot) (merged []scheduler.ItemSnapshot, changed bool) {
	index := make(map[string]int, len(prev))
	for i, item := range prev {
		index[item.Name] = i
	}
	merged = prev
	for _, item := range update {
		i, known := index[item.Name]
		if known && merged[i].Equal(item) {
			continue
		}
		if !changed {
			merged = make([]scheduler.ItemSnapshot, len(prev), len(prev)+len(update))
			copy(merged, prev)
			changed = true
		}
		if known {
			merged[i] = item
		} else {
			index[item.Name] = len(merged)
			merged = append(merged, item)
		}
	}
	return merged, changed
}
