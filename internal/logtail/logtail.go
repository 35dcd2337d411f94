// Package logtail follows the log directory of an in-progress mock
// build, deriving a human-readable build stage from mock's state.log
// and keeping the list of discovered log files current.
package logtail

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// stageLine matches mock state.log entries like
// "... Start: build setup for foo.spec" and the matching Finish line.
var stageLine = regexp.MustCompile(`^.*?(Start|Finish):\s*(.*?)\s*$`)

// DefaultInterval is how often the tailer rescans when no filesystem
// event arrives.
const DefaultInterval = 100 * time.Millisecond

// Tailer periodically rescans a build workdir, reporting the current
// build stage and the sorted list of *.log files through OnUpdate.
// Rescans are driven by an fsnotify watch on the directory with a
// ticker fallback, so progress is reported even on filesystems where
// change notification is unreliable.
type Tailer struct {
	// Dir is the build workdir containing state.log and other logs.
	Dir string
	// Interval overrides DefaultInterval when positive.
	Interval time.Duration
	// OnUpdate receives the derived stage and log file list after
	// every rescan. Called from the tailer's goroutine.
	OnUpdate func(status string, logFiles []string)
}

// Run rescans until ctx is cancelled, then performs one final rescan
// so the last log update is never lost. It always returns nil after
// the final rescan; a missing or unwatchable directory only disables
// the event-driven path.
func (t *Tailer) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if watcher.Add(t.Dir) == nil {
			events = make(chan fsnotify.Event, 16)
			go func() {
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						select {
						case events <- ev:
						default: // coalesce bursts
						}
					case <-watcher.Errors:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.rescan()
		select {
		case <-ctx.Done():
			// Final flush: catch anything written between the last
			// rescan and process exit.
			t.rescan()
			return nil
		case <-ticker.C:
		case <-events:
		}
	}
}

func (t *Tailer) rescan() {
	if t.OnUpdate == nil {
		return
	}
	t.OnUpdate(t.Status(), t.LogFiles())
}

// LogFiles returns the *.log files in the workdir, sorted by name.
func (t *Tailer) LogFiles() []string {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return nil
	}
	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			logs = append(logs, filepath.Join(t.Dir, e.Name()))
		}
	}
	sort.Strings(logs)
	return logs
}

// Status derives the current build stage from state.log: the top of
// the stack of started-but-unfinished stages, or "Building" when no
// stage is open or the log does not exist yet.
func (t *Tailer) Status() string {
	f, err := os.Open(filepath.Join(t.Dir, "state.log"))
	if err != nil {
		return "Building"
	}
	defer f.Close()
	return parseStageStack(f)
}

func parseStageStack(r io.Reader) string {
	var stack []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := stageLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		switch m[1] {
		case "Start":
			stack = append(stack, m[2])
		case "Finish":
			if len(stack) > 0 && m[2] == stack[len(stack)-1] {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return "Building"
	}
	return stack[len(stack)-1]
}
