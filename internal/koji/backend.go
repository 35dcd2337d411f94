package koji

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

// Backend builds items by submitting them to a Koji target and
// watching the resulting tasks.
type Backend struct {
	Session Session
	// Target is the Koji build target the builds are submitted to.
	Target string
	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration

	buildTag string
	waiter   *RepoWaiter
}

var _ scheduler.Backend = (*Backend)(nil)

// NewBackend returns a backend submitting to target.
func NewBackend(session Session, target string) *Backend {
	return &Backend{Session: session, Target: target}
}

// RetainFailedSlots implements scheduler.Backend. A failed Koji task
// leaves nothing on this host worth keeping a slot for.
func (b *Backend) RetainFailedSlots() bool {
	return false
}

func (b *Backend) interval() time.Duration {
	if b.PollInterval > 0 {
		return b.PollInterval
	}
	return DefaultPollInterval
}

// Prepare resolves the target's build tag and sets up the shared
// repository waiter. Must be called before Build.
func (b *Backend) Prepare(ctx context.Context) error {
	target, err := b.Session.BuildTarget(ctx, b.Target)
	if err != nil {
		return fmt.Errorf("resolving build target %s: %w", b.Target, err)
	}
	b.buildTag = target.BuildTag
	b.waiter = NewRepoWaiter(b.Session, b.buildTag, b.interval())
	return nil
}

// BuildTag returns the build tag resolved by Prepare.
func (b *Backend) BuildTag() string {
	return b.buildTag
}

// Build implements scheduler.Backend.
func (b *Backend) Build(ctx context.Context, item scheduler.Item, slot int) error {
	src := item.Source()

	// Items carrying a local path were cloned from dist-git; their
	// path is already the SCM URL to submit. NVR items are rebuilt
	// from the source URL of the existing build.
	sourceURL := src.Path
	if sourceURL == "" {
		item.SetStatus("Getting source URL")
		var err error
		sourceURL, err = b.Session.BuildSource(ctx, src.NVR)
		if err != nil {
			return fmt.Errorf("getting source of %s: %w", src.NVR, err)
		}
	}

	item.SetStatus("Starting build")
	taskID, err := b.Session.Build(ctx, sourceURL, b.Target)
	if err != nil {
		return fmt.Errorf("submitting build of %s: %w", item.Name(), err)
	}
	taskLink := FormatLink(TaskURL(b.Session.WebURL(), taskID), strconv.Itoa(taskID))

	if done, err := b.watchTask(ctx, item, taskID, taskLink); err != nil || !done {
		return err
	}

	listings, err := b.Session.ListTagged(ctx, b.buildTag, item.Name())
	if err != nil {
		return fmt.Errorf("listing %s in %s: %w", item.Name(), b.buildTag, err)
	}
	if len(listings) == 0 {
		return fmt.Errorf("task %d closed but %s has no build in %s", taskID, item.Name(), b.buildTag)
	}
	tagged := listings[0]

	item.SetStatus(fmt.Sprintf("Waiting for %s to appear in %s", tagged.NVR, b.buildTag))
	if err := b.waiter.WaitForEvent(ctx, tagged.CreateEvent); err != nil {
		return err
	}

	item.Done(fmt.Sprintf("%s built successfully", tagged.NVR))
	return nil
}

// watchTask polls the task until it reaches a terminal state. It
// returns (true, nil) when the task closed successfully and
// (false, nil) when it failed or was canceled and the item has been
// marked FAILED.
func (b *Backend) watchTask(ctx context.Context, item scheduler.Item, taskID int, taskLink string) (bool, error) {
	for {
		info, err := b.Session.TaskInfo(ctx, taskID)
		if err != nil {
			return false, fmt.Errorf("querying task %d: %w", taskID, err)
		}

		switch info.State {
		case TaskFailed:
			item.Fail(fmt.Sprintf("task %s failed", taskLink))
			return false, nil
		case TaskCanceled:
			item.Fail(fmt.Sprintf("task %s was canceled", taskLink))
			return false, nil
		case TaskClosed:
			return true, nil
		}

		children, err := b.Session.TaskChildren(ctx, taskID)
		if err != nil {
			return false, fmt.Errorf("querying task %d: %w", taskID, err)
		}
		formatted := make([]string, len(children))
		for i, child := range children {
			formatted[i] = FormatTask(b.Session.WebURL(), child)
		}
		item.SetTask(FormatTask(b.Session.WebURL(), info), formatted)

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(b.interval()):
		}
	}
}
