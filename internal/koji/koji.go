// Package koji talks to a Koji build farm: submitting builds,
// watching their task trees, and waiting for build-tag repository
// regeneration so freshly built packages are visible to later builds.
package koji

import "context"

// TaskState is a Koji task lifecycle state, numbered as Koji numbers
// them.
type TaskState int

const (
	TaskFree     TaskState = 0
	TaskOpen     TaskState = 1
	TaskClosed   TaskState = 2
	TaskCanceled TaskState = 3
	TaskAssigned TaskState = 4
	TaskFailed   TaskState = 5
)

func (s TaskState) String() string {
	switch s {
	case TaskFree:
		return "free"
	case TaskOpen:
		return "open"
	case TaskClosed:
		return "closed"
	case TaskCanceled:
		return "canceled"
	case TaskAssigned:
		return "assigned"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskInfo is the subset of Koji task metadata the watcher displays.
type TaskInfo struct {
	ID    int
	State TaskState
	// Label is a short human description, e.g. "buildArch (x86_64)".
	Label string
}

// TagListing is one tagged build in a tag, with the event that tagged
// it.
type TagListing struct {
	NVR         string
	CreateEvent int64
}

// BuildInfo identifies one build of a package.
type BuildInfo struct {
	PackageName string
	NVR         string
}

// Target resolves a build target name to its tags.
type Target struct {
	BuildTag string
	DestTag  string
}

// Session is the Koji hub surface the builder consumes. CLISession
// implements it by shelling out to the koji command; tests substitute
// an in-memory fake.
type Session interface {
	// Build submits source to the target and returns the task id.
	Build(ctx context.Context, sourceURL, target string) (int, error)
	TaskInfo(ctx context.Context, taskID int) (TaskInfo, error)
	TaskChildren(ctx context.Context, taskID int) ([]TaskInfo, error)
	// ListTagged returns the latest tagged build of pkg in tag,
	// following tag inheritance.
	ListTagged(ctx context.Context, tag, pkg string) ([]TagListing, error)
	// RepoCreateEvent returns the event id of the tag's current
	// repository.
	RepoCreateEvent(ctx context.Context, tag string) (int64, error)
	// BuildSource returns the SCM URL the given build was built from.
	BuildSource(ctx context.Context, nvr string) (string, error)
	BuildTarget(ctx context.Context, target string) (Target, error)
	// LatestBuilds returns the latest build of every package in tag,
	// following tag inheritance.
	LatestBuilds(ctx context.Context, tag string) ([]BuildInfo, error)
	// BuildRequires returns the build's source RPM requirements as
	// requirement expressions like "gtk3-devel >= 3.24".
	BuildRequires(ctx context.Context, nvr string) ([]string, error)
	// WebURL is the base URL of the Koji web interface.
	WebURL() string
}
