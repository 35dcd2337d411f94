package koji

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

// fakeSession scripts a task's state progression per poll.
type fakeSession struct {
	mu         sync.Mutex
	taskStates []TaskState
	poll       int
	children   []TaskInfo
	tagged     []TagListing
	repoEvent  int64
	source     string
	target     Target
	submitted  []string
}

func (s *fakeSession) Build(_ context.Context, sourceURL, target string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, sourceURL+" -> "+target)
	return 4321, nil
}

func (s *fakeSession) TaskInfo(context.Context, int) (TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.taskStates[len(s.taskStates)-1]
	if s.poll < len(s.taskStates) {
		state = s.taskStates[s.poll]
	}
	s.poll++
	return TaskInfo{ID: 4321, State: state, Label: "build"}, nil
}

func (s *fakeSession) TaskChildren(context.Context, int) ([]TaskInfo, error) {
	return s.children, nil
}

func (s *fakeSession) ListTagged(context.Context, string, string) ([]TagListing, error) {
	return s.tagged, nil
}

func (s *fakeSession) RepoCreateEvent(context.Context, string) (int64, error) {
	return s.repoEvent, nil
}

func (s *fakeSession) BuildSource(context.Context, string) (string, error) {
	return s.source, nil
}

func (s *fakeSession) BuildTarget(context.Context, string) (Target, error) {
	return s.target, nil
}

func (s *fakeSession) LatestBuilds(context.Context, string) ([]BuildInfo, error) {
	return nil, nil
}

func (s *fakeSession) BuildRequires(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *fakeSession) WebURL() string { return "https://koji.example.com/koji" }

type fakeItem struct {
	mu       sync.Mutex
	name     string
	source   scheduler.Source
	statuses []string
	task     string
	children []string
	done     string
	failed   string
}

func (f *fakeItem) Name() string             { return f.name }
func (f *fakeItem) Source() scheduler.Source { return f.source }

func (f *fakeItem) SetStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeItem) SetProgress(string, []string) {}

func (f *fakeItem) SetTask(task string, children []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.task = task
	f.children = children
}

func (f *fakeItem) Done(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = status
}

func (f *fakeItem) Fail(status string, _ ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = status
}

func preparedBackend(t *testing.T, session *fakeSession) *Backend {
	t.Helper()
	b := NewBackend(session, "f38-flatpak-candidate")
	b.PollInterval = time.Millisecond
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return b
}

func TestBuildSuccess(t *testing.T) {
	session := &fakeSession{
		taskStates: []TaskState{TaskFree, TaskOpen, TaskClosed},
		children:   []TaskInfo{{ID: 4322, State: TaskOpen, Label: "buildArch (x86_64)"}},
		tagged:     []TagListing{{NVR: "eog-44.2-1.app.fc38", CreateEvent: 10}},
		repoEvent:  10,
		source:     "git+https://src.example.com/rpms/eog#abc123",
		target:     Target{BuildTag: "f38-build", DestTag: "f38-updates-candidate"},
	}
	b := preparedBackend(t, session)

	item := &fakeItem{name: "eog", source: scheduler.Source{NVR: "eog-44.2-1.app.fc38"}}
	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantStatuses := []string{
		"Getting source URL",
		"Starting build",
		"Waiting for eog-44.2-1.app.fc38 to appear in f38-build",
	}
	if diff := cmp.Diff(wantStatuses, item.statuses); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}
	if item.done != "eog-44.2-1.app.fc38 built successfully" {
		t.Errorf("done status = %q", item.done)
	}

	want := "git+https://src.example.com/rpms/eog#abc123 -> f38-flatpak-candidate"
	if len(session.submitted) != 1 || session.submitted[0] != want {
		t.Errorf("submitted = %v, want [%s]", session.submitted, want)
	}

	// Polling pushed the task tree to the display fields.
	if !strings.Contains(item.task, "4321") {
		t.Errorf("task = %q, want task id", item.task)
	}
	if len(item.children) != 1 || !strings.Contains(item.children[0], "buildArch (x86_64)") {
		t.Errorf("children = %v", item.children)
	}
}

func TestBuildSubmitsLocalPathDirectly(t *testing.T) {
	session := &fakeSession{
		taskStates: []TaskState{TaskClosed},
		tagged:     []TagListing{{NVR: "libfoo-1-1", CreateEvent: 3}},
		repoEvent:  3,
		target:     Target{BuildTag: "f38-build"},
	}
	b := preparedBackend(t, session)

	item := &fakeItem{name: "libfoo", source: scheduler.Source{Path: "git+https://src.example.com/rpms/libfoo#HEAD"}}
	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, status := range item.statuses {
		if status == "Getting source URL" {
			t.Error("path items must not look up a build source")
		}
	}
	if len(session.submitted) != 1 || !strings.HasPrefix(session.submitted[0], "git+https://src.example.com/rpms/libfoo") {
		t.Errorf("submitted = %v", session.submitted)
	}
}

func TestBuildTaskFailed(t *testing.T) {
	session := &fakeSession{
		taskStates: []TaskState{TaskOpen, TaskFailed},
		source:     "git+https://src.example.com/rpms/eog#abc123",
		target:     Target{BuildTag: "f38-build"},
	}
	b := preparedBackend(t, session)

	item := &fakeItem{name: "eog", source: scheduler.Source{NVR: "eog-44.2-1.app.fc38"}}
	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(item.failed, "task ") || !strings.HasSuffix(item.failed, " failed") {
		t.Errorf("fail status = %q", item.failed)
	}
	if item.done != "" {
		t.Errorf("done = %q, want unset", item.done)
	}
}

func TestBuildTaskCanceled(t *testing.T) {
	session := &fakeSession{
		taskStates: []TaskState{TaskCanceled},
		source:     "git+https://src.example.com/rpms/eog#abc123",
		target:     Target{BuildTag: "f38-build"},
	}
	b := preparedBackend(t, session)

	item := &fakeItem{name: "eog", source: scheduler.Source{NVR: "eog-44.2-1.app.fc38"}}
	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasSuffix(item.failed, " was canceled") {
		t.Errorf("fail status = %q", item.failed)
	}
}

func TestBuildClosedButUntagged(t *testing.T) {
	session := &fakeSession{
		taskStates: []TaskState{TaskClosed},
		source:     "git+https://src.example.com/rpms/eog#abc123",
		target:     Target{BuildTag: "f38-build"},
	}
	b := preparedBackend(t, session)

	item := &fakeItem{name: "eog", source: scheduler.Source{NVR: "eog-44.2-1.app.fc38"}}
	err := b.Build(context.Background(), item, 0)
	if err == nil || !strings.Contains(err.Error(), "no build in f38-build") {
		t.Fatalf("Build error = %v, want missing tagged build", err)
	}
}

func TestRetainFailedSlots(t *testing.T) {
	if (&Backend{}).RetainFailedSlots() {
		t.Error("koji backend must release failed slots")
	}
}
