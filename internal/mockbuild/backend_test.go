package mockbuild

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

type fakeSandbox struct {
	mu       sync.Mutex
	exitCode int
	rebuilds []string
	cleans   []string

	// resultRPMs are written into the result dir on rebuild.
	resultRPMs []string
}

func (f *fakeSandbox) Rebuild(_ context.Context, uniqueext, resultDir, srpm string, _ io.Writer) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds = append(f.rebuilds, uniqueext+" "+srpm)
	for _, rpm := range f.resultRPMs {
		if err := os.WriteFile(filepath.Join(resultDir, rpm), []byte(rpm), 0o644); err != nil {
			return -1, err
		}
	}
	return f.exitCode, nil
}

func (f *fakeSandbox) Clean(_ context.Context, uniqueext string, _ io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleans = append(f.cleans, uniqueext)
	return nil
}

func (f *fakeSandbox) RootPath(context.Context, string) (string, error) {
	return "/var/lib/mock/test-root/root", nil
}

func (f *fakeSandbox) ShellCommand(uniqueext string) []string {
	return []string{"mock", "--uniqueext", uniqueext, "--shell"}
}

type fakeItem struct {
	mu       sync.Mutex
	name     string
	source   scheduler.Source
	statuses []string
	logFiles []string
	done     string
	failed   string
	debug    []string
}

func (f *fakeItem) Name() string             { return f.name }
func (f *fakeItem) Source() scheduler.Source { return f.source }

func (f *fakeItem) SetStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeItem) SetProgress(status string, logFiles []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logFiles = logFiles
}

func (f *fakeItem) SetTask(string, []string) {}

func (f *fakeItem) Done(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = status
}

func (f *fakeItem) Fail(status string, debug ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = status
	f.debug = debug
}

// writeScript installs an executable shell stub and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// testBackend returns a backend whose repository directory does not
// exist yet. Prepare is deliberately not called: Build must create
// the repository on its own before moving results into it.
func testBackend(t *testing.T, sandbox *fakeSandbox) *Backend {
	t.Helper()
	root := t.TempDir()
	b := NewBackend(sandbox, filepath.Join(root, "repo"), filepath.Join(root, "work"))
	b.CreaterepoPath = writeScript(t, root, "createrepo",
		`mkdir -p "$2/repodata" && touch "$2/repodata/repomd.xml"`)
	return b
}

func TestBuildFromPathSuccess(t *testing.T) {
	sandbox := &fakeSandbox{resultRPMs: []string{
		"eog-44.2-1.app.fc38.x86_64.rpm",
		"eog-44.2-1.app.fc38.src.rpm",
	}}
	b := testBackend(t, sandbox)

	pkgDir := t.TempDir()
	item := &fakeItem{name: "eog", source: scheduler.Source{Path: pkgDir}}
	b.FedpkgPath = writeScript(t, pkgDir, "fedpkg",
		`echo "Wrote: `+pkgDir+`/eog-44.2-1.app.fc38.src.rpm"`)

	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if item.done != "Built successfully" {
		t.Errorf("done status = %q, want %q", item.done, "Built successfully")
	}
	wantStatuses := []string{
		"Building SRPM",
		filepath.Join(b.Workdir, "eog"),
		"cleaning buildroot",
		"moving result RPMS",
		"createrepo",
	}
	if diff := cmp.Diff(wantStatuses, item.statuses); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}
	if len(sandbox.cleans) != 1 {
		t.Errorf("Clean called %d times, want 1", len(sandbox.cleans))
	}

	// Binary RPMs move into the repo; the SRPM stays in the workdir.
	if _, err := os.Stat(filepath.Join(b.RepoPath, "eog-44.2-1.app.fc38.x86_64.rpm")); err != nil {
		t.Errorf("binary RPM not moved to repo: %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.RepoPath, "eog-44.2-1.app.fc38.src.rpm")); err == nil {
		t.Error("source RPM should not be moved to repo")
	}
	if _, err := os.Stat(filepath.Join(b.RepoPath, "repodata", "repomd.xml")); err != nil {
		t.Errorf("createrepo not run: %v", err)
	}
}

func TestBuildFromNVRDownloadsSRPM(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		io.WriteString(w, "srpm contents")
	}))
	defer server.Close()

	sandbox := &fakeSandbox{resultRPMs: []string{"eog-44.2-1.app.fc38.x86_64.rpm"}}
	b := testBackend(t, sandbox)
	b.TopURL = server.URL

	item := &fakeItem{name: "eog", source: scheduler.Source{NVR: "eog-44.2-1.app.fc38"}}
	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "/packages/eog/44.2/1.app.fc38/src/eog-44.2-1.app.fc38.src.rpm"
	if requested != want {
		t.Errorf("requested %q, want %q", requested, want)
	}
	if item.done != "Built successfully" {
		t.Errorf("done status = %q, want %q", item.done, "Built successfully")
	}
	if got := sandbox.rebuilds[0]; !strings.HasSuffix(got, "eog-44.2-1.app.fc38.src.rpm") {
		t.Errorf("rebuild = %q, want downloaded SRPM path", got)
	}
}

func TestBuildFromNVRDownloadError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	b := testBackend(t, &fakeSandbox{})
	b.TopURL = server.URL

	item := &fakeItem{name: "eog", source: scheduler.Source{NVR: "eog-44.2-1.app.fc38"}}
	err := b.Build(context.Background(), item, 0)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Build error = %v, want 404", err)
	}
}

func TestBuildFailureRetainsChroot(t *testing.T) {
	sandbox := &fakeSandbox{exitCode: 1}
	b := testBackend(t, sandbox)

	pkgDir := t.TempDir()
	b.FedpkgPath = writeScript(t, pkgDir, "fedpkg", `echo "Wrote: /tmp/x.src.rpm"`)
	item := &fakeItem{name: "libfoo", source: scheduler.Source{Path: pkgDir}}

	if err := b.Build(context.Background(), item, 2); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if item.failed != "Build failed" {
		t.Fatalf("fail status = %q, want %q", item.failed, "Build failed")
	}
	if len(item.debug) != 2 {
		t.Fatalf("debug = %v, want chroot path and shell command", item.debug)
	}
	if !strings.HasPrefix(item.debug[0], "chroot: ") {
		t.Errorf("debug[0] = %q, want chroot path", item.debug[0])
	}
	if !strings.Contains(item.debug[1], "--shell") {
		t.Errorf("debug[1] = %q, want shell command", item.debug[1])
	}
	if len(sandbox.cleans) != 0 {
		t.Error("failed chroot must not be cleaned")
	}
	// Slot number is part of the chroot instance name.
	if got := sandbox.rebuilds[0]; !strings.Contains(got, b.UniqueExt+"-2 ") {
		t.Errorf("rebuild = %q, want uniqueext %s-2", got, b.UniqueExt)
	}
}

func TestBuildSRPMFailure(t *testing.T) {
	sandbox := &fakeSandbox{}
	b := testBackend(t, sandbox)

	pkgDir := t.TempDir()
	b.FedpkgPath = writeScript(t, pkgDir, "fedpkg", `echo "error: no spec file"; exit 1`)
	item := &fakeItem{name: "libfoo", source: scheduler.Source{Path: pkgDir}}

	if err := b.Build(context.Background(), item, 0); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(item.failed, "'fedpkg srpm' failed, see ") {
		t.Errorf("fail status = %q", item.failed)
	}
	if len(sandbox.rebuilds) != 0 {
		t.Error("mock must not run when SRPM creation fails")
	}
}

func TestPrepare(t *testing.T) {
	b := testBackend(t, &fakeSandbox{})
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.RepoPath, "repodata", "repomd.xml")); err != nil {
		t.Fatalf("initial repodata not created: %v", err)
	}

	// With repodata present, Prepare must not regenerate it.
	b.CreaterepoPath = "/bin/false"
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare with existing repodata: %v", err)
	}
}

func TestRepositoryMutationSerialized(t *testing.T) {
	sandbox := &fakeSandbox{resultRPMs: []string{"out.x86_64.rpm"}}
	b := testBackend(t, sandbox)

	// The stub createrepo fails if another instance is inside it,
	// catching any interleaving of result moves and regeneration.
	b.CreaterepoPath = writeScript(t, t.TempDir(), "createrepo", `
test ! -e "$2/.busy" || exit 1
touch "$2/.busy"
sleep 0.05
rm "$2/.busy"
mkdir -p "$2/repodata" && touch "$2/repodata/repomd.xml"`)

	pkgDir := t.TempDir()
	fedpkg := writeScript(t, pkgDir, "fedpkg", `echo "Wrote: /tmp/x.src.rpm"`)
	b.FedpkgPath = fedpkg

	var wg sync.WaitGroup
	items := []*fakeItem{
		{name: "alpha", source: scheduler.Source{Path: pkgDir}},
		{name: "beta", source: scheduler.Source{Path: pkgDir}},
	}
	errs := make([]error, len(items))
	for i, item := range items {
		wg.Add(1)
		go func(i int, item *fakeItem) {
			defer wg.Done()
			errs[i] = b.Build(context.Background(), item, i)
		}(i, item)
	}
	wg.Wait()

	for i, item := range items {
		if errs[i] != nil {
			t.Errorf("Build(%s): %v", item.name, errs[i])
		}
		if item.done != "Built successfully" {
			t.Errorf("%s done status = %q", item.name, item.done)
		}
	}
}

func TestRetainFailedSlots(t *testing.T) {
	if !(&Backend{}).RetainFailedSlots() {
		t.Error("local backend must retain failed slots")
	}
}

func TestShellJoin(t *testing.T) {
	got := ShellJoin([]string{"mock", "-r", "/tmp/my cfg.cfg", "--shell", ""})
	want := `mock -r '/tmp/my cfg.cfg' --shell ''`
	if got != want {
		t.Errorf("ShellJoin = %q, want %q", got, want)
	}
}
