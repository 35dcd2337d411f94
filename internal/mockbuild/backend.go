package mockbuild

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/owtaylor/flatpak-module-tools/internal/logtail"
	"github.com/owtaylor/flatpak-module-tools/internal/rpmutils"
	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

var wroteLine = regexp.MustCompile(`Wrote:\s*(\S*)`)

// Backend builds items locally in mock chroots and collects the
// results into a shared createrepo-managed repository.
type Backend struct {
	Sandbox Sandbox
	// RepoPath is the local repository the results are moved into.
	RepoPath string
	// Workdir holds one result directory per item.
	Workdir string
	// TopURL is the Koji download root used to fetch SRPMs for items
	// identified by NVR.
	TopURL string

	FedpkgPath     string
	CreaterepoPath string

	// UniqueExt prefixes mock chroot instance names so concurrent
	// runs on the same host cannot collide.
	UniqueExt string

	// repoMu serializes result moves and repository regeneration
	// across slots.
	repoMu sync.Mutex
}

var _ scheduler.Backend = (*Backend)(nil)

// NewBackend returns a Backend with a fresh chroot namespace.
func NewBackend(sandbox Sandbox, repoPath, workdir string) *Backend {
	return &Backend{
		Sandbox:   sandbox,
		RepoPath:  repoPath,
		Workdir:   workdir,
		UniqueExt: uuid.NewString()[:8],
	}
}

// RetainFailedSlots implements scheduler.Backend. A failed chroot is
// kept for inspection, so its slot must not be reused.
func (b *Backend) RetainFailedSlots() bool {
	return true
}

func (b *Backend) fedpkg() string {
	if b.FedpkgPath == "" {
		return "fedpkg"
	}
	return b.FedpkgPath
}

func (b *Backend) createrepo() string {
	if b.CreaterepoPath == "" {
		return "createrepo_c"
	}
	return b.CreaterepoPath
}

// Prepare creates the local repository, generating initial (empty)
// repodata if none exists yet so mock can consume it from the first
// build.
func (b *Backend) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(b.RepoPath, 0o755); err != nil {
		return fmt.Errorf("creating local repo: %w", err)
	}
	if _, err := os.Stat(filepath.Join(b.RepoPath, "repodata", "repomd.xml")); err == nil {
		return nil
	}
	return b.updateRepo(ctx, io.Discard)
}

// Build implements scheduler.Backend.
func (b *Backend) Build(ctx context.Context, item scheduler.Item, slot int) error {
	workdir := filepath.Join(b.Workdir, item.Name())
	if err := os.RemoveAll(workdir); err != nil {
		return fmt.Errorf("resetting workdir: %w", err)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return fmt.Errorf("resetting workdir: %w", err)
	}

	output, err := os.Create(filepath.Join(workdir, "mock_output.log"))
	if err != nil {
		return err
	}
	defer output.Close()

	srpm, err := b.fetchSource(ctx, item, workdir)
	if err != nil {
		return err
	}
	if srpm == "" {
		// fedpkg srpm failed; the item already carries the failure.
		return nil
	}

	uniqueext := fmt.Sprintf("%s-%d", b.UniqueExt, slot)

	item.SetStatus(workdir)
	tailCtx, cancelTail := context.WithCancel(ctx)
	tailDone := make(chan struct{})
	tailer := &logtail.Tailer{Dir: workdir, OnUpdate: item.SetProgress}
	go func() {
		defer close(tailDone)
		_ = tailer.Run(tailCtx)
	}()

	exitCode, err := b.Sandbox.Rebuild(ctx, uniqueext, workdir, srpm, output)
	cancelTail()
	<-tailDone
	if err != nil {
		return err
	}

	if exitCode != 0 {
		b.failBuild(ctx, item, uniqueext)
		return nil
	}

	item.SetStatus("cleaning buildroot")
	// A leftover chroot only costs disk space, so cleanup failures
	// do not fail the build.
	_ = b.Sandbox.Clean(ctx, uniqueext, output)

	item.SetStatus("moving result RPMS")
	b.repoMu.Lock()
	err = b.moveResults(workdir)
	if err == nil {
		item.SetStatus("createrepo")
		err = b.updateRepo(ctx, output)
	}
	b.repoMu.Unlock()
	if err != nil {
		return err
	}

	item.Done("Built successfully")
	return nil
}

// failBuild marks the item failed, attaching what a developer needs
// to debug the retained chroot.
func (b *Backend) failBuild(ctx context.Context, item scheduler.Item, uniqueext string) {
	var debug []string
	if root, err := b.Sandbox.RootPath(ctx, uniqueext); err == nil {
		debug = append(debug, "chroot: "+root)
	}
	debug = append(debug, "Enter chroot: "+ShellJoin(b.Sandbox.ShellCommand(uniqueext)))
	item.Fail("Build failed", debug...)
}

// fetchSource produces the SRPM path to rebuild. An empty path with a
// nil error means the item was failed and the build should stop.
func (b *Backend) fetchSource(ctx context.Context, item scheduler.Item, workdir string) (string, error) {
	src := item.Source()
	if src.Path != "" {
		return b.makeSRPM(ctx, item, src.Path, workdir)
	}
	return b.downloadSRPM(ctx, src.NVR, workdir)
}

// makeSRPM runs fedpkg srpm in the package checkout and parses the
// path of the written SRPM out of its output.
func (b *Backend) makeSRPM(ctx context.Context, item scheduler.Item, path, workdir string) (string, error) {
	item.SetStatus("Building SRPM")

	logPath := filepath.Join(workdir, "fedpkg-srpm.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", err
	}
	defer logFile.Close()

	var captured strings.Builder
	cmd := exec.CommandContext(ctx, b.fedpkg(), "--path", path, "srpm")
	cmd.Stdout = io.MultiWriter(logFile, &captured)
	cmd.Stderr = logFile

	runErr := cmd.Run()
	m := wroteLine.FindStringSubmatch(captured.String())
	if runErr != nil || m == nil {
		item.Fail(fmt.Sprintf("'fedpkg srpm' failed, see %s", logPath))
		return "", nil
	}
	return m[1], nil
}

// downloadSRPM fetches the SRPM for an already-built NVR from the
// Koji download area.
func (b *Backend) downloadSRPM(ctx context.Context, nvr, workdir string) (string, error) {
	parsed, err := rpmutils.ParseNVR(nvr)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/packages/%s/%s/%s/src/%s.src.rpm",
		strings.TrimSuffix(b.TopURL, "/"), parsed.Name, parsed.Version, parsed.Release, nvr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: %s", url, resp.Status)
	}

	dest := filepath.Join(workdir, nvr+".src.rpm")
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

// moveResults moves every built binary RPM from the workdir into the
// local repository. Source RPMs stay behind; only binaries are served
// back into later buildroots.
func (b *Backend) moveResults(workdir string) error {
	if err := os.MkdirAll(b.RepoPath, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(workdir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".rpm") || strings.HasSuffix(name, ".src.rpm") {
			continue
		}
		src := filepath.Join(workdir, name)
		dest := filepath.Join(b.RepoPath, name)
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Rename(src, dest); err != nil {
			// Rename fails across filesystems; fall back to a copy.
			if err := copyFile(src, dest); err != nil {
				return err
			}
			if err := os.Remove(src); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) updateRepo(ctx context.Context, output io.Writer) error {
	cmd := exec.CommandContext(ctx, b.createrepo(), "--general-compress-type=gz", b.RepoPath)
	cmd.Stdout = output
	cmd.Stderr = output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("createrepo of %s failed: %w", b.RepoPath, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
