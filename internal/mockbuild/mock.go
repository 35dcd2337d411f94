// Package mockbuild is the local execution backend: it rebuilds each
// item's SRPM inside a slot-numbered mock chroot, tails the build
// logs for live progress, and maintains a shared local RPM repository.
package mockbuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Sandbox is the minimal contract mockbuild needs from the mock
// chroot tool. Each uniqueext names an independent chroot instance,
// one per scheduler slot.
type Sandbox interface {
	// Rebuild runs an SRPM rebuild, leaving results in resultDir and
	// the chroot intact for inspection. Returns the build exit code;
	// a non-nil error means the tool could not be run at all.
	Rebuild(ctx context.Context, uniqueext, resultDir, srpm string, output io.Writer) (int, error)
	// Clean discards the chroot for a successful build.
	Clean(ctx context.Context, uniqueext string, output io.Writer) error
	// RootPath returns the chroot's filesystem root.
	RootPath(ctx context.Context, uniqueext string) (string, error)
	// ShellCommand returns the command a human runs to enter the
	// chroot.
	ShellCommand(uniqueext string) []string
}

// Mock drives the real mock executable.
type Mock struct {
	// Path is the mock executable; defaults to "mock" on PATH.
	Path string
	// ConfigPath is the mock configuration written for this run.
	ConfigPath string
}

var _ Sandbox = (*Mock)(nil)

func (m *Mock) path() string {
	if m.Path == "" {
		return "mock"
	}
	return m.Path
}

// command builds a mock invocation against this run's config and the
// given chroot instance.
func (m *Mock) command(uniqueext string, extra ...string) []string {
	args := []string{m.path(), "-r", m.ConfigPath, "--uniqueext", uniqueext}
	return append(args, extra...)
}

// Rebuild implements Sandbox.
func (m *Mock) Rebuild(ctx context.Context, uniqueext, resultDir, srpm string, output io.Writer) (int, error) {
	args := m.command(uniqueext, "--resultdir", resultDir, "--rebuild", "--no-cleanup-after", srpm)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = output
	cmd.Stderr = output
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("running mock: %w", err)
	}
	return 0, nil
}

// Clean implements Sandbox.
func (m *Mock) Clean(ctx context.Context, uniqueext string, output io.Writer) error {
	args := m.command(uniqueext, "--clean")
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = output
	cmd.Stderr = output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%q failed: %w", ShellJoin(args), err)
	}
	return nil
}

// RootPath implements Sandbox.
func (m *Mock) RootPath(ctx context.Context, uniqueext string) (string, error) {
	args := m.command(uniqueext, "--print-root-path")
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%q failed: %w", ShellJoin(args), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ShellCommand implements Sandbox.
func (m *Mock) ShellCommand(uniqueext string) []string {
	return m.command(uniqueext, "--shell")
}

// ShellJoin quotes and joins a command line so it can be pasted into
// a shell.
func ShellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]#~`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
