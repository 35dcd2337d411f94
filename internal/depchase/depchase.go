// Package depchase invokes the external flatpak-module-depchase
// resolver, which maps requirement expressions to the source packages
// that satisfy them along with an explanation chain for each match.
package depchase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Provider is one resolved match for a requirement: the binary package
// that provides it, plus the chain of requirements that pulled it in.
type Provider struct {
	Name string `json:"name"`
	NVRA string `json:"nvra"`
	Repo string `json:"repo"`
	// Explanation alternates [requiring package, requirement
	// expression, providing package, ...]. A nil chain means the
	// package was part of the input set.
	Explanation []string `json:"explanation,omitempty"`
}

// Resolution maps a source package name to the providers that were
// resolved from it.
type Resolution map[string][]Provider

// Resolver answers requirement-resolution queries. Implementations
// must be idempotent and side-effect-free from the caller's point of
// view.
type Resolver interface {
	// ResolveRequires resolves raw requirement expressions to the
	// source packages providing them.
	ResolveRequires(ctx context.Context, requires []string) (Resolution, error)
	// ResolvePackages resolves package names to the full set of
	// source packages needed to install them.
	ResolvePackages(ctx context.Context, packages []string) (Resolution, error)
}

// CommandResolver runs the flatpak-module-depchase CLI.
type CommandResolver struct {
	// Path is the depchase executable; defaults to
	// "flatpak-module-depchase" on PATH when empty.
	Path string
	// LocalRepo is passed as --local-repo so locally rebuilt packages
	// take part in resolution.
	LocalRepo string
	// PreinstalledFile lists packages already present in the runtime,
	// passed as --preinstalled.
	PreinstalledFile string
}

var _ Resolver = (*CommandResolver)(nil)

// ResolveRequires implements Resolver.
func (r *CommandResolver) ResolveRequires(ctx context.Context, requires []string) (Resolution, error) {
	return r.run(ctx, "resolve-requires", append([]string{"--source", "--json"}, requires...))
}

// ResolvePackages implements Resolver.
func (r *CommandResolver) ResolvePackages(ctx context.Context, packages []string) (Resolution, error) {
	return r.run(ctx, "resolve-packages", append([]string{"--source", "--json"}, packages...))
}

func (r *CommandResolver) run(ctx context.Context, subcommand string, args []string) (Resolution, error) {
	path := r.Path
	if path == "" {
		path = "flatpak-module-depchase"
	}

	full := make([]string, 0, len(args)+5)
	if r.LocalRepo != "" {
		full = append(full, "--local-repo="+r.LocalRepo)
	}
	full = append(full, subcommand)
	if r.PreinstalledFile != "" {
		full = append(full, "--preinstalled", r.PreinstalledFile)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, path, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s failed: %w\nstderr: %s",
			path, subcommand, err, strings.TrimSpace(stderr.String()))
	}

	var res Resolution
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("parsing %s output: %w", subcommand, err)
	}
	return res, nil
}
