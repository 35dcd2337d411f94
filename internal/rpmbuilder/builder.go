// Package rpmbuilder ties the pieces together: it works out which
// packages a flatpak needs that have not been rebuilt yet, derives
// their build order from expanded build requirements, and drives the
// scheduler against either a local mock backend or a Koji target.
package rpmbuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/owtaylor/flatpak-module-tools/internal/buildorder"
	"github.com/owtaylor/flatpak-module-tools/internal/config"
	"github.com/owtaylor/flatpak-module-tools/internal/depchase"
	"github.com/owtaylor/flatpak-module-tools/internal/display"
	"github.com/owtaylor/flatpak-module-tools/internal/koji"
	"github.com/owtaylor/flatpak-module-tools/internal/mockbuild"
	"github.com/owtaylor/flatpak-module-tools/internal/rpmutils"
	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

var boldStyle = lipgloss.NewStyle().Bold(true)

// Builder rebuilds the packages a flatpak installs.
type Builder struct {
	Cfg      config.Config
	Profile  *config.Profile
	Session  koji.Session
	Resolver depchase.Resolver
	Out      io.Writer

	// Packages are the binary packages the flatpak installs, from its
	// container spec.
	Packages []string
	// RepoPath is the local repository for rebuilt RPMs.
	RepoPath string
	// Workdir holds per-package build directories and the mock
	// configuration.
	Workdir string
	// Arch is the RPM architecture being built for; defaults to the
	// host architecture.
	Arch string
	// ReleaseVer is the distribution release, e.g. "38".
	ReleaseVer string
	// RuntimePackages are preinstalled in the buildroot.
	RuntimePackages []string
}

func (b *Builder) arch() string {
	if b.Arch != "" {
		return b.Arch
	}
	return rpmutils.RPMArch("")
}

// appRelease reports whether a release string marks a package as
// already rebuilt for the flatpak (release suffixed with "app").
func appRelease(release string) bool {
	return strings.HasSuffix(release, "app")
}

// FindMissingPackages resolves the flatpak's package set and returns
// the source packages that still need an app rebuild, merged with any
// manually requested packages. It prints the full installation set so
// the operator can see what will be pulled in.
func (b *Builder) FindMissingPackages(ctx context.Context, manual []string) ([]string, error) {
	fmt.Fprintf(b.Out, "Finding dependencies of %s not in runtime\n", strings.Join(b.Packages, ", "))
	resolution, err := b.Resolver.ResolvePackages(ctx, b.Packages)
	if err != nil {
		return nil, err
	}

	toRebuild := map[string]bool{}
	for _, pkg := range manual {
		toRebuild[pkg] = true
	}

	fmt.Fprintln(b.Out, "Needed for installation:")
	sources := make([]string, 0, len(resolution))
	for source := range resolution {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		allRebuilt := true
		for _, provider := range resolution[source] {
			nvra, err := rpmutils.ParseNVRA(provider.NVRA)
			if err != nil {
				return nil, err
			}
			line := "    " + provider.NVRA
			if provider.Repo == "local" {
				line += " (local)"
			}
			if !appRelease(nvra.Release) {
				allRebuilt = false
				line = boldStyle.Render(line)
			}
			fmt.Fprintln(b.Out, line)
		}
		if !allRebuilt {
			toRebuild[source] = true
		}
	}

	names := make([]string, 0, len(toRebuild))
	for name := range toRebuild {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(b.Out, "To rebuild:", strings.Join(names, ", "))
	return names, nil
}

// latestBuilds looks up the latest build of each package in the build
// tag.
func (b *Builder) latestBuilds(ctx context.Context, buildTag string, packages []string) (map[string]string, error) {
	fmt.Fprintln(b.Out, "Getting latest builds from koji")
	nvrs := make(map[string]string, len(packages))
	for _, pkg := range packages {
		listings, err := b.Session.ListTagged(ctx, buildTag, pkg)
		if err != nil {
			return nil, err
		}
		if len(listings) == 0 {
			return nil, fmt.Errorf("can't find build for %s in %s", pkg, buildTag)
		}
		nvrs[pkg] = listings[0].NVR
	}
	return nvrs, nil
}

// buildAfterGraph fetches each build's requirements and expands them
// into the build-after graph restricted to the rebuild set.
func (b *Builder) buildAfterGraph(ctx context.Context, nvrs map[string]string) (buildorder.Graph, buildorder.Details, error) {
	fmt.Fprintln(b.Out, "Getting build requirements from koji")
	requires := make(map[string][]string, len(nvrs))
	for pkg, nvr := range nvrs {
		reqs, err := b.Session.BuildRequires(ctx, nvr)
		if err != nil {
			return nil, nil, fmt.Errorf("getting build requirements of %s: %w", nvr, err)
		}
		requires[pkg] = reqs
	}

	fmt.Fprintln(b.Out, "Expanding build requirements to determine build order")
	return buildorder.Build(ctx, b.Resolver, requires)
}

func buildAfter(g buildorder.Graph) scheduler.BuildAfter {
	after := make(scheduler.BuildAfter, len(g))
	for pkg, edges := range g {
		deps := make([]string, 0, len(edges))
		for dep := range edges {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		after[pkg] = deps
	}
	return after
}

// plan resolves the rebuild set through to an acyclic build-after
// graph and the NVR of each package's latest build.
func (b *Builder) plan(ctx context.Context, manual []string, allMissing bool) (scheduler.BuildAfter, map[string]string, error) {
	var toBuild []string
	if allMissing {
		var err error
		toBuild, err = b.FindMissingPackages(ctx, manual)
		if err != nil {
			return nil, nil, err
		}
	} else {
		toBuild = append(toBuild, manual...)
		sort.Strings(toBuild)
	}
	if len(toBuild) == 0 {
		return nil, nil, nil
	}

	target, err := b.Session.BuildTarget(ctx, b.Profile.RPMTarget)
	if err != nil {
		return nil, nil, err
	}
	nvrs, err := b.latestBuilds(ctx, target.BuildTag, toBuild)
	if err != nil {
		return nil, nil, err
	}

	graph, details, err := b.buildAfterGraph(ctx, nvrs)
	if err != nil {
		return nil, nil, err
	}
	if buildorder.CheckForCycles(b.Out, graph, details) {
		return nil, nil, errors.New("build ordering contains cycles")
	}
	return buildAfter(graph), nvrs, nil
}

// run drives the scheduler over the planned items with a live status
// display, then reports any per-package failures as an error.
func (b *Builder) run(ctx context.Context, backend scheduler.Backend, after scheduler.BuildAfter, nvrs map[string]string, parallel int) error {
	disp := display.New(b.Out)
	sched := scheduler.New(backend, after,
		scheduler.WithParallelJobs(parallel),
		scheduler.WithSink(disp))

	names := make([]string, 0, len(nvrs))
	for name := range nvrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sched.AddItem(name, scheduler.Source{NVR: nvrs[name]})
	}

	disp.Start()
	if err := sched.Build(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			disp.Stop(display.RenderInterrupted)
		} else {
			disp.Stop(display.RenderException)
		}
		return err
	}
	disp.Stop(display.RenderDone)

	var failed []string
	for _, item := range sched.Items() {
		if item.State == scheduler.StateFailed {
			failed = append(failed, item.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to build: %s", strings.Join(failed, ", "))
	}
	return nil
}

// BuildRPMsLocal rebuilds packages in local mock chroots, feeding
// results back through the shared local repository.
func (b *Builder) BuildRPMsLocal(ctx context.Context, manual []string, allMissing bool) error {
	after, nvrs, err := b.plan(ctx, manual, allMissing)
	if err != nil || nvrs == nil {
		return err
	}

	target, err := b.Session.BuildTarget(ctx, b.Profile.RPMTarget)
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(b.Workdir, "mock.cfg")
	err = mockbuild.WriteMockConfig(cfgPath, mockbuild.MockConfig{
		Root:       "flatpak-module-tools-" + b.Profile.Name,
		Arch:       b.arch(),
		ReleaseVer: b.ReleaseVer,
		LocalRepo:  b.RepoPath,
		BaseRepos: []string{
			fmt.Sprintf("%s/repos/%s/latest/%s/",
				strings.TrimSuffix(b.Profile.Koji.TopURL, "/"), target.BuildTag, b.arch()),
		},
		RuntimePackages: b.RuntimePackages,
	})
	if err != nil {
		return err
	}

	backend := mockbuild.NewBackend(
		&mockbuild.Mock{Path: b.Cfg.MockPath, ConfigPath: cfgPath},
		b.RepoPath, b.Workdir)
	backend.TopURL = b.Profile.SourceKoji.TopURL
	if err := backend.Prepare(ctx); err != nil {
		return err
	}

	return b.run(ctx, backend, after, nvrs, b.Cfg.ParallelJobs)
}

// BuildRPMsKoji rebuilds packages by submitting them to the profile's
// RPM target.
func (b *Builder) BuildRPMsKoji(ctx context.Context, manual []string, allMissing bool) error {
	after, nvrs, err := b.plan(ctx, manual, allMissing)
	if err != nil || nvrs == nil {
		return err
	}

	backend := koji.NewBackend(b.Session, b.Profile.RPMTarget)
	if err := backend.Prepare(ctx); err != nil {
		return err
	}

	return b.run(ctx, backend, after, nvrs, b.Cfg.KojiParallel)
}
