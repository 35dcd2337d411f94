// Package buildorder turns a batch of packages to rebuild into a
// build-after graph by resolving each package's build requirements,
// and validates that the graph can actually be linearized.
package buildorder

import (
	"context"
	"fmt"
	"sort"

	"github.com/owtaylor/flatpak-module-tools/internal/depchase"
)

// Graph maps each package to the set of same-batch packages that must
// reach DONE before it may start building.
type Graph map[string]map[string]bool

// Details retains, for every build-after edge, the providers (with
// explanation chains) that forced the edge. Keyed by package, then by
// the package it must build after.
type Details map[string]map[string][]depchase.Provider

// Packages returns the graph's package names, sorted.
func (g Graph) Packages() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type expandResult struct {
	pkg      string
	resolved depchase.Resolution
	err      error
}

// Build resolves every package's raw build-requirement expressions
// through the resolver and produces the build-after graph restricted
// to the batch. A package resolving to itself is dropped: a
// requirement satisfied by a package's own prior build is not a
// same-batch ordering constraint.
//
// Resolver queries run concurrently, one per package; the merged graph
// is independent of completion order. Any resolver failure aborts the
// whole expansion.
func Build(ctx context.Context, resolver depchase.Resolver, requires map[string][]string) (Graph, Details, error) {
	results := make(chan expandResult, len(requires))
	launched := 0
	for pkg, reqs := range requires {
		if len(reqs) == 0 {
			continue
		}
		launched++
		go func(pkg string, reqs []string) {
			resolved, err := resolver.ResolveRequires(ctx, reqs)
			results <- expandResult{pkg: pkg, resolved: resolved, err: err}
		}(pkg, reqs)
	}

	graph := make(Graph, len(requires))
	details := make(Details, len(requires))
	for pkg := range requires {
		graph[pkg] = make(map[string]bool)
		details[pkg] = make(map[string][]depchase.Provider)
	}

	var firstErr error
	for i := 0; i < launched; i++ {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("resolving build requirements of %s: %w", res.pkg, res.err)
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		for required, providers := range res.resolved {
			if required == res.pkg {
				continue
			}
			if _, inBatch := requires[required]; !inBatch {
				continue
			}
			graph[res.pkg][required] = true
			details[res.pkg][required] = providers
		}
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}
	return graph, details, nil
}
