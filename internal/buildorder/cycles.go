package buildorder

import (
	"fmt"
	"io"
	"sort"
)

// maxCycles caps cycle enumeration; simple-cycle counts explode
// combinatorially on dense graphs and we only need enough for a
// useful report.
const maxCycles = 25

// reportCycles is how many of the shortest cycles get a full
// explanation in the report.
const reportCycles = 5

// FindCycles enumerates simple cycles in the graph, up to max. Each
// cycle is returned as the list of packages along it, starting from
// its lexicographically smallest member. Results are deterministic.
func FindCycles(g Graph, max int) [][]string {
	nodes := g.Packages()
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	var cycles [][]string
	var path []string
	onPath := make(map[string]bool)

	// DFS restricted to nodes >= start, so each cycle is found exactly
	// once, rooted at its smallest member.
	var visit func(start, node string) bool
	visit = func(start, node string) bool {
		path = append(path, node)
		onPath[node] = true
		defer func() {
			path = path[:len(path)-1]
			delete(onPath, node)
		}()

		for _, next := range sortedEdges(g[node]) {
			if index[next] < index[start] {
				continue
			}
			if next == start {
				cycle := make([]string, len(path))
				copy(cycle, path)
				cycles = append(cycles, cycle)
				if len(cycles) >= max {
					return false
				}
				continue
			}
			if onPath[next] {
				continue
			}
			if !visit(start, next) {
				return false
			}
		}
		return true
	}

	for _, start := range nodes {
		if !visit(start, start) {
			break
		}
	}
	return cycles
}

// CheckForCycles reports whether the build-after graph contains any
// cycle, writing a human-readable report of the shortest few cycles to
// w. A single-package batch is always acyclic: there is no ordering to
// decide, and a package may depend on its own prior build.
func CheckForCycles(w io.Writer, g Graph, details Details) bool {
	if len(g) == 1 {
		return false
	}

	cycles := FindCycles(g, maxCycles)
	if len(cycles) == 0 {
		return false
	}

	sort.SliceStable(cycles, func(i, j int) bool {
		return len(cycles[i]) < len(cycles[j])
	})

	for _, cycle := range cycles[:min(reportCycles, len(cycles))] {
		fmt.Fprintln(w, "Found cycle")
		for i, x := range cycle {
			y := cycle[(i+1)%len(cycle)]
			fmt.Fprintf(w, "    %s ⇒ %s\n", x, y)

			var explanation []string
			if providers := details[x][y]; len(providers) > 0 {
				explanation = providers[0].Explanation
			}
			WriteExplanation(w, explanation, "        ", x)
		}
		fmt.Fprintln(w)
	}
	if len(cycles) > reportCycles {
		fmt.Fprintln(w, "More than 5 cycles found, ignoring additional cycles")
	}
	return true
}

// WriteExplanation renders a resolver explanation chain: an ordered
// sequence alternating [requiring package, requirement expression,
// providing package, ...]. An even-length chain starts mid-pair and is
// anchored on buildRequiring. A nil chain means the package was part
// of the input set.
func WriteExplanation(w io.Writer, explanation []string, prefix, buildRequiring string) {
	if explanation == nil {
		fmt.Fprintf(w, "%s<in input>\n", prefix)
		return
	}

	start := 0
	if len(explanation)%2 == 0 {
		fmt.Fprintf(w, "%s%s buildrequires %s, provided by %s\n",
			prefix, buildRequiring, explanation[0], explanation[1])
		start = 1
	}
	for i := start; i+2 < len(explanation); i += 2 {
		fmt.Fprintf(w, "%s%s requires %s, provided by %s\n",
			prefix, explanation[i], explanation[i+1], explanation[i+2])
	}
}

func sortedEdges(edges map[string]bool) []string {
	out := make([]string, 0, len(edges))
	for e := range edges {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
