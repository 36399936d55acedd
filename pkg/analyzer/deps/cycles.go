package deps

import (
	"sort"

	"github.com/panbanda/auspex/pkg/analyzer/build"
)

// enumerateCycles lists the elementary cycles inside one strongly connected
// component, each no longer than maxLen. Cycles are emitted in canonical
// form: rotated so the lexicographically smallest module comes first.
//
// Starting the search only from each member in sorted order, and never
// descending to a module that sorts before the start, guarantees every
// cycle is discovered exactly once already in canonical rotation.
func enumerateCycles(members []string, edges edgeSet, maxLen int) [][]string {
	inComponent := make(map[string]bool, len(members))
	for _, m := range members {
		inComponent[m] = true
	}

	var cycles [][]string
	path := make([]string, 0, maxLen)
	onPath := make(map[string]bool, maxLen)

	var dfs func(start, cur string)
	dfs = func(start, cur string) {
		path = append(path, cur)
		onPath[cur] = true
		defer func() {
			path = path[:len(path)-1]
			delete(onPath, cur)
		}()

		for _, next := range sortedTargets(edges[cur]) {
			if !inComponent[next] || next < start {
				continue
			}
			if next == start {
				cycle := make([]string, len(path))
				copy(cycle, path)
				cycles = append(cycles, cycle)
				continue
			}
			if onPath[next] || len(path) >= maxLen {
				continue
			}
			dfs(start, next)
		}
	}

	for _, start := range members {
		dfs(start, start)
	}
	return cycles
}

func sortedTargets(out map[string]build.ImportEdge) []string {
	targets := make([]string, 0, len(out))
	for to := range out {
		targets = append(targets, to)
	}
	sort.Strings(targets)
	return targets
}
