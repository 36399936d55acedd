// Package deps finds import cycles in the module dependency graph using
// strongly-connected-component decomposition followed by bounded
// elementary cycle enumeration.
package deps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
)

// Analyzer detects dependency cycles over a built project.
type Analyzer struct {
	maxCycleLength     int
	clusterThreshold   int
	includeConditional bool
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithMaxCycleLength caps elementary cycle enumeration within one SCC.
func WithMaxCycleLength(n int) Option {
	return func(a *Analyzer) { a.maxCycleLength = n }
}

// WithClusterThreshold sets the SCC size above which members are reported
// as a single cycle cluster instead of enumerated cycles.
func WithClusterThreshold(n int) Option {
	return func(a *Analyzer) { a.clusterThreshold = n }
}

// WithConditionalImports also follows imports inside type-checking guards.
func WithConditionalImports(include bool) Option {
	return func(a *Analyzer) { a.includeConditional = include }
}

// New creates a dependency cycle analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		maxCycleLength:   10,
		clusterThreshold: 15,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns cycle findings for the project. The cycle set is a pure
// function of the edge set: module insertion order never changes it.
func (a *Analyzer) Analyze(ctx context.Context, project *build.Project) ([]models.Finding, error) {
	analysis, inDegree := a.analyze(project)
	return a.findings(project, analysis, inDegree), ctx.Err()
}

// edgeSet indexes participating edges by from then to.
type edgeSet map[string]map[string]build.ImportEdge

// analyze computes the structured cycle result.
func (a *Analyzer) analyze(project *build.Project) (*Analysis, map[string]int) {
	ids := make([]string, 0, len(project.Modules))
	for _, m := range project.Modules {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	index := make(map[string]int64, len(ids))
	for i, id := range ids {
		index[id] = int64(i)
	}

	g := simple.NewDirectedGraph()
	for i := range ids {
		g.AddNode(simple.Node(int64(i)))
	}

	edges := make(edgeSet)
	inDegree := make(map[string]int)
	selfLoops := map[string]bool{}

	for _, m := range project.Modules {
		for _, e := range m.Imports {
			if e.External {
				continue
			}
			if e.Conditional && !a.includeConditional {
				continue
			}
			if _, known := index[e.To]; !known {
				continue
			}
			if e.From == e.To {
				selfLoops[e.From] = true
				continue
			}
			if edges[e.From] == nil {
				edges[e.From] = make(map[string]build.ImportEdge)
			}
			if _, dup := edges[e.From][e.To]; dup {
				continue
			}
			edges[e.From][e.To] = e
			inDegree[e.To]++
			g.SetEdge(g.NewEdge(simple.Node(index[e.From]), simple.Node(index[e.To])))
		}
	}

	analysis := &Analysis{}
	for id := range selfLoops {
		analysis.SelfLoops = append(analysis.SelfLoops, id)
	}
	sort.Strings(analysis.SelfLoops)

	var components [][]string
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		members := make([]string, 0, len(scc))
		for _, n := range scc {
			members = append(members, ids[n.ID()])
		}
		sort.Strings(members)
		components = append(components, members)
	}
	// Deterministic component order regardless of Tarjan's traversal.
	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})

	for _, members := range components {
		if len(members) > a.clusterThreshold {
			analysis.Clusters = append(analysis.Clusters, Cluster{Modules: members})
			continue
		}
		cycles := enumerateCycles(members, edges, a.maxCycleLength)
		// A strongly connected component always contains at least one
		// cycle. An empty enumeration means every elementary cycle blew
		// the length cap; the component still has to surface.
		if len(cycles) == 0 {
			analysis.Clusters = append(analysis.Clusters, Cluster{Modules: members})
			continue
		}
		for _, cycle := range cycles {
			analysis.Cycles = append(analysis.Cycles, Cycle{
				Modules:     cycle,
				ViaReexport: cycleHasReexport(cycle, edges),
			})
		}
	}

	sortCycles(analysis.Cycles)
	return analysis, inDegree
}

func cycleHasReexport(cycle []string, edges edgeSet) bool {
	for i, from := range cycle {
		to := cycle[(i+1)%len(cycle)]
		if e, ok := edges[from][to]; ok && e.Reexport {
			return true
		}
	}
	return false
}

func sortCycles(cycles []Cycle) {
	sort.Slice(cycles, func(i, j int) bool {
		a, b := cycles[i].Modules, cycles[j].Modules
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
}

// findings renders the analysis into findings.
func (a *Analyzer) findings(project *build.Project, analysis *Analysis, inDegree map[string]int) []models.Finding {
	var out []models.Finding

	for _, id := range analysis.SelfLoops {
		m := project.ByID[id]
		out = append(out, models.Finding{
			Kind:     models.KindImportSelfLoop,
			Severity: models.SeverityWarning,
			Location: moduleLocation(m),
			Message:  fmt.Sprintf("module %q imports itself", id),
		})
	}

	for _, cycle := range analysis.Cycles {
		first := project.ByID[cycle.Modules[0]]
		f := models.Finding{
			Kind:     models.KindImportCycle,
			Severity: cycleSeverity(cycle.Modules, inDegree),
			Location: moduleLocation(first),
			Message:  cycleMessage(cycle),
		}
		for _, id := range cycle.Modules[1:] {
			f.Related = append(f.Related, moduleLocation(project.ByID[id]))
		}
		out = append(out, f)
	}

	for _, cluster := range analysis.Clusters {
		first := project.ByID[cluster.Modules[0]]
		f := models.Finding{
			Kind:     models.KindCycleCluster,
			Severity: models.SeverityCritical,
			Location: moduleLocation(first),
			Message: fmt.Sprintf("cycle cluster of %d mutually dependent modules: %s",
				len(cluster.Modules), strings.Join(cluster.Modules, ", ")),
		}
		for _, id := range cluster.Modules[1:] {
			f.Related = append(f.Related, moduleLocation(project.ByID[id]))
		}
		out = append(out, f)
	}

	return out
}

// cycleSeverity grades a cycle by its size and whether it passes through a
// heavily depended-on module.
func cycleSeverity(members []string, inDegree map[string]int) models.Severity {
	if len(members) >= 5 {
		return models.SeverityCritical
	}
	for _, id := range members {
		if inDegree[id] > 10 {
			return models.SeverityCritical
		}
	}
	return models.SeverityWarning
}

func cycleMessage(cycle Cycle) string {
	path := strings.Join(append(append([]string{}, cycle.Modules...), cycle.Modules[0]), " -> ")
	msg := "import cycle: " + path
	if cycle.ViaReexport {
		msg += " (via re-export)"
	}
	return msg
}

func moduleLocation(m *build.Module) models.Location {
	if m == nil {
		return models.Location{}
	}
	return models.Location{File: m.Path, Module: m.ID, StartLine: 1, EndLine: 1}
}
