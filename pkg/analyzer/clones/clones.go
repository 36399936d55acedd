// Package clones groups functions, methods and classes whose normalized
// bodies are identical, and flags structural near-duplicates whose coarse
// operation profile matches despite different control flow.
package clones

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
)

// Analyzer detects duplicated code units in a built project.
type Analyzer struct {
	minLines         int
	minStatements    int
	sizeTolerance    float64
	boilerplateRatio float64
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithMinLines sets the minimum source line count for a unit to be
// considered.
func WithMinLines(n int) Option {
	return func(a *Analyzer) { a.minLines = n }
}

// WithMinStatements sets the minimum non-boilerplate statement count for
// a unit to be considered.
func WithMinStatements(n int) Option {
	return func(a *Analyzer) { a.minStatements = n }
}

// WithSizeTolerance sets the smallest allowed size ratio between two
// structural-match candidates.
func WithSizeTolerance(t float64) Option {
	return func(a *Analyzer) { a.sizeTolerance = t }
}

// WithBoilerplateRatio sets the boilerplate fraction above which matching
// units are not reported.
func WithBoilerplateRatio(r float64) Option {
	return func(a *Analyzer) { a.boilerplateRatio = r }
}

// New creates a clone analyzer with default thresholds.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		minLines:         5,
		minStatements:    3,
		sizeTolerance:    0.5,
		boilerplateRatio: 0.8,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns one finding per clone group.
func (a *Analyzer) Analyze(ctx context.Context, project *build.Project) ([]models.Finding, error) {
	groups := a.groups(project.Fingerprints())
	out := make([]models.Finding, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupFinding(g))
	}
	models.SortFindings(out)
	return out, ctx.Err()
}

// groups computes exact and structural clone groups over the project's
// fingerprints.
func (a *Analyzer) groups(prints []*build.Fingerprint) []Group {
	eligible := make([]*build.Fingerprint, 0, len(prints))
	for _, fp := range prints {
		if a.eligible(fp) {
			eligible = append(eligible, fp)
		}
	}
	// Deterministic member order inside every bucket.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].File != eligible[j].File {
			return eligible[i].File < eligible[j].File
		}
		return eligible[i].StartLine < eligible[j].StartLine
	})

	groups := a.exactGroups(eligible)
	groups = append(groups, a.structuralGroups(eligible)...)

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Members[0], groups[j].Members[0]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return groups[i].Kind < groups[j].Kind
	})
	return groups
}

// eligible applies the minimum size guard. Trivial bodies (getters,
// delegating wrappers) duplicate everywhere by nature.
func (a *Analyzer) eligible(fp *build.Fingerprint) bool {
	if fp.EndLine-fp.StartLine+1 < a.minLines {
		return false
	}
	return fp.Statements >= a.minStatements
}

func (a *Analyzer) exactGroups(prints []*build.Fingerprint) []Group {
	buckets := make(map[uint64][]*build.Fingerprint)
	for _, fp := range prints {
		buckets[fp.ExactHash] = append(buckets[fp.ExactHash], fp)
	}

	var groups []Group
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		if a.allBoilerplate(bucket) {
			continue
		}
		groups = append(groups, Group{Kind: KindExact, Members: members(bucket)})
	}
	return groups
}

// structuralGroups buckets by the coarse operation profile and keeps
// pairs that are not already exact matches and are of comparable size.
func (a *Analyzer) structuralGroups(prints []*build.Fingerprint) []Group {
	buckets := make(map[uint64][]int)
	for i, fp := range prints {
		// Classes have no meaningful operation profile.
		if fp.Kind == "class" {
			continue
		}
		buckets[fp.CoarseHash] = append(buckets[fp.CoarseHash], i)
	}

	uf := newUnionFind(len(prints))
	matched := make(map[int]bool)
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				x, y := prints[bucket[i]], prints[bucket[j]]
				if x.ExactHash == y.ExactHash {
					continue
				}
				if !sizeComparable(x.Nodes, y.Nodes, a.sizeTolerance) {
					continue
				}
				if x.BoilerplateRatio >= a.boilerplateRatio && y.BoilerplateRatio >= a.boilerplateRatio {
					continue
				}
				uf.union(bucket[i], bucket[j])
				matched[bucket[i]] = true
				matched[bucket[j]] = true
			}
		}
	}

	byRoot := make(map[int][]*build.Fingerprint)
	for i := range prints {
		if matched[i] {
			root := uf.find(i)
			byRoot[root] = append(byRoot[root], prints[i])
		}
	}

	var groups []Group
	for _, bucket := range byRoot {
		if len(bucket) < 2 {
			continue
		}
		groups = append(groups, Group{Kind: KindStructural, Members: members(bucket)})
	}
	return groups
}

func (a *Analyzer) allBoilerplate(bucket []*build.Fingerprint) bool {
	for _, fp := range bucket {
		if fp.BoilerplateRatio < a.boilerplateRatio {
			return false
		}
	}
	return true
}

// sizeComparable reports whether the smaller unit is at least tolerance
// times the size of the larger.
func sizeComparable(a, b int, tolerance float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	if a > b {
		a, b = b, a
	}
	return float64(a)/float64(b) >= tolerance
}

func members(bucket []*build.Fingerprint) []Member {
	out := make([]Member, 0, len(bucket))
	for _, fp := range bucket {
		out = append(out, Member{
			Unit:      fp.Unit,
			Module:    fp.Module,
			File:      fp.File,
			StartLine: fp.StartLine,
			EndLine:   fp.EndLine,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].StartLine < out[j].StartLine
	})
	return out
}

func groupFinding(g Group) models.Finding {
	first := g.Members[0]
	severity := models.SeverityWarning
	verb := "duplicated"
	if g.Kind == KindStructural {
		severity = models.SeverityInfo
		verb = "structurally similar"
	}

	names := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		names = append(names, m.Unit)
	}

	f := models.Finding{
		Kind:     models.KindClone,
		Severity: severity,
		Location: models.Location{
			File:      first.File,
			Module:    first.Module,
			Function:  first.Unit,
			StartLine: first.StartLine,
			EndLine:   first.EndLine,
		},
		Message: fmt.Sprintf("%d %s units: %s", len(g.Members), verb, strings.Join(names, ", ")),
	}
	for _, m := range g.Members[1:] {
		f.Related = append(f.Related, models.Location{
			File:      m.File,
			Module:    m.Module,
			Function:  m.Unit,
			StartLine: m.StartLine,
			EndLine:   m.EndLine,
		})
	}
	return f
}
