// Package deadcode finds statements no execution path can reach, by
// forward reachability over each function's control-flow graph, plus
// except clauses shadowed by an earlier handler for a broader type.
package deadcode

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
)

// Analyzer detects unreachable code in a built project.
type Analyzer struct{}

// New creates a dead-code analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze walks every function's CFG and reports unreachable spans and
// shadowed exception handlers.
func (a *Analyzer) Analyze(ctx context.Context, project *build.Project) ([]models.Finding, error) {
	var out []models.Finding
	for _, m := range project.Modules {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, fn := range m.Functions {
			out = append(out, analyzeFunction(m, fn)...)
		}
		for _, cls := range m.Classes {
			for _, method := range cls.Methods {
				out = append(out, analyzeFunction(m, method)...)
			}
		}
	}
	models.SortFindings(out)
	return out, nil
}

func analyzeFunction(m *build.Module, fn *build.Function) []models.Finding {
	if fn.CFG == nil {
		return nil
	}
	var out []models.Finding
	for _, span := range deadSpans(fn.CFG) {
		out = append(out, models.Finding{
			Kind:     models.KindDeadCode,
			Severity: reasonSeverity(span.Reason),
			Location: models.Location{
				File:      m.Path,
				Module:    m.ID,
				Function:  fn.QualifiedName(),
				StartLine: span.StartLine,
				EndLine:   span.EndLine,
			},
			Message: fmt.Sprintf("%s in %s", span.Reason, fn.QualifiedName()),
		})
	}
	for _, f := range shadowedHandlers(fn.CFG) {
		f.Location.File = m.Path
		f.Location.Module = m.ID
		f.Location.Function = fn.QualifiedName()
		f.Message = fmt.Sprintf("%s in %s", f.Message, fn.QualifiedName())
		out = append(out, f)
	}
	return out
}

// deadSpans returns the merged line spans of unreachable blocks.
func deadSpans(cfg *build.CFG) []Span {
	reached := reachable(cfg)
	reasons, origins := deadReasons(cfg, reached)

	var spans []Span
	for _, b := range cfg.Blocks {
		if reached.Contains(uint32(b.ID)) {
			continue
		}
		// A finally body runs however the protected region exits, so a
		// block in one is dead only when the cause sits inside the same
		// finally, e.g. statements after a return in the finally itself.
		if b.InFinally {
			origin, ok := origins[b.ID]
			if !ok || !cfg.Block(origin).InFinally {
				continue
			}
		}
		start, end, ok := b.Span()
		if !ok {
			continue
		}
		reason := reasons[b.ID]
		if reason == "" {
			reason = "unreachable code"
		}
		spans = append(spans, Span{StartLine: start, EndLine: end, Reason: reason})
	}
	return mergeSpans(spans)
}

// deadReasons assigns each unreachable block a reason: its own when the
// builder recorded one, otherwise the reason of the unreachable region it
// hangs off. Unreachability is monotonic, so everything downstream of a
// reasoned block shares its cause. The second map traces each reason back
// to the block that seeded it.
func deadReasons(cfg *build.CFG, reached *roaring.Bitmap) (map[int]string, map[int]int) {
	reasons := make(map[int]string)
	origins := make(map[int]int)
	var queue []int
	for _, b := range cfg.Blocks {
		if b.Reason != "" && !reached.Contains(uint32(b.ID)) {
			reasons[b.ID] = b.Reason
			origins[b.ID] = b.ID
			queue = append(queue, b.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range cfg.Block(id).Succs {
			if reached.Contains(uint32(e.To)) {
				continue
			}
			if _, done := reasons[e.To]; done || cfg.Block(e.To).Reason != "" {
				continue
			}
			reasons[e.To] = reasons[id]
			origins[e.To] = origins[id]
			queue = append(queue, e.To)
		}
	}
	return reasons, origins
}

// reachable marks every block reachable from the entry over any edge
// kind, including exception edges.
func reachable(cfg *build.CFG) *roaring.Bitmap {
	seen := roaring.New()
	stack := []int{cfg.Entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Contains(uint32(id)) {
			continue
		}
		seen.Add(uint32(id))
		for _, e := range cfg.Block(id).Succs {
			if !seen.Contains(uint32(e.To)) {
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

// mergeSpans coalesces overlapping or adjacent spans that share a reason.
func mergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].StartLine != spans[j].StartLine {
			return spans[i].StartLine < spans[j].StartLine
		}
		return spans[i].EndLine < spans[j].EndLine
	})
	merged := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		// Tolerate a one-line gap: compound statement keyword lines
		// (else:, elif) carry no statement of their own.
		if s.StartLine <= last.EndLine+2 && s.Reason == last.Reason {
			if s.EndLine > last.EndLine {
				last.EndLine = s.EndLine
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// shadowedHandlers reports except clauses that can never match because an
// earlier clause in the same try already catches every listed type.
func shadowedHandlers(cfg *build.CFG) []models.Finding {
	var out []models.Finding
	for _, chain := range cfg.HandlerChains {
		for i := 1; i < len(chain); i++ {
			later := chain[i]
			shadower := shadowedBy(chain[:i], later)
			if shadower < 0 {
				continue
			}
			caught := "all exceptions"
			if len(later.ExcTypes) > 0 {
				caught = strings.Join(later.ExcTypes, ", ")
			}
			out = append(out, models.Finding{
				Kind:     models.KindDeadCode,
				Severity: models.SeverityWarning,
				Location: models.Location{
					StartLine: later.StartLine,
					EndLine:   later.EndLine,
				},
				Related: []models.Location{{
					StartLine: chain[shadower].StartLine,
					EndLine:   chain[shadower].EndLine,
				}},
				Message: fmt.Sprintf("except clause for %s is shadowed by an earlier broader handler", caught),
			})
		}
	}
	return out
}

// shadowedBy returns the index of the first earlier handler set that
// fully covers later, or -1.
func shadowedBy(earlier []build.Handler, later build.Handler) int {
	laterTypes := later.ExcTypes
	if len(laterTypes) == 0 {
		laterTypes = []string{""}
	}
	for i, h := range earlier {
		earlierTypes := h.ExcTypes
		if len(earlierTypes) == 0 {
			earlierTypes = []string{""}
		}
		all := true
		for _, lt := range laterTypes {
			coveredHere := false
			for _, et := range earlierTypes {
				if covers(et, lt) {
					coveredHere = true
					break
				}
			}
			if !coveredHere {
				all = false
				break
			}
		}
		if all {
			return i
		}
	}
	return -1
}

// reasonSeverity grades a dead span. Code after an explicit control
// transfer is always a mistake; a pruned branch may be a platform guard;
// code after a deliberate infinite loop is often a sentinel.
func reasonSeverity(reason string) models.Severity {
	switch {
	case strings.Contains(reason, "infinite loop"):
		return models.SeverityInfo
	case reason == "unreachable branch":
		return models.SeverityWarning
	default:
		return models.SeverityCritical
	}
}
