// Package cohesion measures how tightly a class's methods belong
// together. Methods are grouped into connected components by the instance
// attributes they touch and the sibling methods they call; a class whose
// methods split into many components is doing several jobs.
package cohesion

import (
	"context"
	"fmt"
	"strings"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
)

// Analyzer computes the LCOM4 connected-component count per class.
type Analyzer struct {
	lowThreshold    int
	mediumThreshold int
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithLowThreshold sets the component count at or below which a class is
// not reported.
func WithLowThreshold(n int) Option {
	return func(a *Analyzer) { a.lowThreshold = n }
}

// WithMediumThreshold sets the component count at or below which a
// reported class is a warning rather than critical.
func WithMediumThreshold(n int) Option {
	return func(a *Analyzer) { a.mediumThreshold = n }
}

// New creates a cohesion analyzer with default thresholds.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		lowThreshold:    2,
		mediumThreshold: 5,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze reports classes whose methods form too many disconnected
// groups.
func (a *Analyzer) Analyze(ctx context.Context, project *build.Project) ([]models.Finding, error) {
	var out []models.Finding
	for _, m := range project.Modules {
		for _, cls := range m.Classes {
			r := measure(cls)
			if r == nil || r.Components <= a.lowThreshold {
				continue
			}
			severity := models.SeverityCritical
			if r.Components <= a.mediumThreshold {
				severity = models.SeverityWarning
			}
			out = append(out, models.Finding{
				Kind:     models.KindLowCohesion,
				Severity: severity,
				Location: models.Location{
					File:      m.Path,
					Module:    m.ID,
					Function:  cls.Name,
					StartLine: cls.StartLine,
					EndLine:   cls.EndLine,
				},
				Message: fmt.Sprintf("class %s has %d unrelated method groups across %d methods",
					cls.Name, r.Components, r.Methods),
			})
		}
	}
	models.SortFindings(out)
	return out, ctx.Err()
}

// measure computes the component count for one class, or nil when the
// class has too few instance methods to measure.
func measure(cls *build.Class) *ClassResult {
	// Static and class methods cannot touch instance state; they never
	// join a component and would only inflate the count.
	methods := make([]*build.Function, 0, len(cls.Methods))
	for _, m := range cls.Methods {
		if m.IsStatic() || m.IsClassMethod() {
			continue
		}
		methods = append(methods, m)
	}
	if len(methods) < 2 {
		return nil
	}

	uf := newUnionFind(len(methods))

	// Methods sharing an instance attribute are related.
	byAttr := make(map[string]int)
	for i, m := range methods {
		for _, attr := range m.SelfAttrs {
			if first, ok := byAttr[attr]; ok {
				uf.union(first, i)
			} else {
				byAttr[attr] = i
			}
		}
	}

	// A method calling a sibling joins its component.
	byName := make(map[string]int, len(methods))
	for i, m := range methods {
		byName[m.Name] = i
	}
	for i, m := range methods {
		for _, call := range m.Calls {
			name, ok := strings.CutPrefix(call.Name, "self.")
			if !ok {
				continue
			}
			if j, known := byName[name]; known {
				uf.union(i, j)
			}
		}
	}

	return &ClassResult{
		Class:      cls.Name,
		Methods:    len(methods),
		Components: uf.components(),
	}
}
