// Package di flags constructor and method shapes that defeat dependency
// injection: concrete parameter types, too many injected parameters,
// collaborators built inside the constructor, reads of module-level
// mutable state, and service-locator lookups.
package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/parser"
)

// Analyzer runs the anti-pattern checks over a built project.
type Analyzer struct {
	maxConstructorParams int
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithMaxConstructorParams sets the injected-parameter count above which
// a constructor is flagged. The boundary is inclusive: exactly the limit
// is acceptable.
func WithMaxConstructorParams(n int) Option {
	return func(a *Analyzer) { a.maxConstructorParams = n }
}

// New creates a DI anti-pattern analyzer with default thresholds.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{maxConstructorParams: 5}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze reports every anti-pattern instance. Checks are independent, so
// one class can accumulate several findings.
func (a *Analyzer) Analyze(ctx context.Context, project *build.Project) ([]models.Finding, error) {
	var out []models.Finding
	for _, m := range project.Modules {
		globals := make(map[string]bool, len(m.TopLevelVars))
		for _, v := range m.TopLevelVars {
			globals[v] = true
		}
		for _, cls := range m.Classes {
			if ctor := cls.Constructor(); ctor != nil {
				out = append(out, a.checkConcreteParams(m, cls, ctor)...)
				out = append(out, a.checkOverInjection(m, cls, ctor)...)
				out = append(out, a.checkInternalConstruction(m, cls, ctor)...)
			}
			for _, method := range cls.Methods {
				if method.IsStatic() {
					continue
				}
				out = append(out, a.checkGlobalState(m, method, globals)...)
				out = append(out, a.checkServiceLocator(m, method)...)
			}
		}
	}
	models.SortFindings(out)
	return out, ctx.Err()
}

func (a *Analyzer) checkConcreteParams(m *build.Module, cls *build.Class, ctor *build.Function) []models.Finding {
	var out []models.Finding
	for _, p := range injectedParams(ctor) {
		if p.Annotation == "" {
			continue
		}
		if !isConcreteType(p.Annotation) {
			continue
		}
		out = append(out, models.Finding{
			Kind:     models.KindDIAntiPattern,
			Severity: models.SeverityInfo,
			Location: location(m, ctor),
			Message: fmt.Sprintf("constructor of %s takes %q as concrete type %s; depend on an abstraction instead",
				cls.Name, p.Name, p.Annotation),
		})
	}
	return out
}

func (a *Analyzer) checkOverInjection(m *build.Module, cls *build.Class, ctor *build.Function) []models.Finding {
	injected := len(injectedParams(ctor))
	if injected <= a.maxConstructorParams {
		return nil
	}
	return []models.Finding{{
		Kind:     models.KindDIAntiPattern,
		Severity: models.SeverityWarning,
		Location: location(m, ctor),
		Message: fmt.Sprintf("constructor of %s takes %d parameters (limit %d); the class likely has too many responsibilities",
			cls.Name, injected, a.maxConstructorParams),
	}}
}

func (a *Analyzer) checkInternalConstruction(m *build.Module, cls *build.Class, ctor *build.Function) []models.Finding {
	var out []models.Finding
	for _, call := range ctor.Calls {
		name := lastSegment(call.Name)
		if !looksLikeClassName(name) || isExceptionName(name) {
			continue
		}
		if name == cls.Name {
			continue
		}
		loc := location(m, ctor)
		loc.StartLine = call.Line
		loc.EndLine = call.Line
		out = append(out, models.Finding{
			Kind:     models.KindDIAntiPattern,
			Severity: models.SeverityWarning,
			Location: loc,
			Message: fmt.Sprintf("constructor of %s builds %s internally; inject it as a parameter instead",
				cls.Name, name),
		})
	}
	return out
}

func (a *Analyzer) checkGlobalState(m *build.Module, fn *build.Function, globals map[string]bool) []models.Finding {
	var out []models.Finding
	for _, g := range fn.GlobalDecls {
		out = append(out, models.Finding{
			Kind:     models.KindDIAntiPattern,
			Severity: models.SeverityWarning,
			Location: location(m, fn),
			Message:  fmt.Sprintf("%s writes module-level state %q through a global declaration", fn.QualifiedName(), g),
		})
	}
	declared := make(map[string]bool, len(fn.GlobalDecls))
	for _, g := range fn.GlobalDecls {
		declared[g] = true
	}
	for _, name := range fn.LoadedNames {
		if !globals[name] || declared[name] {
			continue
		}
		out = append(out, models.Finding{
			Kind:     models.KindDIAntiPattern,
			Severity: models.SeverityWarning,
			Location: location(m, fn),
			Message:  fmt.Sprintf("%s reads module-level mutable state %q", fn.QualifiedName(), name),
		})
	}
	return out
}

func (a *Analyzer) checkServiceLocator(m *build.Module, fn *build.Function) []models.Finding {
	var out []models.Finding
	for _, call := range fn.Calls {
		if !isLocatorCall(call.Name) {
			continue
		}
		loc := location(m, fn)
		loc.StartLine = call.Line
		loc.EndLine = call.Line
		out = append(out, models.Finding{
			Kind:     models.KindDIAntiPattern,
			Severity: models.SeverityWarning,
			Location: loc,
			Message: fmt.Sprintf("%s resolves a dependency through %s; inject the dependency instead",
				fn.QualifiedName(), call.Name),
		})
	}
	return out
}

// injectedParams drops the receiver and variadic catch-alls.
func injectedParams(fn *build.Function) []parser.Param {
	var out []parser.Param
	for _, p := range fn.Params {
		if p.Name == "self" || p.Name == "cls" {
			continue
		}
		if strings.HasPrefix(p.Name, "*") {
			continue
		}
		out = append(out, p)
	}
	return out
}

func location(m *build.Module, fn *build.Function) models.Location {
	return models.Location{
		File:      m.Path,
		Module:    m.ID,
		Function:  fn.QualifiedName(),
		StartLine: fn.StartLine,
		EndLine:   fn.EndLine,
	}
}

func lastSegment(dotted string) string {
	if i := strings.LastIndex(dotted, "."); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}
