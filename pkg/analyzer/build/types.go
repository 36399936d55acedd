package build

import (
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/parser"
)

// Module is one logical compilation unit: a single source file with a
// resolved dotted identifier. Modules are immutable after the build pass;
// analyzers reference them, never own them.
type Module struct {
	// ID is the resolved dotted module path, e.g. "pkg.sub.mod".
	ID string
	// Path is the file path the module was parsed from.
	Path string
	// IsPackageInit marks package aggregator files (__init__).
	IsPackageInit bool

	Imports   []ImportEdge
	Functions []*Function
	Classes   []*Class

	// TopLevelVars are module-level variable names assigned outside any
	// function or class, excluding dunder and ALL_CAPS constants.
	TopLevelVars []string
	// ExportList is the declared __all__ contents, nil when absent.
	ExportList []string
}

// ImportEdge records one import statement after resolution.
type ImportEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	// External is true when To could not be mapped to a project module.
	// External edges never participate in cycle detection.
	External bool `json:"external,omitempty"`
	// Conditional is true when the import sits inside a type-checking-only
	// guard. Conditional edges are excluded from the dependency graph by
	// default but retained for reporting.
	Conditional bool `json:"conditional,omitempty"`
	// Reexport is true when the imported name is made visible under the
	// importing module's own namespace.
	Reexport bool `json:"reexport,omitempty"`
	Line     int  `json:"line"`
}

// CallRef is one call site inside a function body.
type CallRef struct {
	// Name is the dotted callee text, e.g. "container.get_service".
	Name string
	Line int
}

// Function is one function or method with all views derived during the
// build pass. Method names are qualified as "Class.method".
type Function struct {
	Name      string
	Class     string // empty for module-level functions
	StartLine int
	EndLine   int

	Params     []parser.Param
	Decorators []string

	CFG         *CFG
	Fingerprint *Fingerprint

	// SelfAttrs are instance attributes read or written via self.
	SelfAttrs []string
	// GlobalDecls are names declared with a global statement in the body.
	GlobalDecls []string
	// LoadedNames are bare identifiers read in the body, deduplicated.
	LoadedNames []string
	// Calls are call sites with dotted callee names.
	Calls []CallRef
}

// QualifiedName returns Class.Name for methods, Name otherwise.
func (f *Function) QualifiedName() string {
	if f.Class != "" {
		return f.Class + "." + f.Name
	}
	return f.Name
}

// IsStatic reports whether the function is a @staticmethod.
func (f *Function) IsStatic() bool { return hasDecorator(f.Decorators, "staticmethod") }

// IsClassMethod reports whether the function is a @classmethod.
func (f *Function) IsClassMethod() bool { return hasDecorator(f.Decorators, "classmethod") }

// IsProperty reports whether the function is a property accessor.
func (f *Function) IsProperty() bool {
	for _, d := range f.Decorators {
		if d == "property" || d == "cached_property" || d == "functools.cached_property" {
			return true
		}
		// setter/deleter accessors: "x.setter", "x.deleter"
		if len(d) > 7 && (d[len(d)-7:] == ".setter" || d[len(d)-8:] == ".deleter") {
			return true
		}
	}
	return false
}

func hasDecorator(decorators []string, name string) bool {
	for _, d := range decorators {
		if d == name {
			return true
		}
	}
	return false
}

// Class is one class definition with its immediate methods.
type Class struct {
	Name       string
	StartLine  int
	EndLine    int
	Bases      []string
	Decorators []string
	Methods    []*Function

	// Fingerprint covers the class declaration body (field declarations
	// and the like); method bodies carry their own fingerprints.
	Fingerprint *Fingerprint
}

// Constructor returns the __init__ method, or nil.
func (c *Class) Constructor() *Function {
	for _, m := range c.Methods {
		if m.Name == "__init__" {
			return m
		}
	}
	return nil
}

// Project is the complete, merged view of all built modules. It is the
// synchronization barrier output: graph-level analyzers run only over a
// finished Project.
type Project struct {
	// Modules is sorted by ID for deterministic traversal.
	Modules []*Module
	// ByID indexes Modules by identifier.
	ByID map[string]*Module
	// Findings holds parse and resolution failures surfaced during the
	// build pass.
	Findings []models.Finding
}

// Fingerprints returns every clone fingerprint in the project in module
// order.
func (p *Project) Fingerprints() []*Fingerprint {
	var out []*Fingerprint
	for _, m := range p.Modules {
		for _, fn := range m.Functions {
			if fn.Fingerprint != nil {
				out = append(out, fn.Fingerprint)
			}
		}
		for _, cls := range m.Classes {
			if cls.Fingerprint != nil {
				out = append(out, cls.Fingerprint)
			}
			for _, method := range cls.Methods {
				if method.Fingerprint != nil {
					out = append(out, method.Fingerprint)
				}
			}
		}
	}
	return out
}

// AllFunctions returns every function and method in the project.
func (p *Project) AllFunctions() []*Function {
	var out []*Function
	for _, m := range p.Modules {
		out = append(out, m.Functions...)
		for _, cls := range m.Classes {
			out = append(out, cls.Methods...)
		}
	}
	return out
}
