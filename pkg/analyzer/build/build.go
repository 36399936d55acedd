// Package build parses source files into the shared project representation
// consumed by every analyzer: modules with resolved import edges, per
// function control-flow graphs, and normalized clone fingerprints.
package build

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/auspex/internal/fileproc"
	"github.com/panbanda/auspex/pkg/analyzer"
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/parser"
	"github.com/panbanda/auspex/pkg/source"
)

// Analyzer builds the project representation from source files. A single
// file's syntax error yields a parse-failure finding and excludes that
// file from all downstream graphs; it never fails the whole run.
type Analyzer struct {
	src     source.ContentSource
	root    string
	workers int
}

// Option configures the builder.
type Option func(*Analyzer)

// WithSource sets the content source. Defaults to the filesystem.
func WithSource(src source.ContentSource) Option {
	return func(a *Analyzer) { a.src = src }
}

// WithRoot sets the package root against which module identifiers and
// absolute imports are resolved.
func WithRoot(root string) Option {
	return func(a *Analyzer) { a.root = root }
}

// WithWorkers bounds parse parallelism. Zero picks a CPU-based default.
func WithWorkers(n int) Option {
	return func(a *Analyzer) { a.workers = n }
}

// New creates a builder.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{src: source.NewFilesystem()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close implements analyzer.FileAnalyzer.
func (a *Analyzer) Close() {}

var _ analyzer.FileAnalyzer[*Project] = (*Analyzer)(nil)

// fileResult carries one file's build output across the parallel phase.
type fileResult struct {
	module  *Module
	raws    []rawImport
	failure *models.Finding
}

// Analyze parses all files in parallel and merges them into a Project.
// The returned Project is immutable and safe for concurrent analyzers.
func (a *Analyzer) Analyze(ctx context.Context, files []string) (*Project, error) {
	tracker := analyzer.TrackerFromContext(ctx)
	if tracker != nil {
		tracker.Add(len(files))
	}

	results, procErrs := fileproc.MapSources(ctx, a.src, files, a.workers,
		func(p *parser.Parser, path string, content []byte) (fileResult, error) {
			return a.buildFile(p, path, content)
		},
		func() {
			if tracker != nil {
				tracker.Tick("parse")
			}
		})

	// MapSources returns results in completion order; sort by path so the
	// winner of a module-identifier collision never depends on goroutine
	// scheduling.
	sort.Slice(results, func(i, j int) bool {
		return resultPath(results[i]) < resultPath(results[j])
	})

	project := &Project{ByID: make(map[string]*Module)}
	raws := make(map[string][]rawImport)
	for _, r := range results {
		if r.failure != nil {
			project.Findings = append(project.Findings, *r.failure)
			continue
		}
		if r.module == nil {
			continue
		}
		if _, dup := project.ByID[r.module.ID]; dup {
			// Two files mapping to one identifier; keep the first, the
			// duplicate surfaces as a resolution failure.
			project.Findings = append(project.Findings, models.Finding{
				Kind:     models.KindResolutionFailure,
				Severity: models.SeverityWarning,
				Location: models.Location{File: r.module.Path, Module: r.module.ID, StartLine: 1, EndLine: 1},
				Message:  fmt.Sprintf("module identifier %q already defined by %s", r.module.ID, project.ByID[r.module.ID].Path),
			})
			continue
		}
		project.ByID[r.module.ID] = r.module
		project.Modules = append(project.Modules, r.module)
		raws[r.module.ID] = r.raws
	}

	sort.Slice(project.Modules, func(i, j int) bool {
		return project.Modules[i].ID < project.Modules[j].ID
	})

	for _, m := range project.Modules {
		a.resolveImports(project, m, raws[m.ID])
	}

	// Unreadable files become parse failures too; ctx errors abort.
	if procErrs != nil {
		for _, pe := range procErrs.Errors {
			if ctx.Err() != nil {
				return project, ctx.Err()
			}
			project.Findings = append(project.Findings, models.Finding{
				Kind:     models.KindParseFailure,
				Severity: models.SeverityWarning,
				Location: models.Location{File: pe.Path, StartLine: 1, EndLine: 1},
				Message:  pe.Err.Error(),
			})
		}
	}

	models.SortFindings(project.Findings)
	return project, nil
}

func resultPath(r fileResult) string {
	if r.module != nil {
		return r.module.Path
	}
	if r.failure != nil {
		return r.failure.Location.File
	}
	return ""
}

// buildFile parses one file and extracts every derived view.
func (a *Analyzer) buildFile(p *parser.Parser, path string, content []byte) (fileResult, error) {
	result, err := p.Parse(content, path)
	if err != nil {
		return fileResult{}, err
	}
	if result.HasSyntaxError() {
		return fileResult{failure: &models.Finding{
			Kind:     models.KindParseFailure,
			Severity: models.SeverityWarning,
			Location: models.Location{File: path, StartLine: 1, EndLine: 1},
			Message:  "syntax error, file excluded from analysis",
		}}, nil
	}

	id, isInit := moduleIDForPath(path, a.root)
	m := &Module{ID: id, Path: path, IsPackageInit: isInit}

	for _, fn := range parser.ModuleFunctions(result) {
		m.Functions = append(m.Functions, buildFunction(&fn, "", m.ID, path, result.Source))
	}
	for _, cls := range parser.GetClasses(result) {
		c := &Class{
			Name:       cls.Name,
			StartLine:  cls.StartLine,
			EndLine:    cls.EndLine,
			Bases:      cls.Bases,
			Decorators: cls.Decorators,
		}
		for i := range cls.Methods {
			c.Methods = append(c.Methods, buildFunction(&cls.Methods[i], cls.Name, m.ID, path, result.Source))
		}
		c.Fingerprint = fingerprintClass(&cls, m.ID, path, result.Source)
		if isDataModelClass(&cls) && c.Fingerprint.BoilerplateRatio < 1 {
			// Declaration scaffolding of recognized record classes counts
			// as boilerplate even when not every field is annotated.
			c.Fingerprint.BoilerplateRatio = (c.Fingerprint.BoilerplateRatio + 1) / 2
		}
		m.Classes = append(m.Classes, c)
	}

	m.TopLevelVars, m.ExportList = moduleLevelNames(result)

	return fileResult{module: m, raws: extractImports(result)}, nil
}

func buildFunction(fn *parser.FunctionNode, class, moduleID, path string, src []byte) *Function {
	f := &Function{
		Name:       fn.Name,
		Class:      class,
		StartLine:  fn.StartLine,
		EndLine:    fn.EndLine,
		Params:     fn.Params,
		Decorators: fn.Decorators,
	}
	f.CFG = BuildCFG(f.QualifiedName(), fn.Body, src)
	f.Fingerprint = fingerprintFunction(fn, class, moduleID, path, src)
	extractBodyFacts(f, fn.Body, src)
	return f
}

// extractBodyFacts records self-attribute accesses, global declarations,
// call sites and loaded names in one walk over the body.
func extractBodyFacts(f *Function, body *sitter.Node, src []byte) {
	selfAttrs := map[string]bool{}
	loaded := map[string]bool{}

	parser.WalkTyped(body, src, func(node *sitter.Node, nodeType string, source []byte) bool {
		switch nodeType {
		case "attribute":
			obj := node.ChildByFieldName("object")
			attr := node.ChildByFieldName("attribute")
			if obj != nil && obj.Type() == "identifier" && parser.GetNodeText(obj, source) == "self" {
				selfAttrs[parser.GetNodeText(attr, source)] = true
			}
		case "global_statement":
			for _, c := range parser.NamedChildren(node) {
				f.GlobalDecls = append(f.GlobalDecls, parser.GetNodeText(c, source))
			}
		case "call":
			callee := parser.GetNodeText(node.ChildByFieldName("function"), source)
			f.Calls = append(f.Calls, CallRef{Name: callee, Line: parser.StartLine(node)})
		case "identifier":
			// Only bare reads: attribute members are handled above.
			if p := node.Parent(); p == nil || p.Type() != "attribute" || p.ChildByFieldName("object").Equal(node) {
				loaded[parser.GetNodeText(node, source)] = true
			}
		case "function_definition", "class_definition":
			// Nested definitions keep their own facts.
			return false
		}
		return true
	})

	f.SelfAttrs = sortedKeys(selfAttrs)
	f.LoadedNames = sortedKeys(loaded)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// moduleLevelNames collects module-level variable assignments and the
// declared __all__ export list.
func moduleLevelNames(result *parser.ParseResult) (vars []string, exports []string) {
	hasAll := false
	for _, stmt := range parser.NamedChildren(result.Tree.RootNode()) {
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			continue
		}
		name := parser.GetNodeText(left, result.Source)
		if name == "__all__" {
			hasAll = true
			exports = append(exports, stringElements(assign.ChildByFieldName("right"), result.Source)...)
			continue
		}
		if strings.HasPrefix(name, "__") || isAllCaps(name) {
			continue
		}
		vars = append(vars, name)
	}
	if !hasAll {
		exports = nil
	}
	return vars, exports
}

func stringElements(node *sitter.Node, src []byte) []string {
	if node == nil {
		return nil
	}
	var out []string
	switch node.Type() {
	case "list", "tuple", "set":
		for _, el := range parser.NamedChildren(node) {
			if el.Type() == "string" {
				out = append(out, strings.Trim(parser.GetNodeText(el, src), `"'`))
			}
		}
	}
	return out
}

func isAllCaps(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// resolveImports maps raw imports to edges against the full module set.
// Unresolved non-stdlib targets surface as resolution-failure findings.
func (a *Analyzer) resolveImports(p *Project, m *Module, raws []rawImport) {
	type edgeKey struct{ to string }
	merged := make(map[edgeKey]*ImportEdge)
	var order []edgeKey

	addEdge := func(to string, external, conditional, reexport bool, line int) {
		key := edgeKey{to}
		if e, ok := merged[key]; ok {
			// An unconditional import anywhere wins over a guarded one.
			e.Conditional = e.Conditional && conditional
			e.Reexport = e.Reexport || reexport
			return
		}
		merged[key] = &ImportEdge{
			From:        m.ID,
			To:          to,
			External:    external,
			Conditional: conditional,
			Reexport:    reexport,
			Line:        line,
		}
		order = append(order, key)
	}

	for _, raw := range raws {
		target := raw.target
		if raw.dots > 0 {
			resolved, ok := resolveRelative(m, raw.dots, raw.target)
			if !ok {
				p.Findings = append(p.Findings, models.Finding{
					Kind:     models.KindResolutionFailure,
					Severity: models.SeverityInfo,
					Location: models.Location{File: m.Path, Module: m.ID, StartLine: raw.line, EndLine: raw.line},
					Message:  fmt.Sprintf("relative import escapes the project root (%d levels up)", raw.dots),
				})
				continue
			}
			target = resolved
		}
		if target == "" && len(raw.names) == 0 {
			continue
		}

		reexport := m.IsPackageInit && raw.isFrom && len(raw.names) > 0 &&
			(m.ExportList == nil || anyExported(raw.names, m.ExportList))

		// from X import name resolves to the submodule X.name when one
		// exists, otherwise to X itself.
		resolvedAny := false
		if raw.isFrom {
			for _, name := range raw.names {
				if name == "*" {
					continue
				}
				if sub := target + "." + name; target != "" && p.ByID[sub] != nil {
					addEdge(sub, false, raw.conditional, reexport, raw.line)
					resolvedAny = true
				} else if target == "" && p.ByID[name] != nil {
					addEdge(name, false, raw.conditional, reexport, raw.line)
					resolvedAny = true
				}
			}
		}
		if target == "" {
			continue
		}
		if p.ByID[target] != nil {
			addEdge(target, false, raw.conditional, reexport, raw.line)
			continue
		}
		if resolvedAny {
			continue
		}
		// Longest known prefix: "import a.b.c" depends on a.b when only
		// a.b is a project module.
		if prefix := longestKnownPrefix(p, target); prefix != "" {
			addEdge(prefix, false, raw.conditional, reexport, raw.line)
			continue
		}

		addEdge(target, true, raw.conditional, false, raw.line)
		if !isStdlib(target) {
			p.Findings = append(p.Findings, models.Finding{
				Kind:     models.KindResolutionFailure,
				Severity: models.SeverityInfo,
				Location: models.Location{File: m.Path, Module: m.ID, StartLine: raw.line, EndLine: raw.line},
				Message:  fmt.Sprintf("import %q does not resolve to a project module; treated as external", target),
			})
		}
	}

	for _, key := range order {
		m.Imports = append(m.Imports, *merged[key])
	}
}

func anyExported(names, exportList []string) bool {
	for _, n := range names {
		if n == "*" {
			return true
		}
		for _, e := range exportList {
			if n == e {
				return true
			}
		}
	}
	return false
}

func longestKnownPrefix(p *Project, target string) string {
	parts := strings.Split(target, ".")
	for i := len(parts) - 1; i > 0; i-- {
		prefix := strings.Join(parts[:i], ".")
		if p.ByID[prefix] != nil {
			return prefix
		}
	}
	return ""
}
