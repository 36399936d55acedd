package build

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/auspex/pkg/parser"
)

// rawImport is one import statement before resolution against the full
// module set.
type rawImport struct {
	target      string   // dotted module text; empty for "from . import x"
	dots        int      // leading dots of a relative import
	names       []string // imported names for from-imports
	line        int
	conditional bool
	isFrom      bool
}

// extractImports collects every import statement in a file, tagging those
// nested inside type-checking-only guards.
func extractImports(result *parser.ParseResult) []rawImport {
	var imports []rawImport
	root := result.Tree.RootNode()

	parser.WalkTyped(root, result.Source, func(node *sitter.Node, nodeType string, source []byte) bool {
		switch nodeType {
		case "import_statement":
			conditional := inTypeCheckingGuard(node, source)
			for _, child := range parser.NamedChildren(node) {
				target := importTargetText(child, source)
				if target == "" {
					continue
				}
				imports = append(imports, rawImport{
					target:      target,
					line:        parser.StartLine(node),
					conditional: conditional,
				})
			}
			return false
		case "import_from_statement":
			imp := rawImport{
				line:        parser.StartLine(node),
				conditional: inTypeCheckingGuard(node, source),
				isFrom:      true,
			}
			moduleName := node.ChildByFieldName("module_name")
			switch {
			case moduleName == nil:
			case moduleName.Type() == "relative_import":
				imp.dots, imp.target = splitRelativeImport(moduleName, source)
			default:
				imp.target = parser.GetNodeText(moduleName, source)
			}
			for _, child := range parser.NamedChildren(node) {
				if moduleName != nil && child.Equal(moduleName) {
					continue
				}
				switch child.Type() {
				case "dotted_name", "identifier":
					imp.names = append(imp.names, parser.GetNodeText(child, source))
				case "aliased_import":
					if n := child.ChildByFieldName("name"); n != nil {
						imp.names = append(imp.names, parser.GetNodeText(n, source))
					}
				case "wildcard_import":
					imp.names = append(imp.names, "*")
				}
			}
			imports = append(imports, imp)
			return false
		}
		return true
	})

	return imports
}

func importTargetText(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "dotted_name":
		return parser.GetNodeText(node, source)
	case "aliased_import":
		if n := node.ChildByFieldName("name"); n != nil {
			return parser.GetNodeText(n, source)
		}
	}
	return ""
}

// splitRelativeImport splits "..pkg.mod" into a dot count and the dotted
// remainder.
func splitRelativeImport(node *sitter.Node, source []byte) (dots int, rest string) {
	text := parser.GetNodeText(node, source)
	for _, r := range text {
		if r != '.' {
			break
		}
		dots++
	}
	return dots, strings.TrimLeft(text, ".")
}

// inTypeCheckingGuard reports whether a node sits inside an if block whose
// condition truth-tests the typing TYPE_CHECKING sentinel, possibly
// combined with other conditions.
func inTypeCheckingGuard(node *sitter.Node, source []byte) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "if_statement" {
			continue
		}
		if cond := p.ChildByFieldName("condition"); cond != nil && mentionsTypeChecking(cond, source) {
			return true
		}
	}
	return false
}

func mentionsTypeChecking(node *sitter.Node, source []byte) bool {
	switch node.Type() {
	case "identifier":
		return parser.GetNodeText(node, source) == "TYPE_CHECKING"
	case "attribute":
		text := parser.GetNodeText(node, source)
		return text == "typing.TYPE_CHECKING" || strings.HasSuffix(text, ".TYPE_CHECKING")
	case "parenthesized_expression":
		for _, c := range parser.NamedChildren(node) {
			if mentionsTypeChecking(c, source) {
				return true
			}
		}
	case "boolean_operator":
		return mentionsTypeChecking(node.ChildByFieldName("left"), source) ||
			mentionsTypeChecking(node.ChildByFieldName("right"), source)
	}
	return false
}

// moduleIDForPath maps a file path to its dotted module identifier
// relative to the project root.
func moduleIDForPath(path, root string) (id string, isInit bool) {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		isInit = true
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		// Project-root __init__ file: fall back to the directory name.
		return filepath.Base(filepath.Dir(path)), true
	}
	return strings.Join(parts, "."), isInit
}

// packageParts returns the dotted path of the package containing a module.
func packageParts(m *Module) []string {
	parts := strings.Split(m.ID, ".")
	if m.IsPackageInit {
		return parts
	}
	if len(parts) == 0 {
		return nil
	}
	return parts[:len(parts)-1]
}

// resolveRelative resolves a relative import against the importing module:
// one level of dots keeps the current package, each further level walks up.
// ok is false when the import escapes the project root.
func resolveRelative(m *Module, dots int, rest string) (string, bool) {
	pkg := packageParts(m)
	up := dots - 1
	if up > len(pkg) {
		return "", false
	}
	base := pkg[:len(pkg)-up]
	switch {
	case rest == "" && len(base) == 0:
		return "", false
	case rest == "":
		return strings.Join(base, "."), true
	case len(base) == 0:
		return rest, true
	default:
		return strings.Join(base, ".") + "." + rest, true
	}
}
