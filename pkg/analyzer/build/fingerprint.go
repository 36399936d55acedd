package build

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/zeebo/blake3"

	"github.com/panbanda/auspex/pkg/parser"
)

// Fingerprint is the normalized representation of one function, method or
// class declaration body used by the clone detector. Literal values,
// identifiers and comments are abstracted away; statement kind, nesting
// and operator/call shape are preserved.
type Fingerprint struct {
	Unit   string // qualified name
	Kind   string // "function", "method" or "class"
	Module string
	File   string

	StartLine int
	EndLine   int

	// Statements counts non-boilerplate statements.
	Statements int
	Nodes      int
	Branches   int
	Returns    int

	// ExactHash matches Type-1/2 clones: identical structure after
	// normalization.
	ExactHash uint64
	// CoarseHash matches Type-4 candidates: same high-level operation
	// categories through different control constructs.
	CoarseHash uint64

	// BoilerplateRatio is the fraction of nodes that are data-modeling
	// boilerplate (typed field declarations, schema field calls).
	BoilerplateRatio float64
}

// Location formats the fingerprint's source span.
func (f *Fingerprint) Location() string {
	return fmt.Sprintf("%s:%d-%d", f.File, f.StartLine, f.EndLine)
}

// fingerprintFunction normalizes one function or method body.
func fingerprintFunction(fn *parser.FunctionNode, class, moduleID, file string, source []byte) *Fingerprint {
	kind := "function"
	unit := fn.Name
	if class != "" {
		kind = "method"
		unit = class + "." + fn.Name
	}

	n := newNormalizer(source, fn.Name)
	n.emit(fn.Body, false)

	fp := &Fingerprint{
		Unit:       unit,
		Kind:       kind,
		Module:     moduleID,
		File:       file,
		StartLine:  fn.StartLine,
		EndLine:    fn.EndLine,
		Statements: n.statements,
		Nodes:      n.nodes,
		Branches:   n.branches,
		Returns:    n.returns,
		ExactHash:  xxhash.Sum64String(strings.Join(n.tokens, " ")),
		CoarseHash: coarseHash(n.categories, n.returns),
	}
	if n.nodes > 0 {
		fp.BoilerplateRatio = float64(n.boilerplate) / float64(n.nodes)
	}
	return fp
}

// fingerprintClass normalizes a class declaration body with method bodies
// excluded; methods carry their own fingerprints. Boilerplate field
// declarations are dropped from the token stream so that two unrelated
// record classes sharing only declaration shape do not hash alike.
func fingerprintClass(cls *parser.ClassNode, moduleID, file string, source []byte) *Fingerprint {
	n := newNormalizer(source, cls.Name)
	for _, child := range parser.NamedChildren(cls.Body) {
		if child.Type() == "function_definition" || child.Type() == "decorated_definition" {
			continue
		}
		n.emit(child, true)
	}

	fp := &Fingerprint{
		Unit:       cls.Name,
		Kind:       "class",
		Module:     moduleID,
		File:       file,
		StartLine:  cls.StartLine,
		EndLine:    cls.EndLine,
		Statements: n.statements,
		Nodes:      n.nodes,
		Branches:   n.branches,
		Returns:    n.returns,
		ExactHash:  xxhash.Sum64String(strings.Join(n.tokens, " ")),
		CoarseHash: coarseHash(n.categories, n.returns),
	}
	if n.nodes > 0 {
		fp.BoilerplateRatio = float64(n.boilerplate) / float64(n.nodes)
	}
	return fp
}

// normalizer walks an AST subtree producing a placeholder token stream and
// summary statistics in a single pass.
type normalizer struct {
	source   []byte
	selfName string // enclosing definition's name for recursion detection

	tokens     []string
	idents     map[string]int
	categories map[string]bool

	nodes       int
	statements  int
	branches    int
	returns     int
	boilerplate int
}

func newNormalizer(source []byte, selfName string) *normalizer {
	return &normalizer{
		source:     source,
		selfName:   selfName,
		idents:     make(map[string]int),
		categories: make(map[string]bool),
	}
}

func (n *normalizer) placeholder(name string) string {
	idx, ok := n.idents[name]
	if !ok {
		idx = len(n.idents)
		n.idents[name] = idx
	}
	return fmt.Sprintf("V%d", idx)
}

// emit appends normalized tokens for one subtree. skipBoilerplate drops
// data-modeling declarations from the token stream entirely.
func (n *normalizer) emit(node *sitter.Node, skipBoilerplate bool) {
	if node == nil {
		return
	}
	t := node.Type()
	if t == "comment" {
		return
	}
	n.nodes++

	if isBoilerplateStmt(node, n.source) {
		sub := countNodes(node)
		n.boilerplate += sub
		if skipBoilerplate {
			n.nodes += sub - 1
			return
		}
	}

	n.classify(node, t)

	switch t {
	case "identifier":
		n.tokens = append(n.tokens, n.placeholder(parser.GetNodeText(node, n.source)))
		return
	case "string", "integer", "float", "true", "false", "none":
		n.tokens = append(n.tokens, "LIT")
		return
	case "call":
		arity := 0
		if args := node.ChildByFieldName("arguments"); args != nil {
			arity = int(args.NamedChildCount())
		}
		n.tokens = append(n.tokens, fmt.Sprintf("CALL/%d", arity))
	}

	if node.ChildCount() == 0 {
		// Unnamed leaves are operators, keywords and punctuation; their
		// text is part of the structure.
		n.tokens = append(n.tokens, node.Type())
		return
	}

	if node.NamedChildCount() > 0 && strings.HasSuffix(t, "_statement") || t == "block" ||
		t == "function_definition" || t == "class_definition" {
		n.tokens = append(n.tokens, t)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.IsNamed() {
			n.emit(child, skipBoilerplate)
			continue
		}
		// Operator and keyword tokens.
		n.tokens = append(n.tokens, child.Type())
	}
}

// classify updates statistics and coarse categories for a node.
func (n *normalizer) classify(node *sitter.Node, t string) {
	switch {
	case strings.HasSuffix(t, "_statement") || t == "function_definition" || t == "class_definition":
		n.statements++
	}

	switch t {
	case "if_statement", "elif_clause", "case_clause", "conditional_expression":
		n.branches++
	case "while_statement", "for_statement", "list_comprehension", "set_comprehension",
		"dictionary_comprehension", "generator_expression":
		n.branches++
		n.categories["REDUCE"] = true
	case "return_statement":
		n.returns++
		n.categories["RETURN"] = true
	case "augmented_assignment":
		n.categories["ARITH"] = true
	case "binary_operator":
		if op := node.ChildByFieldName("operator"); op != nil {
			switch op.Type() {
			case "+", "-", "*", "/", "//", "%", "**":
				n.categories["ARITH"] = true
			}
		}
	case "comparison_operator":
		n.categories["COMPARE"] = true
	case "raise_statement":
		n.categories["RAISE"] = true
	case "try_statement":
		n.categories["TRY"] = true
	case "yield":
		n.categories["YIELD"] = true
	case "call":
		callee := parser.GetNodeText(node.ChildByFieldName("function"), n.source)
		if callee == n.selfName || strings.HasSuffix(callee, "."+n.selfName) {
			// Self-recursion is a reduction in disguise.
			n.categories["REDUCE"] = true
		} else {
			n.categories["CALL"] = true
		}
	}
}

// coarseHash folds the category set and return arity into a structural
// signature. Branching is deliberately excluded: an iterative and a
// recursive rendering of the same computation differ in branch scaffolding
// but agree on their operation categories.
func coarseHash(categories map[string]bool, returns int) uint64 {
	keys := make([]string, 0, len(categories))
	for c := range categories {
		keys = append(keys, c)
	}
	sort.Strings(keys)
	hasReturn := 0
	if returns > 0 {
		hasReturn = 1
	}
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s|%d", strings.Join(keys, ","), hasReturn)))
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return h
}

// isBoilerplateStmt recognizes data-modeling declaration statements:
// annotated field declarations, schema field factory calls, docstrings.
func isBoilerplateStmt(node *sitter.Node, source []byte) bool {
	switch node.Type() {
	case "expression_statement":
		if node.NamedChildCount() != 1 {
			return false
		}
		child := node.NamedChild(0)
		switch child.Type() {
		case "string":
			// Docstring.
			return true
		case "assignment":
			return isFieldDeclaration(child, source)
		}
	case "assignment":
		return isFieldDeclaration(node, source)
	}
	return false
}

// isFieldDeclaration reports whether an assignment looks like a typed
// record field: "name: Type" or "name: Type = Field(...)" or
// "name = field(...)".
func isFieldDeclaration(assign *sitter.Node, source []byte) bool {
	hasAnnotation := assign.ChildByFieldName("type") != nil
	right := assign.ChildByFieldName("right")
	if right == nil {
		return hasAnnotation
	}
	if right.Type() == "call" {
		callee := parser.GetNodeText(right.ChildByFieldName("function"), source)
		switch callee {
		case "Field", "field", "attr.ib", "attr.attrib", "attrs.field":
			return true
		}
	}
	return hasAnnotation && isLiteralDefault(right)
}

func isLiteralDefault(node *sitter.Node) bool {
	switch node.Type() {
	case "string", "integer", "float", "true", "false", "none", "list", "dictionary", "tuple", "set":
		return true
	}
	return false
}

func countNodes(node *sitter.Node) int {
	count := 1
	for i := 0; i < int(node.NamedChildCount()); i++ {
		count += countNodes(node.NamedChild(i))
	}
	return count
}

// isDataModelClass recognizes value-object and schema-validation class
// declarations by decorator or base class.
func isDataModelClass(cls *parser.ClassNode) bool {
	for _, d := range cls.Decorators {
		base, _, _ := strings.Cut(d, "(")
		switch base {
		case "dataclass", "dataclasses.dataclass", "attr.s", "attrs.define", "attr.dataclass", "attrs.frozen":
			return true
		}
	}
	for _, b := range cls.Bases {
		switch b {
		case "BaseModel", "pydantic.BaseModel", "NamedTuple", "typing.NamedTuple", "TypedDict", "typing.TypedDict":
			return true
		}
	}
	return false
}
