package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Param is one formal parameter of a function definition.
type Param struct {
	Name       string
	Annotation string // type annotation text, empty when absent
	HasDefault bool
}

// FunctionNode represents a parsed function or method.
type FunctionNode struct {
	Name       string
	StartLine  int
	EndLine    int
	Params     []Param
	Decorators []string
	Node       *sitter.Node // the function_definition node
	Body       *sitter.Node
}

// IsConstructor reports whether the function is a class initializer.
func (f *FunctionNode) IsConstructor() bool {
	return f.Name == "__init__"
}

// HasDecorator reports whether any decorator text equals or starts with name.
func (f *FunctionNode) HasDecorator(name string) bool {
	for _, d := range f.Decorators {
		if d == name || (len(d) > len(name) && d[:len(name)] == name && d[len(name)] == '(') {
			return true
		}
	}
	return false
}

// ClassNode represents a parsed class with its immediate methods.
type ClassNode struct {
	Name       string
	StartLine  int
	EndLine    int
	Bases      []string
	Decorators []string
	Methods    []FunctionNode
	Node       *sitter.Node
	Body       *sitter.Node
}

// GetFunctions extracts all function definitions, including methods and
// nested functions, with decorators from enclosing decorated_definition
// wrappers attached.
func GetFunctions(result *ParseResult) []FunctionNode {
	var functions []FunctionNode
	WalkTyped(result.Tree.RootNode(), result.Source, func(node *sitter.Node, nodeType string, source []byte) bool {
		if nodeType == "function_definition" {
			if fn := extractFunction(node, source); fn != nil {
				functions = append(functions, *fn)
			}
		}
		return true
	})
	return functions
}

// GetClasses extracts all top-level and nested class definitions with their
// immediate methods. Does not flatten methods of inner classes into the
// outer class.
func GetClasses(result *ParseResult) []ClassNode {
	var classes []ClassNode
	WalkTyped(result.Tree.RootNode(), result.Source, func(node *sitter.Node, nodeType string, source []byte) bool {
		if nodeType == "class_definition" {
			if cls := extractClass(node, source); cls != nil {
				classes = append(classes, *cls)
			}
		}
		return true
	})
	return classes
}

// ModuleFunctions extracts only functions defined outside any class.
func ModuleFunctions(result *ParseResult) []FunctionNode {
	var functions []FunctionNode
	for _, fn := range GetFunctions(result) {
		if enclosingClass(fn.Node) == nil {
			functions = append(functions, fn)
		}
	}
	return functions
}

func enclosingClass(node *sitter.Node) *sitter.Node {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Type() == "class_definition" {
			return p
		}
	}
	return nil
}

func extractFunction(node *sitter.Node, source []byte) *FunctionNode {
	fn := &FunctionNode{
		StartLine: StartLine(node),
		EndLine:   EndLine(node),
		Node:      node,
		Body:      node.ChildByFieldName("body"),
	}
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		fn.Name = GetNodeText(nameNode, source)
	}
	fn.Params = extractParams(node.ChildByFieldName("parameters"), source)
	fn.Decorators = extractDecorators(node, source)
	if fn.Name == "" || fn.Body == nil {
		return nil
	}
	return fn
}

func extractClass(node *sitter.Node, source []byte) *ClassNode {
	cls := &ClassNode{
		StartLine: StartLine(node),
		EndLine:   EndLine(node),
		Node:      node,
		Body:      node.ChildByFieldName("body"),
	}
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		cls.Name = GetNodeText(nameNode, source)
	}
	if cls.Name == "" || cls.Body == nil {
		return nil
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for _, arg := range NamedChildren(supers) {
			switch arg.Type() {
			case "identifier", "attribute":
				cls.Bases = append(cls.Bases, GetNodeText(arg, source))
			case "subscript":
				// Generic[T] style base; keep the subscripted value.
				if v := arg.ChildByFieldName("value"); v != nil {
					cls.Bases = append(cls.Bases, GetNodeText(v, source))
				}
			}
		}
	}
	cls.Decorators = extractDecorators(node, source)

	// Immediate methods only: function_definition children of the class
	// body, possibly wrapped in decorated_definition.
	for _, child := range NamedChildren(cls.Body) {
		def := child
		if def.Type() == "decorated_definition" {
			def = def.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		if def.Type() != "function_definition" {
			continue
		}
		if fn := extractFunction(def, source); fn != nil {
			cls.Methods = append(cls.Methods, *fn)
		}
	}
	return cls
}

// extractDecorators collects decorator texts from the enclosing
// decorated_definition wrapper, without the leading "@".
func extractDecorators(def *sitter.Node, source []byte) []string {
	parent := def.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return nil
	}
	var decorators []string
	for _, child := range NamedChildren(parent) {
		if child.Type() != "decorator" {
			continue
		}
		for _, expr := range NamedChildren(child) {
			decorators = append(decorators, GetNodeText(expr, source))
		}
	}
	return decorators
}

func extractParams(params *sitter.Node, source []byte) []Param {
	if params == nil {
		return nil
	}
	var out []Param
	for _, p := range NamedChildren(params) {
		switch p.Type() {
		case "identifier":
			out = append(out, Param{Name: GetNodeText(p, source)})
		case "typed_parameter":
			param := Param{}
			// First named child is the parameter pattern, the "type"
			// field carries the annotation.
			if len(NamedChildren(p)) > 0 {
				param.Name = GetNodeText(p.NamedChild(0), source)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				param.Annotation = GetNodeText(t, source)
			}
			out = append(out, param)
		case "default_parameter":
			param := Param{HasDefault: true}
			if n := p.ChildByFieldName("name"); n != nil {
				param.Name = GetNodeText(n, source)
			}
			out = append(out, param)
		case "typed_default_parameter":
			param := Param{HasDefault: true}
			if n := p.ChildByFieldName("name"); n != nil {
				param.Name = GetNodeText(n, source)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				param.Annotation = GetNodeText(t, source)
			}
			out = append(out, param)
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, Param{Name: GetNodeText(p, source)})
		case "keyword_separator", "positional_separator":
			// bare * and / markers, not parameters
		}
	}
	return out
}
