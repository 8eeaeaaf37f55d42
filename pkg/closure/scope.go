package closure

import (
	"strings"
	"unicode"
	"unicode/utf8"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// Scope is one lexical scope of the free-identifier walk.
type Scope struct {
	Parent *Scope

	// Function is set on function and program scopes, the targets of var
	// hoisting.
	Function bool

	names map[string]struct{}
}

func newScope(parent *Scope, function bool) *Scope {
	return &Scope{Parent: parent, Function: function, names: make(map[string]struct{})}
}

// Declare binds name in this scope.
func (s *Scope) Declare(name string) {
	if name != "" {
		s.names[name] = struct{}{}
	}
}

// Find reports whether name is bound in this scope or any parent.
func (s *Scope) Find(name string) bool {
	for cur := s; cur != nil; cur = cur.Parent {
		if _, ok := cur.names[name]; ok {
			return true
		}
	}
	return false
}

func (s *Scope) functionScope() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Function {
			return cur
		}
	}
	return s
}

// inert lists nodes whose subtrees never reference a value binding: type
// positions, names of properties and labels, and imports.
var inert = map[string]bool{
	"type_annotation":                       true,
	"type_arguments":                        true,
	"type_parameters":                       true,
	"type_query":                            true,
	"type_alias_declaration":                true,
	"interface_declaration":                 true,
	"implements_clause":                     true,
	"ambient_declaration":                   true,
	"method_signature":                      true,
	"abstract_method_signature":             true,
	"function_signature":                    true,
	"index_signature":                       true,
	"property_signature":                    true,
	"call_signature":                        true,
	"construct_signature":                   true,
	"type_predicate_annotation":             true,
	"asserts_annotation":                    true,
	"omitting_type_annotation":              true,
	"adding_type_annotation":                true,
	"opting_type_annotation":                true,
	"import_statement":                      true,
	"jsx_closing_element":                   true,
	"statement_identifier":                  true,
	"property_identifier":                   true,
	"private_property_identifier":           true,
	"shorthand_property_identifier_pattern": true,
}

func skipped(kind string) bool {
	return inert[kind] || strings.HasSuffix(kind, "_type")
}

// walker collects free identifiers in first-occurrence order.
type walker struct {
	src  []byte
	seen map[string]struct{}
	free []string
}

// FreeIdentifiers returns the identifiers node references without binding
// them, in first-occurrence order.
//
// When node is itself a declaration (a top-level const, function or class),
// the names it declares are bound before the walk, so recursive references
// are not reported. Property names, labels and TypeScript type positions are
// not references. JSX element names starting with an upper-case letter are
// references, and any JSX element references React.
func FreeIdentifiers(node *ts.Node, src []byte) []string {
	if node == nil {
		return nil
	}
	w := &walker{src: src, seen: make(map[string]struct{})}
	root := newScope(nil, true)
	w.hoist(node, root)
	w.declareLexical(node, root)
	w.walk(node, root)
	return w.free
}

func (w *walker) reference(name string, sc *Scope) {
	if name == "" || sc.Find(name) {
		return
	}
	if _, ok := w.seen[name]; ok {
		return
	}
	w.seen[name] = struct{}{}
	w.free = append(w.free, name)
}

func (w *walker) text(n *ts.Node) string {
	return n.Utf8Text(w.src)
}

func (w *walker) walkChildren(n *ts.Node, sc *Scope) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		w.walk(n.NamedChild(i), sc)
	}
}

func (w *walker) walk(n *ts.Node, sc *Scope) {
	if n == nil {
		return
	}
	kind := n.Kind()
	if skipped(kind) {
		return
	}

	switch kind {
	case "identifier", "shorthand_property_identifier":
		w.reference(w.text(n), sc)

	case "variable_declarator":
		w.walkPattern(n.ChildByFieldName("name"), sc)
		w.walk(n.ChildByFieldName("value"), sc)

	case "function_declaration", "generator_function_declaration",
		"function_expression", "function", "generator_function",
		"arrow_function", "method_definition":
		w.walkFunction(n, sc)

	case "class_declaration", "abstract_class_declaration", "class":
		inner := sc
		if kind == "class" {
			if name := n.ChildByFieldName("name"); name != nil {
				inner = newScope(sc, false)
				inner.Declare(w.text(name))
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			if child.Kind() == "identifier" || child.Kind() == "type_identifier" {
				continue
			}
			w.walk(child, inner)
		}

	case "statement_block":
		block := newScope(sc, false)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			w.declareLexical(n.NamedChild(i), block)
		}
		w.walkChildren(n, block)

	case "switch_body":
		block := newScope(sc, false)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			for j := uint(0); j < c.NamedChildCount(); j++ {
				w.declareLexical(c.NamedChild(j), block)
			}
		}
		w.walkChildren(n, block)

	case "catch_clause":
		inner := newScope(sc, false)
		if param := n.ChildByFieldName("parameter"); param != nil {
			w.declarePattern(param, inner)
			w.walkPattern(param, inner)
		}
		w.walk(n.ChildByFieldName("body"), inner)

	case "for_statement":
		inner := newScope(sc, false)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			w.declareLexical(n.NamedChild(i), inner)
		}
		w.walkChildren(n, inner)

	case "for_in_statement":
		inner := newScope(sc, false)
		left := n.ChildByFieldName("left")
		if declaresLoopVariable(n) {
			w.declarePattern(left, inner)
			w.walkPattern(left, inner)
		} else {
			w.walk(left, sc)
		}
		w.walk(n.ChildByFieldName("right"), sc)
		w.walk(n.ChildByFieldName("body"), inner)

	case "lexical_declaration", "variable_declaration":
		// names were bound by declareLexical / hoist
		w.walkChildren(n, sc)

	case "labeled_statement":
		w.walk(n.ChildByFieldName("body"), sc)

	case "pair":
		if key := n.ChildByFieldName("key"); key != nil && key.Kind() == "computed_property_name" {
			w.walk(key, sc)
		}
		w.walk(n.ChildByFieldName("value"), sc)

	case "member_expression":
		w.walk(n.ChildByFieldName("object"), sc)

	case "jsx_opening_element", "jsx_self_closing_element":
		w.reference("React", sc)
		w.walkJSXName(n.ChildByFieldName("name"), sc)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			if child.Kind() == "jsx_attribute" || child.Kind() == "jsx_expression" {
				w.walkChildren(child, sc)
			}
		}

	case "jsx_fragment":
		w.reference("React", sc)
		w.walkChildren(n, sc)

	case "enum_declaration":
		// member names are property_identifiers, initializers are walked
		w.walk(n.ChildByFieldName("body"), sc)

	case "public_field_definition", "field_definition":
		w.walk(n.ChildByFieldName("value"), sc)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if c := n.NamedChild(i); c.Kind() == "decorator" || c.Kind() == "computed_property_name" {
				w.walk(c, sc)
			}
		}

	default:
		w.walkChildren(n, sc)
	}
}

func (w *walker) walkJSXName(name *ts.Node, sc *Scope) {
	if name == nil {
		return
	}
	switch name.Kind() {
	case "identifier":
		text := w.text(name)
		r, _ := utf8.DecodeRuneInString(text)
		if unicode.IsUpper(r) {
			w.reference(text, sc)
		}
	case "member_expression":
		w.walk(name, sc)
	case "nested_identifier":
		if first := name.NamedChild(0); first != nil {
			w.walkJSXName(first, sc)
		}
	}
}

// walkFunction walks parameters and body in a new function scope.
func (w *walker) walkFunction(n *ts.Node, sc *Scope) {
	kind := n.Kind()
	fn := newScope(sc, true)

	if kind != "arrow_function" {
		fn.Declare("arguments")
	}
	if name := n.ChildByFieldName("name"); name != nil {
		switch kind {
		case "function_expression", "function", "generator_function":
			// a function expression's name is visible only inside it
			fn.Declare(w.text(name))
		case "method_definition":
			if name.Kind() == "computed_property_name" {
				w.walk(name, sc)
			}
		}
	}

	if param := n.ChildByFieldName("parameter"); param != nil {
		fn.Declare(w.text(param))
	}
	params := n.ChildByFieldName("parameters")
	if params != nil {
		for i := uint(0); i < params.NamedChildCount(); i++ {
			w.declarePattern(params.NamedChild(i), fn)
		}
		for i := uint(0); i < params.NamedChildCount(); i++ {
			w.walkPattern(params.NamedChild(i), fn)
		}
	}

	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "decorator" {
			w.walk(c, sc)
		}
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	if body.Kind() != "statement_block" {
		w.walk(body, fn)
		return
	}

	w.hoist(body, fn)
	for i := uint(0); i < body.NamedChildCount(); i++ {
		w.declareLexical(body.NamedChild(i), fn)
	}
	w.walkChildren(body, fn)
}

// declareLexical binds the names a statement declares in its block:
// let/const, functions and classes. var is handled by hoist.
func (w *walker) declareLexical(stmt *ts.Node, sc *Scope) {
	if stmt == nil {
		return
	}
	switch stmt.Kind() {
	case "export_statement":
		w.declareLexical(stmt.ChildByFieldName("declaration"), sc)
	case "lexical_declaration":
		for i := uint(0); i < stmt.NamedChildCount(); i++ {
			if d := stmt.NamedChild(i); d.Kind() == "variable_declarator" {
				w.declarePattern(d.ChildByFieldName("name"), sc)
			}
		}
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "enum_declaration":
		if name := stmt.ChildByFieldName("name"); name != nil {
			sc.Declare(w.text(name))
		}
	}
}

// hoist binds every var declared under n into the enclosing function scope
// without descending into nested functions or classes.
func (w *walker) hoist(n *ts.Node, sc *Scope) {
	if n == nil {
		return
	}
	target := sc.functionScope()
	switch n.Kind() {
	case "variable_declaration":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if d := n.NamedChild(i); d.Kind() == "variable_declarator" {
				w.declarePattern(d.ChildByFieldName("name"), target)
			}
		}
		return
	case "for_in_statement":
		if left := n.ChildByFieldName("left"); left != nil && loopKind(n) == "var" {
			w.declarePattern(left, target)
		}
	case "function_declaration", "generator_function_declaration",
		"function_expression", "function", "generator_function",
		"arrow_function", "method_definition",
		"class_declaration", "abstract_class_declaration", "class":
		return
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		w.hoist(n.NamedChild(i), sc)
	}
}

// declarePattern binds every name a binding pattern introduces.
func (w *walker) declarePattern(p *ts.Node, sc *Scope) {
	if p == nil {
		return
	}
	switch p.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		sc.Declare(w.text(p))
	case "object_pattern", "array_pattern":
		for i := uint(0); i < p.NamedChildCount(); i++ {
			w.declarePattern(p.NamedChild(i), sc)
		}
	case "pair_pattern":
		w.declarePattern(p.ChildByFieldName("value"), sc)
	case "assignment_pattern", "object_assignment_pattern":
		w.declarePattern(p.ChildByFieldName("left"), sc)
	case "rest_pattern":
		w.declarePattern(p.NamedChild(0), sc)
	case "required_parameter", "optional_parameter":
		w.declarePattern(p.ChildByFieldName("pattern"), sc)
	}
}

// walkPattern walks the expressions inside a binding pattern: default values
// and computed keys.
func (w *walker) walkPattern(p *ts.Node, sc *Scope) {
	if p == nil {
		return
	}
	switch p.Kind() {
	case "object_pattern", "array_pattern":
		for i := uint(0); i < p.NamedChildCount(); i++ {
			w.walkPattern(p.NamedChild(i), sc)
		}
	case "pair_pattern":
		if key := p.ChildByFieldName("key"); key != nil && key.Kind() == "computed_property_name" {
			w.walk(key, sc)
		}
		w.walkPattern(p.ChildByFieldName("value"), sc)
	case "assignment_pattern", "object_assignment_pattern":
		w.walkPattern(p.ChildByFieldName("left"), sc)
		w.walk(p.ChildByFieldName("right"), sc)
	case "rest_pattern":
		w.walkPattern(p.NamedChild(0), sc)
	case "required_parameter", "optional_parameter":
		w.walkPattern(p.ChildByFieldName("pattern"), sc)
		w.walk(p.ChildByFieldName("value"), sc)
		for i := uint(0); i < p.NamedChildCount(); i++ {
			if c := p.NamedChild(i); c.Kind() == "decorator" {
				w.walk(c, sc)
			}
		}
	case "identifier", "shorthand_property_identifier_pattern", "this":
	default:
		// member expressions in assignment targets are references
		w.walk(p, sc)
	}
}

func loopKind(n *ts.Node) string {
	if kind := n.ChildByFieldName("kind"); kind != nil {
		return kind.Kind()
	}
	return ""
}

func declaresLoopVariable(n *ts.Node) bool {
	switch loopKind(n) {
	case "var", "let", "const":
		return true
	}
	return false
}
