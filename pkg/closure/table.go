// Package closure computes the dependency closure of the propTypes and
// defaultProps expressions of a component module: the top-level imports and
// declarations a standalone program needs to evaluate them.
package closure

import (
	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/parser"
)

// Kind distinguishes imports from local declarations.
type Kind int

const (
	// KindImport is an import statement or `const x = require("...")`.
	KindImport Kind = iota
	// KindDeclaration is a top-level var/let/const, function, class or enum.
	KindDeclaration
)

func (k Kind) String() string {
	if k == KindImport {
		return "import"
	}
	return "declaration"
}

// Binding is one top-level statement that binds names in module scope.
// Bindings are immutable; per-extraction edits live on Dependency.
type Binding struct {
	Kind Kind

	// Names are the local names bound by the statement.
	Names []string

	// Statement is the top-level statement as written.
	Statement *ts.Node

	// Decl is Statement without an `export` wrapper.
	Decl *ts.Node

	// Source is the module specifier string node of an import, nil for
	// declarations and dynamic requires.
	Source *ts.Node

	// Index is the statement's position among the module's statements.
	Index int
}

// Table maps module-scope names to the statements that bind them. It is
// built once per module and memoizes the free identifiers of each Binding,
// so resolving a closure visits every statement at most once.
//
// A Table is not safe for concurrent use.
type Table struct {
	module   *parser.Module
	bindings []*Binding
	byName   map[string]*Binding
	free     map[*Binding][]string
}

// NewTable indexes the top-level bindings of mod.
func NewTable(mod *parser.Module) *Table {
	t := &Table{
		module: mod,
		byName: make(map[string]*Binding),
		free:   make(map[*Binding][]string),
	}

	for i, stmt := range mod.Statements() {
		b := t.bind(stmt, i)
		if b == nil || len(b.Names) == 0 {
			continue
		}
		t.bindings = append(t.bindings, b)
		for _, name := range b.Names {
			// first declaration wins, as with a redeclared var
			if _, exists := t.byName[name]; !exists {
				t.byName[name] = b
			}
		}
	}
	return t
}

// Module returns the module the table was built from.
func (t *Table) Module() *parser.Module {
	return t.module
}

// Bindings returns all bindings in source order.
func (t *Table) Bindings() []*Binding {
	return t.bindings
}

// Lookup returns the binding declaring name.
func (t *Table) Lookup(name string) (*Binding, bool) {
	b, ok := t.byName[name]
	return b, ok
}

// Initializer returns the value expression of a top-level
// `const name = <value>` style declarator, or nil when name is bound some
// other way.
func (t *Table) Initializer(name string) *ts.Node {
	b, ok := t.byName[name]
	if !ok || b.Kind != KindDeclaration {
		return nil
	}
	switch b.Decl.Kind() {
	case "lexical_declaration", "variable_declaration":
	default:
		return nil
	}
	for i := uint(0); i < b.Decl.NamedChildCount(); i++ {
		d := b.Decl.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		id := d.ChildByFieldName("name")
		if id != nil && id.Kind() == "identifier" && id.Utf8Text(t.module.Source) == name {
			return d.ChildByFieldName("value")
		}
	}
	return nil
}

// freeOf returns the memoized free identifiers of a binding. Imports have
// none: their names come from another module.
func (t *Table) freeOf(b *Binding) []string {
	if b.Kind == KindImport {
		return nil
	}
	if names, ok := t.free[b]; ok {
		return names
	}
	names := FreeIdentifiers(b.Decl, t.module.Source)
	t.free[b] = names
	return names
}

func (t *Table) bind(stmt *ts.Node, index int) *Binding {
	src := t.module.Source
	decl := stmt
	if stmt.Kind() == "export_statement" {
		decl = stmt.ChildByFieldName("declaration")
		if decl == nil {
			return nil
		}
	}

	b := &Binding{Kind: KindDeclaration, Statement: stmt, Decl: decl, Index: index}

	switch decl.Kind() {
	case "import_statement":
		b.Kind = KindImport
		b.Source = decl.ChildByFieldName("source")
		b.Names = importNames(decl, src)
		if b.Source == nil {
			// TypeScript `import x = require("y")`
			for i := uint(0); i < decl.NamedChildCount(); i++ {
				if c := decl.NamedChild(i); c.Kind() == "import_require_clause" {
					b.Source = c.ChildByFieldName("source")
				}
			}
		}

	case "lexical_declaration", "variable_declaration":
		var declarators []*ts.Node
		for i := uint(0); i < decl.NamedChildCount(); i++ {
			if d := decl.NamedChild(i); d.Kind() == "variable_declarator" {
				declarators = append(declarators, d)
				b.Names = append(b.Names, patternNames(d.ChildByFieldName("name"), src)...)
			}
		}
		if len(declarators) == 1 {
			if source := requireSource(declarators[0].ChildByFieldName("value"), src); source != nil {
				b.Kind = KindImport
				b.Source = source
			}
		}

	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "enum_declaration":
		b.Names = []string{parser.Identifier(decl.ChildByFieldName("name"), src)}

	default:
		return nil
	}

	return b
}

// importNames returns the local names of an import clause: default,
// namespace and named specifiers (their aliases when renamed).
func importNames(stmt *ts.Node, src []byte) []string {
	var names []string
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		clause := stmt.NamedChild(i)
		switch clause.Kind() {
		case "import_clause":
			for j := uint(0); j < clause.NamedChildCount(); j++ {
				part := clause.NamedChild(j)
				switch part.Kind() {
				case "identifier":
					names = append(names, part.Utf8Text(src))
				case "namespace_import":
					if id := part.NamedChild(0); id != nil {
						names = append(names, id.Utf8Text(src))
					}
				case "named_imports":
					for k := uint(0); k < part.NamedChildCount(); k++ {
						spec := part.NamedChild(k)
						if spec.Kind() != "import_specifier" {
							continue
						}
						local := spec.ChildByFieldName("alias")
						if local == nil {
							local = spec.ChildByFieldName("name")
						}
						names = append(names, local.Utf8Text(src))
					}
				}
			}
		case "import_require_clause":
			if id := clause.NamedChild(0); id != nil && id.Kind() == "identifier" {
				names = append(names, id.Utf8Text(src))
			}
		}
	}
	return names
}

// patternNames returns the names bound by a declarator's binding pattern,
// in source order.
func patternNames(p *ts.Node, src []byte) []string {
	var names []string
	collectPatternNames(p, src, &names)
	return names
}

func collectPatternNames(p *ts.Node, src []byte, out *[]string) {
	if p == nil {
		return
	}
	switch p.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		*out = append(*out, p.Utf8Text(src))
	case "object_pattern", "array_pattern":
		for i := uint(0); i < p.NamedChildCount(); i++ {
			collectPatternNames(p.NamedChild(i), src, out)
		}
	case "pair_pattern":
		collectPatternNames(p.ChildByFieldName("value"), src, out)
	case "assignment_pattern", "object_assignment_pattern":
		collectPatternNames(p.ChildByFieldName("left"), src, out)
	case "rest_pattern":
		collectPatternNames(p.NamedChild(0), src, out)
	}
}

// requireSource returns the string argument of `require("x")`, also when
// the call is followed by member accesses such as `require("x").default`.
func requireSource(value *ts.Node, src []byte) *ts.Node {
	for value != nil && value.Kind() == "member_expression" {
		value = value.ChildByFieldName("object")
	}
	if value == nil || value.Kind() != "call_expression" {
		return nil
	}
	fn := value.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "identifier" || fn.Utf8Text(src) != "require" {
		return nil
	}
	args := value.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() != 1 {
		return nil
	}
	arg := args.NamedChild(0)
	if _, ok := parser.StringValue(arg, src); !ok {
		return nil
	}
	return arg
}
