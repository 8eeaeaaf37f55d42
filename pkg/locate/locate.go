// Package locate finds the component class of a parsed module and the
// propTypes / defaultProps declarations attached to it.
package locate

import (
	"errors"
	"fmt"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/parser"
)

// Declaration names looked up on the component class.
const (
	SchemaKey   = "propTypes"
	DefaultsKey = "defaultProps"
)

var (
	// ErrComponentNotFound reports a module without an exported component class.
	ErrComponentNotFound = errors.New("component not found")

	// ErrSchemaNotFound reports a component class without a propTypes declaration.
	ErrSchemaNotFound = errors.New("schema not found")
)

// ExportKind records how the component class was identified.
type ExportKind int

const (
	DefaultExport ExportKind = iota
	NamedExport
	CommonJSExport
	SoleClass
)

func (k ExportKind) String() string {
	switch k {
	case DefaultExport:
		return "default"
	case NamedExport:
		return "named"
	case CommonJSExport:
		return "commonjs"
	default:
		return "sole-class"
	}
}

// Component is the class declaration representing the component.
type Component struct {
	// Node is a class_declaration, abstract_class_declaration or class
	// expression node.
	Node *ts.Node

	// Name is empty for anonymous default-exported classes.
	Name string

	Export ExportKind

	// Statement is the index of the top-level statement holding the class.
	Statement int
}

// Body returns the class_body node.
func (c *Component) Body() *ts.Node {
	return c.Node.ChildByFieldName("body")
}

// classDecl is a top-level class binding found while indexing statements.
type classDecl struct {
	node      *ts.Node
	name      string
	statement int
}

// FindComponent returns the component class of mod.
//
// Candidates are tried in priority order: the default export (a class
// declaration, `export default Name`, `export { Name as default }` or a
// higher-order call wrapping a class name), the first named-exported class,
// `module.exports = Name`, and finally the only class of the module.
func FindComponent(mod *parser.Module) (*Component, error) {
	stmts := mod.Statements()
	src := mod.Source

	classes := make(map[string]classDecl)
	var all []classDecl
	for i, stmt := range stmts {
		decl := stmt
		if stmt.Kind() == "export_statement" {
			if d := stmt.ChildByFieldName("declaration"); d != nil {
				decl = d
			}
		}
		for _, c := range classesIn(decl, src, i) {
			if _, dup := classes[c.name]; !dup && c.name != "" {
				classes[c.name] = c
			}
			all = append(all, c)
		}
	}

	if c := defaultExport(stmts, src, classes); c != nil {
		return c, nil
	}
	if c := namedExport(stmts, src, classes); c != nil {
		return c, nil
	}
	if c := commonJSExport(stmts, src, classes); c != nil {
		return c, nil
	}
	if len(all) == 1 {
		return &Component{Node: all[0].node, Name: all[0].name, Export: SoleClass, Statement: all[0].statement}, nil
	}

	return nil, fmt.Errorf("%w in %s", ErrComponentNotFound, mod.Path)
}

// classesIn returns the classes bound by one (unwrapped) top-level statement:
// class declarations and `const Name = class ...` declarators.
func classesIn(decl *ts.Node, src []byte, index int) []classDecl {
	switch decl.Kind() {
	case "class_declaration", "abstract_class_declaration":
		return []classDecl{{node: decl, name: parser.Identifier(decl.ChildByFieldName("name"), src), statement: index}}
	case "lexical_declaration", "variable_declaration":
		var out []classDecl
		for i := uint(0); i < decl.NamedChildCount(); i++ {
			d := decl.NamedChild(i)
			if d.Kind() != "variable_declarator" {
				continue
			}
			value := d.ChildByFieldName("value")
			if value != nil && value.Kind() == "class" {
				out = append(out, classDecl{node: value, name: parser.Identifier(d.ChildByFieldName("name"), src), statement: index})
			}
		}
		return out
	}
	return nil
}

func isDefaultExport(stmt *ts.Node) bool {
	for i := uint(0); i < stmt.ChildCount(); i++ {
		if stmt.Child(i).Kind() == "default" {
			return true
		}
	}
	return false
}

func defaultExport(stmts []*ts.Node, src []byte, classes map[string]classDecl) *Component {
	for i, stmt := range stmts {
		if stmt.Kind() != "export_statement" {
			continue
		}

		if isDefaultExport(stmt) {
			if decl := stmt.ChildByFieldName("declaration"); decl != nil {
				if k := decl.Kind(); k == "class_declaration" || k == "abstract_class_declaration" {
					return &Component{Node: decl, Name: parser.Identifier(decl.ChildByFieldName("name"), src), Export: DefaultExport, Statement: i}
				}
			}
			if value := stmt.ChildByFieldName("value"); value != nil {
				if value.Kind() == "class" {
					return &Component{Node: value, Name: parser.Identifier(value.ChildByFieldName("name"), src), Export: DefaultExport, Statement: i}
				}
				if c, ok := classReferencedBy(value, src, classes); ok {
					return &Component{Node: c.node, Name: c.name, Export: DefaultExport, Statement: c.statement}
				}
			}
			continue
		}

		for _, spec := range exportSpecifiers(stmt) {
			alias := spec.ChildByFieldName("alias")
			if alias == nil || alias.Utf8Text(src) != "default" {
				continue
			}
			if c, ok := classes[parser.Identifier(spec.ChildByFieldName("name"), src)]; ok {
				return &Component{Node: c.node, Name: c.name, Export: DefaultExport, Statement: c.statement}
			}
		}
	}
	return nil
}

// classReferencedBy resolves `Name` or a wrapping call such as
// `connect(mapState)(Name)` to a top-level class.
func classReferencedBy(node *ts.Node, src []byte, classes map[string]classDecl) (classDecl, bool) {
	switch node.Kind() {
	case "identifier":
		c, ok := classes[node.Utf8Text(src)]
		return c, ok
	case "parenthesized_expression":
		return classReferencedBy(node.NamedChild(0), src, classes)
	case "call_expression":
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := uint(0); i < args.NamedChildCount(); i++ {
				if c, ok := classReferencedBy(args.NamedChild(i), src, classes); ok {
					return c, true
				}
			}
		}
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Kind() == "call_expression" {
			return classReferencedBy(fn, src, classes)
		}
	}
	return classDecl{}, false
}

func namedExport(stmts []*ts.Node, src []byte, classes map[string]classDecl) *Component {
	for i, stmt := range stmts {
		if stmt.Kind() != "export_statement" || isDefaultExport(stmt) {
			continue
		}
		// Re-exports from another module don't declare anything here.
		if stmt.ChildByFieldName("source") != nil {
			continue
		}

		if decl := stmt.ChildByFieldName("declaration"); decl != nil {
			if found := classesIn(decl, src, i); len(found) > 0 {
				return &Component{Node: found[0].node, Name: found[0].name, Export: NamedExport, Statement: i}
			}
			continue
		}

		for _, spec := range exportSpecifiers(stmt) {
			if c, ok := classes[parser.Identifier(spec.ChildByFieldName("name"), src)]; ok {
				return &Component{Node: c.node, Name: c.name, Export: NamedExport, Statement: c.statement}
			}
		}
	}
	return nil
}

func exportSpecifiers(stmt *ts.Node) []*ts.Node {
	var specs []*ts.Node
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		clause := stmt.NamedChild(i)
		if clause.Kind() != "export_clause" {
			continue
		}
		for j := uint(0); j < clause.NamedChildCount(); j++ {
			if spec := clause.NamedChild(j); spec.Kind() == "export_specifier" {
				specs = append(specs, spec)
			}
		}
	}
	return specs
}

func commonJSExport(stmts []*ts.Node, src []byte, classes map[string]classDecl) *Component {
	for i, stmt := range stmts {
		assign := assignment(stmt)
		if assign == nil {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Utf8Text(src) != "module.exports" {
			continue
		}
		right := assign.ChildByFieldName("right")
		if right.Kind() == "class" {
			return &Component{Node: right, Name: parser.Identifier(right.ChildByFieldName("name"), src), Export: CommonJSExport, Statement: i}
		}
		if c, ok := classReferencedBy(right, src, classes); ok {
			return &Component{Node: c.node, Name: c.name, Export: CommonJSExport, Statement: c.statement}
		}
	}
	return nil
}

// assignment returns the assignment_expression of an expression statement.
func assignment(stmt *ts.Node) *ts.Node {
	if stmt.Kind() != "expression_statement" {
		return nil
	}
	expr := stmt.NamedChild(0)
	if expr == nil || expr.Kind() != "assignment_expression" {
		return nil
	}
	return expr
}
