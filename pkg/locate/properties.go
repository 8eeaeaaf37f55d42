package locate

import (
	"fmt"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/parser"
)

// PropertyKind records where a declaration was found.
type PropertyKind int

const (
	// ClassField is a class member: `static propTypes = {...}`.
	ClassField PropertyKind = iota
	// Assignment is a top-level `Name.propTypes = {...}` statement.
	Assignment
	// Synthesized stands in for a defaults declaration the source lacks.
	Synthesized
)

// Property is one target declaration of the component.
type Property struct {
	Key string

	// Node is the field_definition / public_field_definition member or the
	// assignment statement. Nil when synthesized.
	Node *ts.Node

	// Value is the initializer expression. Nil when synthesized, which
	// stands for an empty object literal.
	Value *ts.Node

	Static bool
	Kind   PropertyKind
}

// Synthesized reports whether the property has no source declaration.
func (p *Property) Synthesized() bool {
	return p.Kind == Synthesized
}

// FindProperties returns the schema and defaults declarations of comp.
//
// Class fields are preferred, static over instance; a top-level
// `Name.propTypes = ...` assignment is used when the class body has none. A
// missing schema is ErrSchemaNotFound. A missing defaults declaration is
// synthesized as an empty object so the evaluated program always binds both
// values.
func FindProperties(mod *parser.Module, comp *Component) (schema, defaults *Property, err error) {
	schema = classField(comp, mod.Source, SchemaKey)
	if schema == nil {
		schema = staticAssignment(mod, comp, SchemaKey)
	}
	if schema == nil {
		name := comp.Name
		if name == "" {
			name = "default export"
		}
		return nil, nil, fmt.Errorf("%w: class %s in %s", ErrSchemaNotFound, name, mod.Path)
	}

	defaults = classField(comp, mod.Source, DefaultsKey)
	if defaults == nil {
		defaults = staticAssignment(mod, comp, DefaultsKey)
	}
	if defaults == nil {
		defaults = &Property{Key: DefaultsKey, Static: true, Kind: Synthesized}
	}

	return schema, defaults, nil
}

func classField(comp *Component, src []byte, key string) *Property {
	body := comp.Body()
	if body == nil {
		return nil
	}

	var instance *Property
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)

		var nameNode *ts.Node
		switch member.Kind() {
		case "field_definition":
			nameNode = member.ChildByFieldName("property")
		case "public_field_definition":
			nameNode = member.ChildByFieldName("name")
		default:
			continue
		}
		if memberName(nameNode, src) != key {
			continue
		}

		value := member.ChildByFieldName("value")
		if value == nil {
			// `static propTypes;` declares without a value
			continue
		}

		prop := &Property{Key: key, Node: member, Value: value, Static: hasStatic(member), Kind: ClassField}
		if prop.Static {
			return prop
		}
		if instance == nil {
			instance = prop
		}
	}
	return instance
}

func memberName(node *ts.Node, src []byte) string {
	if node == nil {
		return ""
	}
	if s, ok := parser.StringValue(node, src); ok {
		return s
	}
	return parser.Identifier(node, src)
}

func hasStatic(member *ts.Node) bool {
	for i := uint(0); i < member.ChildCount(); i++ {
		if member.Child(i).Kind() == "static" {
			return true
		}
	}
	return false
}

// staticAssignment finds `Name.key = value` after the class declaration.
func staticAssignment(mod *parser.Module, comp *Component, key string) *Property {
	if comp.Name == "" {
		return nil
	}
	stmts := mod.Statements()
	for i := comp.Statement + 1; i < len(stmts); i++ {
		assign := assignment(stmts[i])
		if assign == nil {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Kind() != "member_expression" {
			continue
		}
		object := left.ChildByFieldName("object")
		property := left.ChildByFieldName("property")
		if object == nil || property == nil {
			continue
		}
		if object.Utf8Text(mod.Source) == comp.Name && property.Utf8Text(mod.Source) == key {
			return &Property{Key: key, Node: stmts[i], Value: assign.ChildByFieldName("right"), Static: true, Kind: Assignment}
		}
	}
	return nil
}
