package validator

import (
	"strings"
	"unicode"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/parser"
)

// AttrKind classifies how a JSX attribute value was written.
type AttrKind string

const (
	// AttrString is a string literal, either quoted or inside braces.
	AttrString AttrKind = "string"
	// AttrBoolean is the shorthand form <Button disabled />.
	AttrBoolean AttrKind = "boolean"
	// AttrExpression is any other braced value.
	AttrExpression AttrKind = "expression"
)

// Attr is one attribute of a component element.
type Attr struct {
	Kind AttrKind `json:"kind"`

	// Value holds the literal for AttrString.
	Value string `json:"value,omitempty"`
}

// Usage is one JSX element whose tag names a component.
type Usage struct {
	Component string          `json:"component"`
	Props     map[string]Attr `json:"props"`

	// Spread is set when the element has {...rest} attributes, which may
	// supply any prop.
	Spread      bool `json:"spread,omitempty"`
	HasChildren bool `json:"has_children"`

	// Parent is the nearest enclosing component element. HTML elements
	// are transparent.
	Parent string `json:"parent,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// ExtractUsages walks a parsed tree and returns the component elements in
// document order.
func ExtractUsages(root *ts.Node, source []byte) []Usage {
	w := &usageWalker{source: source}
	w.walk(root)
	return w.usages
}

type usageWalker struct {
	source  []byte
	parents []string
	usages  []Usage
}

func (w *usageWalker) walk(node *ts.Node) {
	switch node.Kind() {
	case "jsx_element":
		w.element(node)
		return
	case "jsx_self_closing_element":
		w.record(node, false)
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		w.walk(node.Child(i))
	}
}

// element records <X ...>children</X> and descends with X as parent.
func (w *usageWalker) element(node *ts.Node) {
	var opening *ts.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child.Kind() == "jsx_opening_element" {
			opening = child
			break
		}
	}

	name := ""
	if opening != nil {
		name = w.record(opening, hasChildren(node, w.source))
	}
	if name != "" {
		w.parents = append(w.parents, name)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if k := child.Kind(); k != "jsx_opening_element" && k != "jsx_closing_element" {
			w.walk(child)
		}
	}

	if name != "" {
		w.parents = w.parents[:len(w.parents)-1]
	}
}

// record appends a usage for an opening or self-closing element that names
// a component, and returns that name. Attribute values that contain JSX are
// walked as well.
func (w *usageWalker) record(tag *ts.Node, children bool) string {
	var name string
	props := make(map[string]Attr)
	spread := false
	var nested []*ts.Node

	for i := uint(0); i < tag.ChildCount(); i++ {
		child := tag.Child(i)
		switch child.Kind() {
		case "identifier", "member_expression", "nested_identifier":
			if name == "" {
				name = child.Utf8Text(w.source)
			}
		case "jsx_attribute":
			attrName, attr, value := w.attribute(child)
			if attrName != "" {
				props[attrName] = attr
			}
			if value != nil {
				nested = append(nested, value)
			}
		case "jsx_expression":
			if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(child.Utf8Text(w.source), "{")), "...") {
				spread = true
			}
		}
	}

	if !isComponentName(name) {
		name = ""
	} else {
		pos := tag.StartPosition()
		if tag.Kind() == "jsx_opening_element" && tag.Parent() != nil {
			pos = tag.Parent().StartPosition()
		}
		w.usages = append(w.usages, Usage{
			Component:   name,
			Props:       props,
			Spread:      spread,
			HasChildren: children,
			Parent:      w.parent(),
			Line:        int(pos.Row) + 1,
			Column:      int(pos.Column) + 1,
		})
	}

	for _, value := range nested {
		w.walk(value)
	}
	return name
}

// attribute returns the name and value of a jsx_attribute, plus the value
// node when it is an expression that may contain further elements.
func (w *usageWalker) attribute(node *ts.Node) (string, Attr, *ts.Node) {
	var name string
	var value *ts.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "property_identifier", "jsx_namespace_name":
			if name == "" {
				name = child.Utf8Text(w.source)
			}
		case "string", "jsx_expression", "jsx_element", "jsx_self_closing_element":
			value = child
		}
	}

	if value == nil {
		return name, Attr{Kind: AttrBoolean}, nil
	}
	if s, ok := parser.StringValue(value, w.source); ok {
		return name, Attr{Kind: AttrString, Value: s}, nil
	}
	if value.Kind() == "jsx_expression" && value.NamedChildCount() == 1 {
		if s, ok := parser.StringValue(value.NamedChild(0), w.source); ok {
			return name, Attr{Kind: AttrString, Value: s}, nil
		}
	}
	return name, Attr{Kind: AttrExpression}, value
}

func (w *usageWalker) parent() string {
	if len(w.parents) == 0 {
		return ""
	}
	return w.parents[len(w.parents)-1]
}

// hasChildren reports whether a jsx_element has element, expression or
// non-blank text children.
func hasChildren(node *ts.Node, source []byte) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "jsx_element", "jsx_self_closing_element", "jsx_expression":
			return true
		case "jsx_text":
			if strings.TrimSpace(child.Utf8Text(source)) != "" {
				return true
			}
		}
	}
	return false
}

// isComponentName follows the JSX convention: lower-case tags are host
// elements, capitalized and dotted tags are components.
func isComponentName(name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(name, ".") {
		return true
	}
	return unicode.IsUpper(rune(name[0]))
}

// lookupName is the name a tag is catalogued under: the last segment of a
// member expression such as Forms.Input.
func lookupName(tag string) string {
	if i := strings.LastIndex(tag, "."); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
