package parser

import (
	"errors"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// ErrParse reports source text that could not be parsed (or generated).
var ErrParse = errors.New("parse error")

// Module is one parsed component source file.
//
// The tree is read-only for the rest of the pipeline: later stages build new
// program text from byte ranges of Source instead of editing nodes. Nodes
// obtained from a Module are valid until Close.
type Module struct {
	// Path is the file the source was read from.
	Path string

	// Source is the exact text the tree was parsed from.
	Source []byte

	Language Language
	IsTSX    bool

	tree *ts.Tree
}

// Root returns the program node.
func (m *Module) Root() *ts.Node {
	return m.tree.RootNode()
}

// Statements returns the top-level statements in source order, skipping
// comments.
func (m *Module) Statements() []*ts.Node {
	root := m.Root()
	stmts := make([]*ts.Node, 0, root.NamedChildCount())
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		stmts = append(stmts, child)
	}
	return stmts
}

// Text returns the source text covered by node.
func (m *Module) Text(node *ts.Node) string {
	if node == nil {
		return ""
	}
	return node.Utf8Text(m.Source)
}

// Close releases the underlying tree.
func (m *Module) Close() {
	if m.tree != nil {
		m.tree.Close()
		m.tree = nil
	}
}

// StringValue returns the contents of a string literal node without its
// quotes. Template strings with substitutions are not literals and report
// false.
func StringValue(node *ts.Node, source []byte) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Kind() {
	case "string":
	case "template_string":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if node.NamedChild(i).Kind() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}

	text := node.Utf8Text(source)
	if len(text) < 2 {
		return "", false
	}
	return unescape(text[1 : len(text)-1]), true
}

// unescape handles the escapes that show up in module specifiers and
// object keys. Anything rarer is kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\"`, `"`, "\\`", "`", `\n`, "\n", `\t`, "\t")
	return r.Replace(s)
}

// Identifier returns the name bound by a declaration name node. Class names
// are type_identifier nodes in the TypeScript grammar, identifiers in the
// JavaScript grammar.
func Identifier(node *ts.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "identifier", "type_identifier", "property_identifier", "shorthand_property_identifier":
		return node.Utf8Text(source)
	}
	return ""
}
