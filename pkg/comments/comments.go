// Package comments attaches the documentation comments written above the
// keys of a propTypes object literal to the extracted metadata.
package comments

import (
	"strconv"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/parser"
)

// DescriptionKey is the metadata field set by Merge.
const DescriptionKey = "description"

// maxHops bounds how many identifier indirections Collect follows.
const maxHops = 8

// Resolver returns the initializer of a top-level binding, or nil.
type Resolver func(name string) *ts.Node

// Collect maps each key of the schema object literal to the comment block
// directly above it.
//
// A comment on the same line as the previous property belongs to that
// property and is ignored. Consecutive comments form one block; a blank line
// between two comments starts a new block, so only the block closest to the
// key is kept. When value is an identifier, resolve is used to follow it to
// its object literal. Keys are the property names as written; computed and
// spread members are skipped.
func Collect(value *ts.Node, src []byte, resolve Resolver) map[string]string {
	obj := objectLiteral(value, src, resolve)
	out := make(map[string]string)
	if obj == nil {
		return out
	}

	var (
		block []*ts.Node
		prev  *ts.Node
	)
	for i := uint(0); i < obj.NamedChildCount(); i++ {
		child := obj.NamedChild(i)

		if child.Kind() == "comment" {
			if prev != nil && child.StartPosition().Row == prev.EndPosition().Row {
				continue
			}
			if len(block) > 0 && child.StartPosition().Row > block[len(block)-1].EndPosition().Row+1 {
				block = block[:0]
			}
			block = append(block, child)
			continue
		}

		if key, ok := memberKey(child, src); ok && len(block) > 0 {
			out[key] = joinBlock(block, src)
		}
		block = block[:0]
		prev = child
	}
	return out
}

// Merge sets the description of every metadata entry that has a comment and
// is an object. Entries missing from meta are not created.
func Merge(meta map[string]any, comments map[string]string) {
	for key, text := range comments {
		entry, ok := meta[key].(map[string]any)
		if !ok || entry == nil {
			continue
		}
		entry[DescriptionKey] = text
	}
}

func objectLiteral(value *ts.Node, src []byte, resolve Resolver) *ts.Node {
	for hops := 0; value != nil && hops < maxHops; hops++ {
		switch value.Kind() {
		case "object":
			return value
		case "parenthesized_expression", "as_expression", "satisfies_expression":
			value = value.NamedChild(0)
		case "type_assertion":
			// <T>expr
			value = value.NamedChild(value.NamedChildCount() - 1)
		case "identifier":
			if resolve == nil {
				return nil
			}
			value = resolve(value.Utf8Text(src))
		default:
			return nil
		}
	}
	return nil
}

// memberKey returns the static name of an object member.
func memberKey(member *ts.Node, src []byte) (string, bool) {
	var key *ts.Node
	switch member.Kind() {
	case "pair":
		key = member.ChildByFieldName("key")
	case "method_definition":
		key = member.ChildByFieldName("name")
	case "shorthand_property_identifier":
		return member.Utf8Text(src), true
	default:
		return "", false
	}
	if key == nil {
		return "", false
	}

	switch key.Kind() {
	case "property_identifier", "identifier":
		return key.Utf8Text(src), true
	case "string":
		return parser.StringValue(key, src)
	case "number":
		text := key.Utf8Text(src)
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return text, true
	}
	return "", false
}

func joinBlock(block []*ts.Node, src []byte) string {
	parts := make([]string, 0, len(block))
	for _, c := range block {
		if text := Strip(c.Utf8Text(src)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// Strip removes comment markers: `//`, `/*`, `/**`, `*/` and the leading
// `*` of block comment lines.
func Strip(comment string) string {
	if rest, ok := strings.CutPrefix(comment, "//"); ok {
		return strings.TrimSpace(strings.TrimLeft(rest, "/"))
	}

	body := strings.TrimSuffix(strings.TrimPrefix(comment, "/*"), "*/")
	body = strings.TrimLeft(body, "*")

	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		out = append(out, line)
	}

	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
