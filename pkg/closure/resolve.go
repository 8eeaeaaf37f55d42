package closure

import (
	"sort"
	"strconv"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// Dependency is one Binding included in a closure, together with the edits
// made to it for a single extraction.
type Dependency struct {
	*Binding

	// ResolvedSource is the module specifier after rewriting. Empty until
	// the rewriter runs.
	ResolvedSource string

	// Rewritten is set when ResolvedSource differs from the original.
	Rewritten bool

	// Replacement, when non-empty, is emitted instead of the statement.
	Replacement string
}

// Text returns the statement as it should appear in the synthetic program:
// the replacement if the dependency was neutralized, otherwise the
// declaration text with a rewritten module specifier spliced in.
func (d *Dependency) Text(src []byte) string {
	if d.Replacement != "" {
		return d.Replacement
	}

	text := d.Decl.Utf8Text(src)
	if !d.Rewritten || d.Source == nil {
		return text
	}

	start := d.Decl.StartByte()
	quoted := strconv.Quote(d.ResolvedSource)
	return string(src[start:d.Source.StartByte()]) + quoted + string(src[d.Source.EndByte():d.Decl.EndByte()])
}

// Closure is the ordered set of bindings reachable from the root
// expressions. Dependencies appear in first-discovery order, each at most
// once.
type Closure struct {
	Deps []*Dependency
}

// Len returns the number of dependencies.
func (c *Closure) Len() int {
	return len(c.Deps)
}

// Imports returns the import dependencies in closure order.
func (c *Closure) Imports() []*Dependency {
	var out []*Dependency
	for _, d := range c.Deps {
		if d.Kind == KindImport {
			out = append(out, d)
		}
	}
	return out
}

// Names returns the first bound name of every dependency, in closure order.
func (c *Closure) Names() []string {
	names := make([]string, 0, len(c.Deps))
	for _, d := range c.Deps {
		names = append(names, d.Names[0])
	}
	return names
}

// SourceOrder returns the dependencies sorted by their position in the
// module. Emitting in this order keeps the original evaluation order of the
// statements, which matters for let/const and class bindings.
func (c *Closure) SourceOrder() []*Dependency {
	out := make([]*Dependency, len(c.Deps))
	copy(out, c.Deps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Resolve returns the closure of the free identifiers of roots. Roots are
// scanned in order, so for (schema, defaults) the schema's dependencies come
// first. Nil roots are skipped. Identifiers that no top-level statement
// binds (globals, or names the root binds itself) contribute nothing.
func Resolve(t *Table, roots ...*ts.Node) *Closure {
	c := &Closure{}
	visited := make(map[*Binding]bool)

	var visit func(name string)
	visit = func(name string) {
		b, ok := t.Lookup(name)
		if !ok || visited[b] {
			return
		}
		visited[b] = true
		c.Deps = append(c.Deps, &Dependency{Binding: b})
		for _, next := range t.freeOf(b) {
			visit(next)
		}
	}

	for _, root := range roots {
		if root == nil {
			continue
		}
		for _, name := range FreeIdentifiers(root, t.module.Source) {
			visit(name)
		}
	}
	return c
}
