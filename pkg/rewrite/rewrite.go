// Package rewrite prepares the imports of a dependency closure for
// evaluation outside the original build: asset imports become string
// bindings and module specifiers are resolved to loadable paths.
package rewrite

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/closure"
	"github.com/gnana997/propspec/pkg/parser"
)

// DefaultAssetExtensions are the file types neutralized when no list is
// configured.
var DefaultAssetExtensions = []string{".less", ".css", ".sass", ".scss", ".png", ".jpg", ".jpeg", ".svg", ".gif"}

// Options configure a Rewriter.
type Options struct {
	// Alias maps a specifier prefix to an absolute directory.
	Alias map[string]string

	// Overrides maps an exact specifier to its replacement, used verbatim.
	Overrides map[string]string

	// AssetExtensions lists extensions (with leading dot) of files that
	// cannot be evaluated. Nil selects DefaultAssetExtensions.
	AssetExtensions []string
}

// Rewriter applies asset neutralization and specifier resolution to a
// closure. It holds no per-extraction state and is safe for concurrent use.
type Rewriter struct {
	alias     map[string]string
	aliasKeys []string
	overrides map[string]string
	assets    map[string]bool
	logger    *slog.Logger
}

// New creates a Rewriter.
func New(opts Options, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}

	exts := opts.AssetExtensions
	if exts == nil {
		exts = DefaultAssetExtensions
	}
	assets := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		assets[ext] = true
	}

	return &Rewriter{
		alias:     opts.Alias,
		aliasKeys: sortedAliasKeys(opts.Alias),
		overrides: opts.Overrides,
		assets:    assets,
		logger:    logger,
	}
}

// sortedAliasKeys orders keys longest first so `@ui/icons` is tried before
// `@ui`.
func sortedAliasKeys(alias map[string]string) []string {
	keys := make([]string, 0, len(alias))
	for k := range alias {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Apply neutralizes asset imports and resolves the specifiers of the
// remaining imports of c against dir, the directory of the component
// module. Declarations in the closure are left alone.
func (r *Rewriter) Apply(c *closure.Closure, src []byte, dir string) {
	for _, dep := range c.Imports() {
		if r.Neutralize(dep, src) {
			continue
		}
		if dep.Source == nil {
			continue
		}
		spec, ok := parser.StringValue(dep.Source, src)
		if !ok {
			continue
		}

		dep.ResolvedSource = r.ResolveSource(spec, dir)
		dep.Rewritten = dep.ResolvedSource != spec
		if dep.Rewritten {
			r.logger.Debug("rewrote import source",
				"from", spec,
				"to", dep.ResolvedSource)
		}
	}
}

// ResolveSource maps a module specifier to the path the sandbox should
// require. Priority: exact override (verbatim), relative path joined with
// dir, alias prefix, otherwise unchanged.
func (r *Rewriter) ResolveSource(spec, dir string) string {
	if target, ok := r.overrides[spec]; ok {
		return target
	}

	if strings.HasPrefix(spec, ".") {
		return filepath.Join(dir, filepath.FromSlash(spec))
	}

	for _, key := range r.aliasKeys {
		target := r.alias[key]
		if spec == key {
			return target
		}
		if rest, ok := strings.CutPrefix(spec, key+"/"); ok {
			return filepath.Join(target, filepath.FromSlash("./"+rest))
		}
	}

	return spec
}

// ResolveSource resolves spec with a one-off rewriter.
func ResolveSource(spec, dir string, alias, overrides map[string]string) string {
	return New(Options{Alias: alias, Overrides: overrides}, nil).ResolveSource(spec, dir)
}

// IsAsset reports whether a specifier names a non-executable file.
func (r *Rewriter) IsAsset(spec string) bool {
	return r.assets[strings.ToLower(filepath.Ext(spec))]
}

// Neutralize replaces a default-only import (or a single-name require) of an
// asset with `var name = "<specifier>";`. It reports whether the dependency
// was replaced.
func (r *Rewriter) Neutralize(dep *closure.Dependency, src []byte) bool {
	if dep.Kind != closure.KindImport || dep.Source == nil {
		return false
	}
	spec, ok := parser.StringValue(dep.Source, src)
	if !ok || !r.IsAsset(spec) {
		return false
	}

	name, ok := singleLocalName(dep.Decl, src)
	if !ok {
		return false
	}

	dep.Replacement = "var " + name + " = " + strconv.Quote(spec) + ";"
	r.logger.Debug("neutralized asset import", "name", name, "source", spec)
	return true
}

// singleLocalName returns the local name of `import x from "..."` or
// `const x = require("...")`. Named, namespace and destructured forms are
// rejected: their values come from the module's exports, not its path.
func singleLocalName(decl *ts.Node, src []byte) (string, bool) {
	switch decl.Kind() {
	case "import_statement":
		var clause *ts.Node
		for i := uint(0); i < decl.NamedChildCount(); i++ {
			if c := decl.NamedChild(i); c.Kind() == "import_clause" {
				clause = c
			}
		}
		if clause == nil || clause.NamedChildCount() != 1 {
			return "", false
		}
		id := clause.NamedChild(0)
		if id.Kind() != "identifier" {
			return "", false
		}
		return id.Utf8Text(src), true

	case "lexical_declaration", "variable_declaration":
		if decl.NamedChildCount() != 1 {
			return "", false
		}
		d := decl.NamedChild(0)
		name := d.ChildByFieldName("name")
		value := d.ChildByFieldName("value")
		if name == nil || name.Kind() != "identifier" || value == nil || value.Kind() != "call_expression" {
			return "", false
		}
		return name.Utf8Text(src), true
	}
	return "", false
}
