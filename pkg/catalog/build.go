package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/gnana997/propspec/pkg/comments"
	"github.com/gnana997/propspec/pkg/extract"
)

// DefaultCategory holds components found directly in the root directory.
const DefaultCategory = "components"

// BuildConfig configures catalog generation.
type BuildConfig struct {
	// Name defaults to the base name of RootDir.
	Name string

	// RootDir is the scanned directory. Categories and import paths are
	// derived from file paths relative to it. Without it every component
	// lands in DefaultCategory and ImportPath stays empty.
	RootDir string

	// ImportPrefix replaces "./" in import paths, for example
	// "@/components".
	ImportPrefix string

	// Source records what produced the catalog.
	Source string
}

// Build converts extraction results into a catalog named name.
func Build(name string, results []*extract.Result) *Catalog {
	return BuildWithConfig(results, BuildConfig{Name: name})
}

// BuildWithConfig converts extraction results into a catalog. Components
// are sorted by name, then file.
func BuildWithConfig(results []*extract.Result, cfg BuildConfig) *Catalog {
	name := cfg.Name
	if name == "" && cfg.RootDir != "" {
		name = filepath.Base(cfg.RootDir)
	}

	components := make([]Component, 0, len(results))
	categoryComponents := make(map[string][]string)
	for _, res := range results {
		if res == nil {
			continue
		}
		comp := Component{
			Name:       res.Component,
			Category:   computeCategory(res.File, cfg.RootDir),
			FilePath:   res.File,
			ImportPath: computeImportPath(res.File, cfg),
			Export:     res.Export,
			Props:      convertProps(res),
		}
		components = append(components, comp)
		categoryComponents[comp.Category] = append(categoryComponents[comp.Category], comp.Name)
	}

	sort.SliceStable(components, func(i, j int) bool {
		if components[i].Name != components[j].Name {
			return components[i].Name < components[j].Name
		}
		return components[i].FilePath < components[j].FilePath
	})

	return &Catalog{
		Name:       name,
		Version:    Version,
		Source:     cfg.Source,
		Components: components,
		Categories: buildCategories(categoryComponents),
	}
}

// convertProps turns the evaluated descriptors of res into props, in
// declaration order.
func convertProps(res *extract.Result) []Prop {
	props := make([]Prop, 0, len(res.Keys))
	for _, key := range res.Keys {
		value, ok := res.Props[key]
		if !ok {
			continue
		}
		desc, _ := value.(map[string]any)

		prop := Prop{Name: key, Type: typeString(desc)}
		if required, ok := desc["required"].(bool); ok {
			prop.Required = required
		}
		if text, ok := desc[comments.DescriptionKey].(string); ok {
			prop.Description = text
		}
		if def, ok := desc[extract.DefaultValueKey]; ok {
			prop.Default = encode(def)
		}
		if enum, ok := enumValues(desc); ok {
			prop.AllowedValues = enum
		}
		props = append(props, prop)
	}
	return props
}

// typeString renders the type of a prop-types descriptor, for example
// "string", "arrayOf<number>" or "string | number". Values that are not
// descriptors render as "unknown".
func typeString(desc map[string]any) string {
	typ, ok := desc["type"].(map[string]any)
	if !ok {
		return "unknown"
	}
	name, _ := typ["name"].(string)
	if name == "" {
		return "unknown"
	}

	switch name {
	case "union":
		members, _ := typ["value"].([]any)
		if len(members) == 0 {
			return name
		}
		parts := make([]string, len(members))
		for i, m := range members {
			d, _ := m.(map[string]any)
			parts[i] = typeString(d)
		}
		return strings.Join(parts, " | ")
	case "arrayOf", "objectOf":
		inner, _ := typ["value"].(map[string]any)
		return fmt.Sprintf("%s<%s>", name, typeString(inner))
	case "instanceOf":
		if ctor, ok := typ["value"].(string); ok && ctor != "" {
			return fmt.Sprintf("%s<%s>", name, ctor)
		}
	}
	return name
}

func enumValues(desc map[string]any) ([]string, bool) {
	typ, ok := desc["type"].(map[string]any)
	if !ok || typ["name"] != "enum" {
		return nil, false
	}
	values, ok := typ["value"].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = s
		} else {
			out[i] = encode(v)
		}
	}
	return out, true
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// computeImportPath returns the module path of filePath relative to the
// root, without extension or trailing /index.
func computeImportPath(filePath string, cfg BuildConfig) string {
	if cfg.RootDir == "" {
		return ""
	}
	rel, ok := relative(filePath, cfg.RootDir)
	if !ok {
		return ""
	}

	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	if rel == "index" {
		rel = "."
	}
	rel = strings.TrimSuffix(rel, "/index")

	if cfg.ImportPrefix != "" {
		prefix := strings.TrimSuffix(cfg.ImportPrefix, "/")
		if rel == "." {
			return prefix
		}
		return prefix + "/" + rel
	}
	if rel == "." {
		return rel
	}
	return "./" + rel
}

// computeCategory uses the first directory below the root as category.
func computeCategory(filePath string, rootDir string) string {
	if rootDir == "" {
		return DefaultCategory
	}
	rel, ok := relative(filePath, rootDir)
	if !ok {
		return DefaultCategory
	}
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(rel)))
	if dir == "." || dir == "" {
		return DefaultCategory
	}
	return strings.Split(dir, "/")[0]
}

func relative(filePath, rootDir string) (string, bool) {
	absFile, err := filepath.Abs(filePath)
	if err != nil {
		return "", false
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// buildCategories creates sorted categories from a name -> components map.
func buildCategories(categoryComponents map[string][]string) []Category {
	categories := make([]Category, 0, len(categoryComponents))
	for name, compNames := range categoryComponents {
		sort.Strings(compNames)
		categories = append(categories, Category{
			Name:       name,
			Components: slices.Compact(compNames),
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories
}
