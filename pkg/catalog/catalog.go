// Package catalog turns extraction results into a persistent, queryable
// component catalog.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the catalog format version written by Build.
const Version = "1"

// ErrInvalidCatalog is wrapped by Load when validation fails.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog holds the documented components of a source tree.
type Catalog struct {
	Name       string      `json:"name"`
	Version    string      `json:"version"`
	Source     string      `json:"source,omitempty"`
	Components []Component `json:"components"`
	Categories []Category  `json:"categories"`
}

// CatalogIndex provides O(1) lookups into the catalog.
type CatalogIndex struct {
	// ComponentsByName maps a component name to every component carrying
	// it, in catalog order.
	ComponentsByName map[string][]*Component

	// ComponentByFile maps a file path to its component.
	ComponentByFile map[string]*Component

	CategoryByName       map[string]*Category
	ComponentsByCategory map[string][]*Component
}

// Validate checks the catalog for internal consistency. It returns every
// problem found, or nil.
func (c *Catalog) Validate() []error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, fmt.Errorf("catalog name is required"))
	}
	if c.Version == "" {
		errs = append(errs, fmt.Errorf("catalog version is required"))
	}

	categoryNames := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Name == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
			continue
		}
		if categoryNames[cat.Name] {
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate category name %q", i, cat.Name))
			continue
		}
		categoryNames[cat.Name] = true
	}

	componentNames := make(map[string]bool, len(c.Components))
	files := make(map[string]bool, len(c.Components))
	for i, comp := range c.Components {
		if comp.Name == "" {
			errs = append(errs, fmt.Errorf("components[%d]: name is required", i))
			continue
		}
		componentNames[comp.Name] = true

		if comp.FilePath == "" {
			errs = append(errs, fmt.Errorf("component %q: file_path is required", comp.Name))
		} else if files[comp.FilePath] {
			errs = append(errs, fmt.Errorf("component %q: duplicate file %q", comp.Name, comp.FilePath))
		}
		files[comp.FilePath] = true

		if comp.Category != "" && !categoryNames[comp.Category] {
			errs = append(errs, fmt.Errorf("component %q: references unknown category %q", comp.Name, comp.Category))
		}

		propNames := make(map[string]bool, len(comp.Props))
		for j, prop := range comp.Props {
			if prop.Name == "" {
				errs = append(errs, fmt.Errorf("component %q props[%d]: name is required", comp.Name, j))
				continue
			}
			if prop.Type == "" {
				errs = append(errs, fmt.Errorf("component %q props[%d]: type is required", comp.Name, j))
			}
			if propNames[prop.Name] {
				errs = append(errs, fmt.Errorf("component %q: duplicate prop %q", comp.Name, prop.Name))
			}
			propNames[prop.Name] = true
		}
	}

	for _, cat := range c.Categories {
		for _, compName := range cat.Components {
			if !componentNames[compName] {
				errs = append(errs, fmt.Errorf("category %q: references non-existent component %q", cat.Name, compName))
			}
		}
	}

	return errs
}

// BuildIndex creates lookup maps. The index points into c and is
// invalidated by changes to its slices.
func (c *Catalog) BuildIndex() *CatalogIndex {
	idx := &CatalogIndex{
		ComponentsByName:     make(map[string][]*Component, len(c.Components)),
		ComponentByFile:      make(map[string]*Component, len(c.Components)),
		CategoryByName:       make(map[string]*Category, len(c.Categories)),
		ComponentsByCategory: make(map[string][]*Component),
	}

	for i := range c.Categories {
		idx.CategoryByName[c.Categories[i].Name] = &c.Categories[i]
	}

	for i := range c.Components {
		comp := &c.Components[i]
		idx.ComponentsByName[comp.Name] = append(idx.ComponentsByName[comp.Name], comp)
		idx.ComponentByFile[comp.FilePath] = comp
		idx.ComponentsByCategory[comp.Category] = append(idx.ComponentsByCategory[comp.Category], comp)
	}

	return idx
}

// Save writes the catalog as indented JSON, creating parent directories.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}

// Load reads and validates a catalog file and builds its index.
func Load(path string) (*Catalog, *CatalogIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a catalog and builds its index.
func LoadFromBytes(data []byte) (*Catalog, *CatalogIndex, error) {
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse catalog JSON: %w", ErrInvalidCatalog, err)
	}

	if errs := catalog.Validate(); len(errs) > 0 {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}

	return &catalog, catalog.BuildIndex(), nil
}
