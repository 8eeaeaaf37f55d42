package catalog

import "strings"

// ComponentSearchResult holds a component match with the reason it matched.
type ComponentSearchResult struct {
	Component   *Component `json:"component"`
	MatchReason string     `json:"match_reason"`
}

// QueryService provides read-only query methods over a loaded catalog.
type QueryService struct {
	Catalog *Catalog
	Index   *CatalogIndex
}

// NewQueryService creates a QueryService from a validated catalog and its index.
func NewQueryService(cat *Catalog, idx *CatalogIndex) *QueryService {
	if idx == nil {
		idx = cat.BuildIndex()
	}
	return &QueryService{Catalog: cat, Index: idx}
}

// LoadAndQuery loads a catalog file and returns a ready-to-use QueryService.
func LoadAndQuery(path string) (*QueryService, error) {
	cat, idx, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewQueryService(cat, idx), nil
}

// ListCategories returns all categories in the catalog.
func (q *QueryService) ListCategories() []Category {
	return q.Catalog.Categories
}

// ListComponents returns components filtered by category and keyword.
// Both filters are optional; together they combine with AND. The keyword
// matches case-insensitively against the component name and file path.
func (q *QueryService) ListComponents(category, keyword string) []Component {
	var candidates []*Component

	if category != "" {
		candidates = q.Index.ComponentsByCategory[category]
	} else {
		candidates = make([]*Component, 0, len(q.Catalog.Components))
		for i := range q.Catalog.Components {
			candidates = append(candidates, &q.Catalog.Components[i])
		}
	}

	keyword = strings.ToLower(keyword)
	result := make([]Component, 0)

	for _, comp := range candidates {
		if keyword != "" {
			if !strings.Contains(strings.ToLower(comp.Name), keyword) &&
				!strings.Contains(strings.ToLower(comp.FilePath), keyword) {
				continue
			}
		}
		result = append(result, *comp)
	}

	return result
}

// GetComponent looks up a component by name, then by file path, then by
// name ignoring case. With several matches the first in catalog order
// wins.
func (q *QueryService) GetComponent(name string) (*Component, bool) {
	if comps := q.Index.ComponentsByName[name]; len(comps) > 0 {
		return comps[0], true
	}
	if comp, ok := q.Index.ComponentByFile[name]; ok {
		return comp, true
	}
	for i := range q.Catalog.Components {
		if strings.EqualFold(q.Catalog.Components[i].Name, name) {
			return &q.Catalog.Components[i], true
		}
	}
	return nil, false
}

// GetComponentsByNames returns components matching the given names.
// Unknown names are skipped. Duplicates are removed.
func (q *QueryService) GetComponentsByNames(names []string) []*Component {
	seen := make(map[string]bool, len(names))
	result := make([]*Component, 0, len(names))

	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, q.Index.ComponentsByName[name]...)
	}

	return result
}

// SearchComponents performs a case-insensitive search across component
// names, prop names and prop descriptions.
func (q *QueryService) SearchComponents(query string) []ComponentSearchResult {
	query = strings.ToLower(query)
	if query == "" {
		return nil
	}

	var results []ComponentSearchResult

	for i := range q.Catalog.Components {
		comp := &q.Catalog.Components[i]

		if strings.Contains(strings.ToLower(comp.Name), query) {
			results = append(results, ComponentSearchResult{Component: comp, MatchReason: "name"})
			continue
		}

		if reason := matchProps(comp.Props, query); reason != "" {
			results = append(results, ComponentSearchResult{Component: comp, MatchReason: reason})
		}
	}

	return results
}

func matchProps(props []Prop, query string) string {
	for _, prop := range props {
		if strings.Contains(strings.ToLower(prop.Name), query) {
			return "prop:" + prop.Name
		}
	}
	for _, prop := range props {
		if strings.Contains(strings.ToLower(prop.Description), query) {
			return "description:" + prop.Name
		}
	}
	return ""
}
