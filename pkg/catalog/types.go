package catalog

// Component is one documented component.
type Component struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	FilePath string `json:"file_path"`

	// ImportPath is FilePath relative to the scan root, without extension.
	ImportPath string `json:"import_path,omitempty"`

	// Export is how the component leaves its module: default, named or
	// commonjs.
	Export string `json:"export"`
	Props  []Prop `json:"props"`
}

// Prop describes one entry of a component's propTypes.
type Prop struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`

	// Default is the JSON encoding of the defaultProps value.
	Default       string   `json:"default,omitempty"`
	Description   string   `json:"description,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// Category groups components by top-level directory.
type Category struct {
	Name       string   `json:"name"`
	Components []string `json:"components"`
}
