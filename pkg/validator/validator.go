// Package validator checks JSX usages of catalogued components against
// their extracted propTypes.
package validator

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/gnana997/propspec/pkg/catalog"
	"github.com/gnana997/propspec/pkg/parser"
)

// Rules reported by Validate.
const (
	RuleMissingRequired = "missing-required-prop"
	RuleUnknownProp     = "unknown-prop"
	RuleInvalidValue    = "invalid-enum-value"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// reservedProps are handled by React itself and never appear in propTypes.
var reservedProps = map[string]bool{"key": true, "ref": true}

// Validator checks source code against a component catalog.
//
// Thread Safety: Validate may be called concurrently.
type Validator struct {
	query   *catalog.QueryService
	parsers *parser.ParserManager
	logger  *slog.Logger
}

// ValidationResult is the outcome of validating one file or snippet.
type ValidationResult struct {
	FilePath string `json:"file_path,omitempty"`

	// Valid is false when any violation has error severity.
	Valid      bool        `json:"valid"`
	Usages     int         `json:"usages"`
	Checked    int         `json:"checked"`
	Violations []Violation `json:"violations"`
}

// Violation is a single rule violation at a usage site.
type Violation struct {
	Rule       string `json:"rule"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Component  string `json:"component"`
	Prop       string `json:"prop,omitempty"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Suggestion string `json:"suggestion,omitempty"`
}

// New creates a Validator over query. The validator owns a parser manager
// and must be closed.
func New(query *catalog.QueryService, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		query:   query,
		parsers: parser.NewParserManager(logger),
		logger:  logger,
	}
}

// Close releases the parser pools.
func (v *Validator) Close() error {
	return v.parsers.Close()
}

// ValidateFile reads and validates the file at path.
func (v *Validator) ValidateFile(path string) (*ValidationResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return v.Validate(path, source)
}

// Validate checks every catalogued component usage in source. The grammar
// follows the extension of path; snippets without a recognised extension
// are parsed as TSX. Syntax errors do not stop validation, since tree-sitter
// recovers around them.
func (v *Validator) Validate(path string, source []byte) (*ValidationResult, error) {
	lang, isTSX := parser.DetectLanguage(path), parser.IsTSXFile(path)
	if lang == parser.LanguageUnknown {
		lang, isTSX = parser.LanguageTypeScript, true
	}

	tree, err := v.parsers.Parse(source, lang, isTSX)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	usages := ExtractUsages(tree.RootNode(), source)
	result := &ValidationResult{
		FilePath:   path,
		Usages:     len(usages),
		Violations: []Violation{},
	}

	for _, u := range usages {
		comp, ok := v.query.GetComponent(lookupName(u.Component))
		if !ok {
			continue
		}
		result.Checked++
		result.Violations = append(result.Violations, checkUsage(u, comp)...)
	}

	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})

	result.Valid = !slices.ContainsFunc(result.Violations, func(vl Violation) bool {
		return vl.Severity == SeverityError
	})

	v.logger.Debug("validated usages",
		"file", path,
		"usages", result.Usages,
		"checked", result.Checked,
		"violations", len(result.Violations))
	return result, nil
}

func checkUsage(u Usage, comp *catalog.Component) []Violation {
	var out []Violation
	at := func(rule, severity, prop, msg, suggestion string) {
		out = append(out, Violation{
			Rule:       rule,
			Severity:   severity,
			Message:    msg,
			Component:  u.Component,
			Prop:       prop,
			Line:       u.Line,
			Column:     u.Column,
			Suggestion: suggestion,
		})
	}

	declared := make(map[string]*catalog.Prop, len(comp.Props))
	names := make([]string, 0, len(comp.Props))
	for i := range comp.Props {
		declared[comp.Props[i].Name] = &comp.Props[i]
		names = append(names, comp.Props[i].Name)
	}

	// defaultProps fill required props before React checks them
	if !u.Spread {
		for _, p := range comp.Props {
			if !p.Required || p.Default != "" {
				continue
			}
			if _, ok := u.Props[p.Name]; ok {
				continue
			}
			if p.Name == "children" && u.HasChildren {
				continue
			}
			at(RuleMissingRequired, SeverityError, p.Name,
				fmt.Sprintf("%s requires prop %q", u.Component, p.Name), "")
		}
	}

	written := make([]string, 0, len(u.Props))
	for name := range u.Props {
		written = append(written, name)
	}
	sort.Strings(written)

	for _, name := range written {
		attr := u.Props[name]
		p, ok := declared[name]
		if !ok {
			if reservedProps[name] || strings.Contains(name, "-") || strings.Contains(name, ":") {
				continue
			}
			suggestion := ""
			if closest := closestName(name, names); closest != "" {
				suggestion = fmt.Sprintf("did you mean %q?", closest)
			}
			at(RuleUnknownProp, SeverityWarning, name,
				fmt.Sprintf("%s does not declare prop %q", u.Component, name), suggestion)
			continue
		}

		if attr.Kind == AttrString && len(p.AllowedValues) > 0 && !slices.Contains(p.AllowedValues, attr.Value) {
			at(RuleInvalidValue, SeverityError, name,
				fmt.Sprintf("%q is not an allowed value of %s.%s", attr.Value, u.Component, name),
				"one of: "+strings.Join(p.AllowedValues, " | "))
		}
	}
	return out
}

// closestName returns the candidate nearest to name: an exact match
// ignoring case, else the first within two edits.
func closestName(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			return c
		}
		if d := editDistance(strings.ToLower(name), strings.ToLower(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
