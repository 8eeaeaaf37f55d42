// Package program assembles the synthetic program that evaluates a
// component's propTypes and defaultProps, and generates the code the
// sandbox runs.
package program

import (
	"log/slog"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/propspec/pkg/closure"
	"github.com/gnana997/propspec/pkg/locate"
	"github.com/gnana997/propspec/pkg/parser"
	"github.com/gnana997/propspec/pkg/transpile"
)

// Names fixed by the program contract with the sandbox.
const (
	SchemaVar    = "_propTypes_"
	DefaultsVar  = "_defaultProps_"
	CallbackName = "callback"

	// RegisterModule is the native module enabling compilation of further
	// requires inside the sandbox.
	RegisterModule = "@propspec/register"

	// Bootstrap is the first line of every generated program.
	Bootstrap = `require("` + RegisterModule + `")();`
)

// VarBinding is a flattened declaration: `var Name = <Value>;`.
type VarBinding struct {
	Name string

	// Value is the original initializer node, shared with the parsed
	// module. Nil renders as an empty object.
	Value *ts.Node

	// Static is always false once flattened; it records that the binding no
	// longer belongs to a class.
	Static bool
}

// Flatten turns a class property into a top-level variable binding named
// name. The value expression is referenced, not copied.
func Flatten(p *locate.Property, name string) VarBinding {
	return VarBinding{Name: name, Value: p.Value, Static: false}
}

// Render returns the declaration source text.
func (v VarBinding) Render(src []byte) string {
	value := "{}"
	if v.Value != nil {
		value = v.Value.Utf8Text(src)
	}
	return "var " + v.Name + " = " + value + ";"
}

// Program is the synthetic program for one extraction.
type Program struct {
	Bootstrap string

	// Statements are the closure statements in original source order.
	Statements []string

	Schema   VarBinding
	Defaults VarBinding

	// Call invokes the callback with both bindings.
	Call string

	// Filename is the component module path, used for loader selection and
	// error positions.
	Filename string

	source []byte
}

// Assemble builds the program for a component: the closure statements, the
// flattened schema and defaults, and the callback invocation.
func Assemble(mod *parser.Module, c *closure.Closure, schema, defaults *locate.Property) *Program {
	p := &Program{
		Bootstrap: Bootstrap,
		Schema:    Flatten(schema, SchemaVar),
		Defaults:  Flatten(defaults, DefaultsVar),
		Call:      CallbackName + "(" + SchemaVar + ", " + DefaultsVar + ");",
		Filename:  mod.Path,
		source:    mod.Source,
	}
	for _, dep := range c.SourceOrder() {
		p.Statements = append(p.Statements, dep.Text(mod.Source))
	}
	return p
}

// Render returns the program body before code generation. The bootstrap is
// added by the generator after downleveling.
func (p *Program) Render() string {
	var b strings.Builder
	for _, stmt := range p.Statements {
		b.WriteString(stmt)
		b.WriteByte('\n')
	}
	b.WriteString(p.Schema.Render(p.source))
	b.WriteByte('\n')
	b.WriteString(p.Defaults.Render(p.source))
	b.WriteByte('\n')
	b.WriteString(p.Call)
	b.WriteByte('\n')
	return b.String()
}

// Generator serializes programs into code the sandbox can run.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger}
}

// Generate downlevels the program with esbuild (CommonJS, ES2015, loader
// chosen from the component file) and prefixes the bootstrap line.
// Transform failures wrap parser.ErrParse.
func (g *Generator) Generate(p *Program) (string, error) {
	body := p.Render()
	code, err := transpile.Transform(body, p.Filename)
	if err != nil {
		g.logger.Debug("program generation failed",
			"file", p.Filename,
			"error", err)
		return "", err
	}

	g.logger.Debug("generated program",
		"file", p.Filename,
		"statements", len(p.Statements),
		"bytes", len(code))

	return p.Bootstrap + "\n" + code, nil
}
