package closure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/propspec/pkg/locate"
	"github.com/gnana997/propspec/pkg/parser"
	"github.com/gnana997/propspec/pkg/util"
)

func parse(t *testing.T, path, source string) *parser.Module {
	t.Helper()
	pm := parser.NewParserManager(util.Discard())
	t.Cleanup(func() { pm.Close() })

	mod, err := pm.ParseModule(path, []byte(source))
	require.NoError(t, err)
	t.Cleanup(mod.Close)
	return mod
}

// resolveComponent runs the closure over the schema and defaults of the
// module's component.
func resolveComponent(t *testing.T, mod *parser.Module) *Closure {
	t.Helper()
	comp, err := locate.FindComponent(mod)
	require.NoError(t, err)
	schema, defaults, err := locate.FindProperties(mod, comp)
	require.NoError(t, err)
	return Resolve(NewTable(mod), schema.Value, defaults.Value)
}

func TestTableBindings(t *testing.T) {
	mod := parse(t, "table.js", `import React, { Component as Base, Fragment } from 'react';
import * as icons from './icons';
import './side-effect.css';
const styles = require('./styles'), other = 1;
const theme = require('./theme').default;
const { a, b: [c, ...d], e = 1 } = obj;
export function helper() {}
export default class Button extends Base {}
Button.displayName = 'Button';
`)

	table := NewTable(mod)

	expect := map[string]Kind{
		"React":    KindImport,
		"Base":     KindImport,
		"Fragment": KindImport,
		"icons":    KindImport,
		"styles":   KindDeclaration,
		"other":    KindDeclaration,
		"theme":    KindImport,
		"a":        KindDeclaration,
		"c":        KindDeclaration,
		"d":        KindDeclaration,
		"e":        KindDeclaration,
		"helper":   KindDeclaration,
		"Button":   KindDeclaration,
	}
	for name, kind := range expect {
		b, ok := table.Lookup(name)
		if assert.True(t, ok, "missing binding %q", name) {
			assert.Equal(t, kind, b.Kind, "kind of %q", name)
		}
	}

	_, ok := table.Lookup("Component")
	assert.False(t, ok, "renamed import binds its alias only")
	_, ok = table.Lookup("b")
	assert.False(t, ok, "pair pattern key is not a binding")

	theme, _ := table.Lookup("theme")
	assert.Equal(t, "'./theme'", mod.Text(theme.Source))

	button, _ := table.Lookup("Button")
	assert.Equal(t, "class_declaration", button.Decl.Kind())
	assert.Equal(t, "export_statement", button.Statement.Kind())
}

func TestTableTypeScript(t *testing.T) {
	mod := parse(t, "table.ts", `import type { Props } from './types';
import legacy = require('./legacy');
enum Size { Small = 'small' }
interface Ignored { x: number }
type Alias = string;
`)

	table := NewTable(mod)

	legacy, ok := table.Lookup("legacy")
	require.True(t, ok)
	assert.Equal(t, KindImport, legacy.Kind)
	assert.Equal(t, "'./legacy'", mod.Text(legacy.Source))

	_, ok = table.Lookup("Size")
	assert.True(t, ok)
	_, ok = table.Lookup("Ignored")
	assert.False(t, ok)
}

func TestTableInitializer(t *testing.T) {
	mod := parse(t, "init.js", `import shared from './shared';
const a = 1, schema = { size: 1 };
export const exported = [];
let { x } = obj;
function helper() {}
`)

	table := NewTable(mod)

	assert.Equal(t, "{ size: 1 }", mod.Text(table.Initializer("schema")))
	assert.Equal(t, "[]", mod.Text(table.Initializer("exported")))
	assert.Nil(t, table.Initializer("x"))
	assert.Nil(t, table.Initializer("shared"))
	assert.Nil(t, table.Initializer("helper"))
	assert.Nil(t, table.Initializer("missing"))
}

func TestFreeIdentifiers(t *testing.T) {
	testCases := []struct {
		name   string
		source string
		want   []string
	}{
		{"literal", `const v = { size: 'small', count: 2 };`, nil},
		{"member chain", `const v = PropTypes.oneOf(SIZES).isRequired;`, []string{"PropTypes", "SIZES"}},
		{"property names are not references", `const v = { a: x.b, c };`, []string{"x", "c"}},
		{"parameters shadow", `const v = (x, { y = z }) => x + y + w;`, []string{"z", "w"}},
		{"hoisted var", `const v = function () { f(); var k = 1; function f() { return k + g; } };`, []string{"g"}},
		{"block scope", `const v = () => { { let q = 1; } return q; };`, []string{"q"}},
		{"catch parameter", `const v = () => { try { run(); } catch (err) { log(err); } };`, []string{"run", "log"}},
		{"for of", `const v = () => { for (const item of items) use(item); };`, []string{"items", "use"}},
		{"named function expression", `const v = function fact(n) { return n ? fact(n - 1) : base; };`, []string{"base"}},
		{"labels", `const v = () => { outer: for (;;) { break outer; } };`, nil},
		{"computed keys", `const v = { [KEY]: 1, 'quoted': two };`, []string{"KEY", "two"}},
		{"jsx", `const v = () => <Icon name="x" onClick={handler}><span>{label}</span></Icon>;`, []string{"React", "Icon", "handler", "label"}},
		{"jsx member", `const v = <UI.Button {...rest} />;`, []string{"React", "UI", "rest"}},
		{"class expression", `const v = class Inner extends Base { static x = Inner.y + other; m(a) { return a; } };`, []string{"Base", "other"}},
		{"self reference is bound", `const v = () => v;`, nil},
		{"arguments", `const v = function () { return arguments.length; };`, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mod := parse(t, "free.jsx", tc.source)
			got := FreeIdentifiers(mod.Statements()[0], mod.Source)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFreeIdentifiersSkipsTypes(t *testing.T) {
	mod := parse(t, "free.ts", `const v = (p: Props, q: typeof Other): Result<T> => ({ size: p.size as Size, n: <number>count, m: q! });`)
	got := FreeIdentifiers(mod.Statements()[0], mod.Source)
	assert.Equal(t, []string{"count"}, got)
}

func TestResolveEmptyClosure(t *testing.T) {
	mod := parse(t, "Plain.js", `import PropTypes from 'prop-types';
import unrelated from './unrelated';
export default class Plain {
  static propTypes = { size: 'string' };
}`)

	c := resolveComponent(t, mod)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Imports())
}

func TestResolveThroughDeclaration(t *testing.T) {
	mod := parse(t, "Button.js", `import PropTypes from 'prop-types';
import { colors } from './theme';
import unrelated from './unrelated';
import sibling from './sibling';

const SIZES = sizesFrom(colors);
function sizesFrom(palette) { return Object.keys(palette); }

export default class Button {
  static propTypes = { size: PropTypes.oneOf(SIZES) };
  static defaultProps = { size: SIZES[0] };
}`)

	c := resolveComponent(t, mod)

	assert.Equal(t, []string{"PropTypes", "SIZES", "sizesFrom", "colors"}, c.Names())

	imports := c.Imports()
	require.Len(t, imports, 2)
	assert.Equal(t, "PropTypes", imports[0].Names[0])
	assert.Equal(t, "colors", imports[1].Names[0])
}

func TestResolveSingleImportThroughConstant(t *testing.T) {
	mod := parse(t, "Card.js", `import PropTypes from 'prop-types';
import { Shape } from './shape';
import sibling from './sibling';

const schema = { shape: Shape };

export default class Card {
  static propTypes = schema;
}`)

	comp, err := locate.FindComponent(mod)
	require.NoError(t, err)
	schema, _, err := locate.FindProperties(mod, comp)
	require.NoError(t, err)

	c := Resolve(NewTable(mod), schema.Value)
	imports := c.Imports()
	require.Len(t, imports, 1)
	assert.Equal(t, []string{"Shape"}, imports[0].Names)
}

func TestResolveSchemaBeforeDefaults(t *testing.T) {
	mod := parse(t, "Order.js", `import a from './a';
import b from './b';
import c from './c';
export default class Order {
  static propTypes = { x: c, y: a };
  static defaultProps = { x: b, y: c };
}`)

	c := resolveComponent(t, mod)
	assert.Equal(t, []string{"c", "a", "b"}, c.Names())

	ordered := c.SourceOrder()
	assert.Equal(t, "a", ordered[0].Names[0])
	assert.Equal(t, "b", ordered[1].Names[0])
	assert.Equal(t, "c", ordered[2].Names[0])
}

func TestResolveCycles(t *testing.T) {
	mod := parse(t, "Cycle.js", `import dep from './dep';
const A = { get b() { return B; } };
const B = { get a() { return A; }, dep };
function even(n) { return n === 0 || odd(n - 1); }
function odd(n) { return n !== 0 && even(n - 1); }
export default class Cycle {
  static propTypes = { a: A, e: even };
}`)

	c := resolveComponent(t, mod)
	assert.Equal(t, []string{"A", "B", "dep", "even", "odd"}, c.Names())
}

func TestResolveIsDeterministic(t *testing.T) {
	source := `import x from './x';
import y from './y';
const h = () => [x, y];
export default class D { static propTypes = { h: h(), y }; static defaultProps = { x }; }`

	var runs [][]string
	for i := 0; i < 5; i++ {
		mod := parse(t, "D.js", source)
		runs = append(runs, resolveComponent(t, mod).Names())
	}
	for _, run := range runs[1:] {
		assert.Equal(t, runs[0], run)
	}
}

func TestDependencyText(t *testing.T) {
	mod := parse(t, "Text.js", `import { a } from './a';
export const local = require('../local');
`)
	table := NewTable(mod)

	a, _ := table.Lookup("a")
	dep := &Dependency{Binding: a}
	assert.Equal(t, "import { a } from './a';", dep.Text(mod.Source))

	dep.ResolvedSource = "/abs/a"
	dep.Rewritten = true
	assert.Equal(t, `import { a } from "/abs/a";`, dep.Text(mod.Source))

	local, _ := table.Lookup("local")
	dep = &Dependency{Binding: local, ResolvedSource: "/abs/local", Rewritten: true}
	assert.Equal(t, `const local = require("/abs/local");`, dep.Text(mod.Source))

	dep.Replacement = `var local = "x";`
	assert.Equal(t, `var local = "x";`, dep.Text(mod.Source))
}
