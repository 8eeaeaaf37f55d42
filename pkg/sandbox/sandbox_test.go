package sandbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/propspec/pkg/parser"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newSandbox(t *testing.T, opts Options) *Sandbox {
	t.Helper()
	sb, err := New(opts, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sb.Close() })
	return sb
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestEvaluate_CallbackArguments(t *testing.T) {
	sb := newSandbox(t, Options{})

	res, err := sb.Evaluate(context.Background(),
		`callback({b: 1, a: "x", c: [true, null, 1.5]}, {});`,
		Globals{Filename: "/tmp/Button.jsx"})
	require.NoError(t, err)

	require.Len(t, res.Args, 2)
	assert.Equal(t, map[string]any{
		"b": int64(1),
		"a": "x",
		"c": []any{true, nil, 1.5},
	}, res.Arg(0))
	assert.Equal(t, []string{"b", "a", "c"}, res.ArgKeys(0))
	assert.Equal(t, map[string]any{}, res.Arg(1))
	assert.Nil(t, res.Arg(2))
}

func TestEvaluate_FirstCallbackWins(t *testing.T) {
	sb := newSandbox(t, Options{})

	res, err := sb.Evaluate(context.Background(), `callback(1); callback(2);`, Globals{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Arg(0))
}

func TestEvaluate_Globals(t *testing.T) {
	sb := newSandbox(t, Options{})

	code := `callback({
		filename: __filename,
		dirname: __dirname,
		theme: __propspec__.theme,
		module: typeof module.exports,
		exports: typeof exports,
		require: typeof require,
		console: typeof console.log,
		window: typeof window
	});`

	res, err := sb.Evaluate(context.Background(), code, Globals{
		Filename: "/src/components/Button.jsx",
		Ambient:  map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"filename": "/src/components/Button.jsx",
		"dirname":  "/src/components",
		"theme":    "dark",
		"module":   "object",
		"exports":  "object",
		"require":  "function",
		"console":  "function",
		"window":   "undefined",
	}, res.Arg(0))
}

func TestEvaluate_FreshRuntimePerCall(t *testing.T) {
	sb := newSandbox(t, Options{})

	_, err := sb.Evaluate(context.Background(), `leaked = 1; callback(0);`, Globals{})
	require.NoError(t, err)

	res, err := sb.Evaluate(context.Background(), `callback(typeof leaked);`, Globals{})
	require.NoError(t, err)
	assert.Equal(t, "undefined", res.Arg(0))
}

func TestEvaluate_PropTypesShim(t *testing.T) {
	sb := newSandbox(t, Options{
		NativeAliases: map[string]string{"prop-types": PropTypesModule},
	})

	code := `
var PropTypes = require("prop-types");
callback({
	size: PropTypes.oneOf(["small", "large"]).isRequired,
	onClick: PropTypes.func,
	items: PropTypes.arrayOf(PropTypes.number),
	when: PropTypes.instanceOf(Date),
	user: PropTypes.shape({name: PropTypes.string.isRequired})
});`

	res, err := sb.Evaluate(context.Background(), code, Globals{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"size": map[string]any{
			"type":     map[string]any{"name": "enum", "value": []any{"small", "large"}},
			"required": true,
		},
		"onClick": map[string]any{
			"type":     map[string]any{"name": "func"},
			"required": false,
		},
		"items": map[string]any{
			"type": map[string]any{
				"name": "arrayOf",
				"value": map[string]any{
					"type":     map[string]any{"name": "number"},
					"required": false,
				},
			},
			"required": false,
		},
		"when": map[string]any{
			"type":     map[string]any{"name": "instanceOf", "value": "Date"},
			"required": false,
		},
		"user": map[string]any{
			"type": map[string]any{
				"name": "shape",
				"value": map[string]any{
					"name": map[string]any{
						"type":     map[string]any{"name": "string"},
						"required": true,
					},
				},
			},
			"required": false,
		},
	}, res.Arg(0))
	assert.Equal(t, []string{"size", "onClick", "items", "when", "user"}, res.ArgKeys(0))
}

func TestEvaluate_PropTypesDescriptorsAreFresh(t *testing.T) {
	sb := newSandbox(t, Options{})

	code := `
var PropTypes = require("` + PropTypesModule + `");
var a = PropTypes.string;
a.type.name = "changed";
callback(PropTypes.string.type.name);`

	res, err := sb.Evaluate(context.Background(), code, Globals{})
	require.NoError(t, err)
	assert.Equal(t, "string", res.Arg(0))
}

func TestEvaluate_RequireCompilesAfterRegister(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"sizes.ts":         "export const SIZES: string[] = ['s', 'm'];\nexport enum Tone { Light = 'light' }\n",
		"theme/index.jsx":  "export default { primary: <b>x</b> ? 'blue' : 'red' };\n",
		"data.json":        `{"limit": 3}`,
		"legacy/common.js": "module.exports = { kind: 'cjs' };\n",
	})
	sb := newSandbox(t, Options{})

	code := `require("@propspec/register")();
var React = { createElement: function () { return {}; } };
globalThis.React = React;
var sizes = require(` + quote(filepath.Join(dir, "sizes")) + `);
var theme = require(` + quote(filepath.Join(dir, "theme")) + `);
var data = require(` + quote(filepath.Join(dir, "data.json")) + `);
var legacy = require(` + quote(filepath.Join(dir, "legacy", "common.js")) + `);
callback(sizes.SIZES, sizes.Tone.Light, theme.default.primary, data.limit, legacy.kind);`

	res, err := sb.Evaluate(context.Background(), code, Globals{Filename: filepath.Join(dir, "Button.jsx")})
	require.NoError(t, err)

	assert.Equal(t, []any{"s", "m"}, res.Arg(0))
	assert.Equal(t, "light", res.Arg(1))
	assert.Equal(t, "blue", res.Arg(2))
	assert.Equal(t, int64(3), res.Arg(3))
	assert.Equal(t, "cjs", res.Arg(4))
}

func TestEvaluate_NoCompileWithoutRegister(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"sizes.ts": "export const SIZES: string[] = ['s'];\n",
	})
	sb := newSandbox(t, Options{})

	code := `var sizes = require(` + quote(filepath.Join(dir, "sizes.ts")) + `); callback(sizes);`
	_, err := sb.Evaluate(context.Background(), code, Globals{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestEvaluate_CompileCacheReused(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"sizes.ts": "export const SIZES = ['s'];\n",
	})
	sb := newSandbox(t, Options{})

	code := `require("@propspec/register")(); callback(require(` + quote(filepath.Join(dir, "sizes")) + `).SIZES);`
	for i := 0; i < 3; i++ {
		res, err := sb.Evaluate(context.Background(), code, Globals{})
		require.NoError(t, err)
		assert.Equal(t, []any{"s"}, res.Arg(0))
	}
	assert.Equal(t, 1, sb.compiled.Len())
}

func TestEvaluate_BrokenDependencyIsParseError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"broken.js": "export const = ;\n",
	})
	sb := newSandbox(t, Options{})

	code := `require("@propspec/register")(); callback(require(` + quote(filepath.Join(dir, "broken.js")) + `));`
	_, err := sb.Evaluate(context.Background(), code, Globals{})
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrParse)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    error
		message string
	}{
		{
			name:    "thrown error",
			code:    `throw new Error("boom");`,
			want:    ErrEvaluation,
			message: "boom",
		},
		{
			name:    "reference error",
			code:    `callback(missingHelper());`,
			want:    ErrEvaluation,
			message: "missingHelper",
		},
		{
			name: "missing module",
			code: `require("/definitely/not/here/sizes"); callback(1);`,
			want: ErrResolution,
		},
		{
			name: "missing package",
			code: `require("no-such-package-anywhere"); callback(1);`,
			want: ErrResolution,
		},
		{
			name: "syntax error in program",
			code: `callback({;`,
			want: ErrEvaluation,
		},
	}

	sb := newSandbox(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sb.Evaluate(context.Background(), tt.code, Globals{Filename: "/tmp/Button.jsx"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr))
			assert.Equal(t, "/tmp/Button.jsx", evalErr.File)
			if tt.message != "" {
				assert.Contains(t, evalErr.Message, tt.message)
			}
		})
	}
}

func TestEvaluate_NoResult(t *testing.T) {
	sb := newSandbox(t, Options{})

	_, err := sb.Evaluate(context.Background(), `var x = 1;`, Globals{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.ErrorIs(t, err, ErrEvaluationTimeout)
}

func TestEvaluate_Timeout(t *testing.T) {
	sb := newSandbox(t, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := sb.Evaluate(context.Background(), `for (;;) {}`, Globals{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluationTimeout)
	assert.NotErrorIs(t, err, ErrNoResult)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEvaluate_ContextCancel(t *testing.T) {
	sb := newSandbox(t, Options{Timeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := sb.Evaluate(ctx, `while (true) {}`, Globals{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluationTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluate_CanceledBeforeStart(t *testing.T) {
	sb := newSandbox(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sb.Evaluate(ctx, `callback(1);`, Globals{})
	assert.ErrorIs(t, err, ErrEvaluationTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_ConsoleLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sb, err := New(Options{}, logger)
	require.NoError(t, err)
	defer sb.Close()

	_, err = sb.Evaluate(context.Background(),
		`console.warn("deprecated prop %s", "kind"); callback(1);`,
		Globals{Filename: "/src/Button.jsx"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "deprecated prop kind")
	assert.Contains(t, out, "source=sandbox")
	assert.Contains(t, out, "level=WARN")
}

func TestEvaluate_Concurrent(t *testing.T) {
	sb := newSandbox(t, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := sb.Evaluate(context.Background(),
				`var n = __propspec__.n; callback(n * 2);`,
				Globals{Ambient: map[string]any{"n": n}})
			if err != nil {
				errs <- err
				return
			}
			if res.Arg(0) != int64(n*2) {
				errs <- errors.New("unexpected result")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestExport_Values(t *testing.T) {
	sb := newSandbox(t, Options{})

	code := `
function onClick() {}
onClick.displayName = "handler";
var self = {name: "self"};
self.me = self;
var shared = {x: 1};
callback({
	fn: onClick,
	arrow: function () {},
	date: new Date(Date.UTC(2020, 0, 2)),
	re: /ab+c/i,
	nan: NaN,
	skipped: undefined,
	self: self,
	twice: [shared, shared],
	err: new TypeError("bad")
});`

	res, err := sb.Evaluate(context.Background(), code, Globals{})
	require.NoError(t, err)

	got := res.Arg(0).(map[string]any)
	assert.Equal(t, map[string]any{"displayName": "handler", "function": "onClick"}, got["fn"])
	assert.Contains(t, got["arrow"], "function")
	assert.Equal(t, "2020-01-02T00:00:00.000Z", got["date"])
	assert.Equal(t, "/ab+c/i", got["re"])
	assert.Nil(t, got["nan"])
	assert.NotContains(t, got, "skipped")
	assert.Equal(t, map[string]any{"name": "self", "me": circularMarker}, got["self"])
	assert.Equal(t, []any{map[string]any{"x": int64(1)}, map[string]any{"x": int64(1)}}, got["twice"])
	assert.Equal(t, map[string]any{"name": "TypeError", "message": "bad"}, got["err"])
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/a/sizes", []string{"/a/sizes", "/a/sizes.js", "/a/sizes.jsx", "/a/sizes.ts", "/a/sizes.tsx"}},
		{"/a/index.js", []string{"/a/index.js", "/a/index.jsx", "/a/index.ts", "/a/index.tsx"}},
		{"/a/data.json", []string{"/a/data.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, candidates(tt.path))
		})
	}
}

func TestShouldCompile(t *testing.T) {
	ev := &evaluation{sandbox: &Sandbox{}, compile: true}
	assert.True(t, ev.shouldCompile("/src/Button.tsx"))
	assert.False(t, ev.shouldCompile("/src/data.json"))
	assert.False(t, ev.shouldCompile("/src/node_modules/lib/index.js"))

	ev.sandbox.opts.CompileNodeModules = true
	assert.True(t, ev.shouldCompile("/src/node_modules/lib/index.js"))

	ev.compile = false
	assert.False(t, ev.shouldCompile("/src/Button.tsx"))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(filepath.ToSlash(s), `"`, `\"`) + `"`
}
