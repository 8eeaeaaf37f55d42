package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/propspec/pkg/batch"
	"github.com/gnana997/propspec/pkg/catalog"
	"github.com/gnana997/propspec/pkg/config"
	"github.com/gnana997/propspec/pkg/extract"
	"github.com/gnana997/propspec/pkg/mcplog"
	"github.com/gnana997/propspec/pkg/util"
	"github.com/gnana997/propspec/pkg/validator"
	"github.com/gnana997/propspec/pkg/watch"
)

const buttonSource = `import PropTypes from 'prop-types';

export default class Button extends React.Component {
  static propTypes = {
    /** Visual density */
    size: PropTypes.oneOf(['small', 'large']),
    onClick: PropTypes.func.isRequired,
  };

  static defaultProps = { size: 'small' };
}
`

const cardSource = `import PropTypes from 'prop-types';

export class Card extends React.Component {
  static propTypes = { title: PropTypes.node };
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "actions", "Button.jsx"), buttonSource)
	writeFile(t, filepath.Join(dir, "layout", "Card.jsx"), cardSource)
	writeFile(t, filepath.Join(dir, "utils", "format.js"), "export const format = (v) => String(v);\n")
	writeFile(t, filepath.Join(dir, "actions", "Button.test.jsx"), "test('renders', () => {});\n")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

// --- dispatch ---

func TestRun_Dispatch(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "propspec "+version+"\n", out)

	out, _, err = runCLI(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage: propspec")

	_, errOut, err := runCLI(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, errOut, "unknown command: frobnicate")

	_, _, err = runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, errOut, err = runCLI(t, "extract")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, errOut, "Usage: propspec extract")
}

func TestParseArgs(t *testing.T) {
	fs := newFlagSet("test", "", &bytes.Buffer{})
	catalogPath := fs.String("catalog", "", "")
	verbose := fs.Bool("v", false, "")

	positional, err := parseArgs(fs, []string{"src", "-catalog", "out.json", "extra", "-v"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "extra"}, positional)
	assert.Equal(t, "out.json", *catalogPath)
	assert.True(t, *verbose)
}

// --- config ---

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, config.Default().Include, cfg.Include)
	})

	t.Run("project file fallback", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		writeFile(t, filepath.Join(dir, config.DefaultPath), "workers: 3\nalias:\n  '@': ./src\n")

		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, filepath.Join(dir, ".propspec", "src"), cfg.Alias["@"])
	})

	t.Run("explicit file and env", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		path := filepath.Join(dir, "custom.yaml")
		writeFile(t, path, "workers: 2\n")

		orig := lookupEnv
		t.Cleanup(func() { lookupEnv = orig })
		lookupEnv = func(key string) (string, bool) {
			if key == config.EnvPrefix+"WORKERS" {
				return "5", true
			}
			return "", false
		}

		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Workers)
	})

	t.Run("dotenv", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		writeFile(t, filepath.Join(dir, ".env"), "PROPSPEC_TIMEOUT=7s\n")
		t.Cleanup(func() { os.Unsetenv("PROPSPEC_TIMEOUT") })

		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, config.Duration(7*time.Second), cfg.Timeout)
	})

	t.Run("invalid", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		path := filepath.Join(dir, "bad.yaml")
		writeFile(t, path, "workers: -1\n")

		_, err := loadConfig(path)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)

		_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}

// --- extract ---

func TestExtract(t *testing.T) {
	dir := fixtureTree(t)
	button := filepath.Join(dir, "actions", "Button.jsx")

	out, _, err := runCLI(t, "extract", button)
	require.NoError(t, err)

	var res extract.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Button", res.Component)
	assert.Equal(t, []string{"size", "onClick"}, res.Keys)
	size := res.Props["size"].(map[string]any)
	assert.Equal(t, "small", size[extract.DefaultValueKey])
	assert.Equal(t, "Visual density", size["description"])
}

func TestExtract_Several(t *testing.T) {
	dir := fixtureTree(t)

	out, errOut, err := runCLI(t, "extract",
		filepath.Join(dir, "actions", "Button.jsx"),
		filepath.Join(dir, "utils", "format.js"),
		filepath.Join(dir, "layout", "Card.jsx"))
	assert.ErrorIs(t, err, errFailures)
	assert.Contains(t, errOut, "format.js")

	var results []extract.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Button", results[0].Component)
	assert.Equal(t, "Card", results[1].Component)
}

// --- scan ---

func TestScan_Report(t *testing.T) {
	dir := fixtureTree(t)

	out, errOut, err := runCLI(t, "scan", dir)
	require.NoError(t, err)
	assert.Contains(t, errOut, "2 components")

	var report batch.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 2)
	assert.Equal(t, filepath.Join(dir, "actions", "Button.jsx"), report.Results[0].File)
	assert.Equal(t, 3, report.Stats.FilesDiscovered)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, filepath.Join(dir, "utils", "format.js"), report.Skipped[0].File)
}

func TestScanInspect_Catalog(t *testing.T) {
	dir := fixtureTree(t)
	catalogPath := filepath.Join(t.TempDir(), "catalog.json")

	out, errOut, err := runCLI(t, "scan", dir, "-catalog", catalogPath, "-name", "ui", "-import-prefix", "@/components")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "wrote "+catalogPath)

	cat, _, err := catalog.Load(catalogPath)
	require.NoError(t, err)
	assert.Equal(t, "ui", cat.Name)
	require.Len(t, cat.Components, 2)
	assert.Equal(t, "@/components/actions/Button", cat.Components[0].ImportPath)

	out, _, err = runCLI(t, "inspect", "-catalog", catalogPath, "button")
	require.NoError(t, err)
	assert.Contains(t, out, "Button  [actions]")
	assert.Contains(t, out, `import Button from "@/components/actions/Button"`)
	assert.Contains(t, out, "allowed: small | large")
	assert.Contains(t, out, "Visual density")
	assert.Regexp(t, `onClick\s+func\s+yes`, out)

	out, _, err = runCLI(t, "inspect", "Card", "-catalog", catalogPath, "-json")
	require.NoError(t, err)
	var comp catalog.Component
	require.NoError(t, json.Unmarshal([]byte(out), &comp))
	assert.Equal(t, "named", comp.Export)

	_, _, err = runCLI(t, "inspect", "-catalog", catalogPath, "Tooltip")
	assert.ErrorContains(t, err, `component "Tooltip" not found`)

	_, _, err = runCLI(t, "inspect", "Button")
	assert.ErrorIs(t, err, errUsage)
}

// --- check ---

func TestCheck(t *testing.T) {
	dir := fixtureTree(t)
	catalogPath := filepath.Join(t.TempDir(), "catalog.json")
	_, _, err := runCLI(t, "scan", dir, "-catalog", catalogPath)
	require.NoError(t, err)

	pages := t.TempDir()
	good := filepath.Join(pages, "Good.jsx")
	writeFile(t, good, "export default () => <Card title=\"Hi\"><Button onClick={go} /></Card>;\n")
	bad := filepath.Join(pages, "Bad.jsx")
	writeFile(t, bad, "export default () => <Button size=\"huge\" />;\n")

	out, _, err := runCLI(t, "check", "-catalog", catalogPath, good)
	require.NoError(t, err)
	assert.Contains(t, out, "2 usages checked, no problems")

	out, _, err = runCLI(t, "check", "-catalog", catalogPath, good, bad)
	assert.ErrorIs(t, err, errViolations)
	assert.Contains(t, out, bad+":1:22: error missing-required-prop")
	assert.Contains(t, out, "invalid-enum-value")
	assert.Contains(t, out, "(one of: small | large)")

	out, _, err = runCLI(t, "check", "-json", "-catalog", catalogPath, bad)
	assert.ErrorIs(t, err, errViolations)
	var results []validator.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Len(t, results[0].Violations, 2)

	_, _, err = runCLI(t, "check", bad)
	assert.ErrorIs(t, err, errUsage)
}

// --- calls ---

func TestCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")
	logger, err := mcplog.NewLogger(path)
	require.NoError(t, err)
	for _, e := range []mcplog.LogEntry{
		{Tool: "extract_props", DurationMs: 10},
		{Tool: "extract_props", DurationMs: 30, IsError: true},
		{Tool: "scan_props", DurationMs: 500},
	} {
		require.NoError(t, logger.Write(e))
	}
	require.NoError(t, logger.Close())

	out, _, err := runCLI(t, "calls", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^extract_props\s+2\s+1\s+20\s+30`, lines[1])

	out, _, err = runCLI(t, "calls", "-json", path)
	require.NoError(t, err)
	var summary []mcplog.ToolSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Len(t, summary, 2)
}

// --- watch ---

func TestWatchState(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	var out bytes.Buffer
	state := &watchState{
		results:     map[string]*extract.Result{},
		root:        dir,
		catalogPath: catalogPath,
		out:         &out,
		stderr:      &bytes.Buffer{},
		logger:      util.Discard(),
	}
	file := filepath.Join(dir, "Button.jsx")

	state.handle(watch.Event{File: file, Result: &extract.Result{Component: "Button", File: file, Keys: []string{}}})
	cat, _, err := catalog.Load(catalogPath)
	require.NoError(t, err)
	assert.Len(t, cat.Components, 1)

	state.handle(watch.Event{File: file, Removed: true})
	cat, _, err = catalog.Load(catalogPath)
	require.NoError(t, err)
	assert.Empty(t, cat.Components)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var last watchEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	assert.True(t, last.Removed)
}
