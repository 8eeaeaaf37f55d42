package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/propspec/pkg/config"
	"github.com/gnana997/propspec/pkg/extract"
	"github.com/gnana997/propspec/pkg/util"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func relPaths(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func discoveryTree(t *testing.T) string {
	return writeFiles(t, map[string]string{
		".gitignore":            "generated/\n",
		"src/Button.jsx":        "",
		"src/Button.test.jsx":   "",
		"src/types.d.ts":        "",
		"src/README.md":         "",
		"node_modules/x/a.js":   "",
		"generated/Out.jsx":     "",
		"lib/.gitignore":        "*.gen.js\n",
		"lib/a.gen.js":          "",
		"lib/b.js":              "",
		"lib/nested/Card.tsx":   "",
		"lib/nested/Card.d.ts":  "",
		"stories/X.stories.tsx": "",
	})
}

func TestDiscover(t *testing.T) {
	root := discoveryTree(t)
	cfg := config.Default()

	tests := []struct {
		name      string
		gitignore bool
		want      []string
	}{
		{
			name:      "with gitignore",
			gitignore: true,
			want:      []string{"lib/b.js", "lib/nested/Card.tsx", "src/Button.jsx"},
		},
		{
			name:      "without gitignore",
			gitignore: false,
			want: []string{
				"generated/Out.jsx",
				"lib/a.gen.js",
				"lib/b.js",
				"lib/nested/Card.tsx",
				"src/Button.jsx",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := Discover(root, cfg.Include, cfg.Exclude, tt.gitignore)
			require.NoError(t, err)

			for _, f := range files {
				assert.True(t, filepath.IsAbs(f), "expected absolute path, got %s", f)
			}
			assert.Equal(t, tt.want, relPaths(t, root, files))
		})
	}
}

func TestDiscover_ExcludeDirectory(t *testing.T) {
	root := discoveryTree(t)

	files, err := Discover(root, []string{"**/*.{js,jsx,tsx}"}, []string{"lib/**"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"generated/Out.jsx", "src/Button.jsx", "src/Button.test.jsx", "stories/X.stories.tsx"},
		relPaths(t, root, files))
}

func TestDiscover_Errors(t *testing.T) {
	root := discoveryTree(t)

	_, err := Discover(root, []string{"[abc"}, nil, false)
	assert.ErrorContains(t, err, "invalid include pattern")

	_, err = Discover(root, nil, []string{"[abc"}, false)
	assert.ErrorContains(t, err, "invalid exclude pattern")

	_, err = Discover(filepath.Join(root, "missing"), nil, nil, false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Discover(filepath.Join(root, "lib", "b.js"), nil, nil, false)
	assert.ErrorContains(t, err, "not a directory")
}

// fakeExtractor answers from a fixed table keyed by file base name.
type fakeExtractor struct {
	calls atomic.Int64
	mu    sync.Mutex
	seen  []string
}

func (f *fakeExtractor) ExtractFile(_ context.Context, path string) (*extract.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, path)
	f.mu.Unlock()

	switch name := filepath.Base(path); name {
	case "util.js":
		return nil, fmt.Errorf("%s: %w", path, extract.ErrComponentNotFound)
	case "Bare.jsx":
		return nil, fmt.Errorf("%s: %w", path, extract.ErrSchemaNotFound)
	case "Broken.jsx":
		return nil, fmt.Errorf("%w: boom", extract.ErrEvaluation)
	case "Slow.jsx":
		return nil, fmt.Errorf("%w: %s", extract.ErrEvaluationTimeout, path)
	default:
		return &extract.Result{Component: name, File: path, Keys: []string{"a", "b"}}, nil
	}
}

func TestRun(t *testing.T) {
	files := []string{"/p/Zeta.jsx", "/p/util.js", "/p/Broken.jsx", "/p/Alpha.jsx", "/p/Bare.jsx", "/p/Slow.jsx"}
	fake := &fakeExtractor{}

	var progress []int
	report := Run(context.Background(), fake, files, Options{
		Workers: 2,
		Progress: func(done, total int, _ string) {
			assert.Equal(t, len(files), total)
			progress = append(progress, done)
		},
	}, util.Discard())

	assert.Equal(t, int64(len(files)), fake.calls.Load())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "/p/Alpha.jsx", report.Results[0].File)
	assert.Equal(t, "/p/Zeta.jsx", report.Results[1].File)

	assert.Equal(t, []Skipped{
		{File: "/p/Bare.jsx", Reason: "schema_not_found"},
		{File: "/p/util.js", Reason: "component_not_found"},
	}, report.Skipped)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "/p/Broken.jsx", report.Failures[0].File)
	assert.Equal(t, "evaluation", report.Failures[0].Kind)
	assert.Contains(t, report.Failures[0].Error, "boom")
	assert.Equal(t, "/p/Slow.jsx", report.Failures[1].File)
	assert.Equal(t, "timeout", report.Failures[1].Kind)

	assert.Equal(t, 6, report.Stats.FilesDiscovered)
	assert.Equal(t, 2, report.Stats.FilesExtracted)
	assert.Equal(t, 2, report.Stats.FilesSkipped)
	assert.Equal(t, 2, report.Stats.FilesFailed)
	assert.Equal(t, 4, report.Stats.PropsExtracted)
	assert.Equal(t, 2, report.Stats.Workers)
}

func TestRun_NoFiles(t *testing.T) {
	report := Run(context.Background(), &fakeExtractor{}, nil, Options{}, util.Discard())
	assert.Empty(t, report.Results)
	assert.NotNil(t, report.Results)
	assert.Equal(t, 0, report.Stats.FilesDiscovered)
}

func TestScan_Cancelled(t *testing.T) {
	root := writeFiles(t, map[string]string{"A.jsx": "", "B.jsx": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Scan(ctx, &fakeExtractor{}, root, Options{Include: []string{"*.jsx"}}, util.Discard())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Stats.FilesDiscovered)
}

func TestWorkerPool(t *testing.T) {
	fake := &fakeExtractor{}
	pool := NewWorkerPool(context.Background(), 3, fake, util.Discard())
	pool.Start()
	pool.Start()

	go func() {
		for i := 0; i < 10; i++ {
			assert.NoError(t, pool.Submit(FileJob{FilePath: fmt.Sprintf("/p/C%d.jsx", i), JobID: i}))
		}
		pool.FinishSubmitting()
		pool.FinishSubmitting()
	}()

	ids := map[int]bool{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range pool.Results() {
			ids[res.JobID] = true
		}
	}()

	pool.Wait()
	pool.Stop()
	pool.Stop()
	wg.Wait()

	assert.Len(t, ids, 10)
	stats := pool.GetStats()
	assert.Equal(t, 3, stats.NumWorkers)
	assert.Equal(t, int64(10), stats.JobsSubmitted)
	assert.Equal(t, int64(10), stats.JobsProcessed)
	assert.Equal(t, int64(0), stats.JobsFailed)

	assert.ErrorIs(t, pool.Submit(FileJob{FilePath: "/p/late.jsx"}), ErrPoolStopped)
}

func TestScan_EndToEnd(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"src/Button.jsx": `import PropTypes from 'prop-types';
import { SIZES } from './constants';

export default class Button extends React.Component {
  static propTypes = {
    /** Button size */
    size: PropTypes.oneOf(SIZES),
  };
  static defaultProps = { size: 'small' };
}
`,
		"src/constants.js": "export const SIZES = ['small', 'large'];\n",
		"src/Broken.jsx": `export default class Broken extends React.Component {
  static propTypes = { size: missing.value };
}
`,
		"src/Button.stories.jsx": "export default { title: 'Button' };\n",
	})

	ex, err := extract.New(config.Default(), util.Discard())
	require.NoError(t, err)
	defer ex.Close()

	report, err := Scan(context.Background(), ex, root, OptionsFromConfig(ex.Config()), util.Discard())
	require.NoError(t, err)

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, abs, report.Root)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, "Button", res.Component)
	assert.Equal(t, map[string]any{
		"type":                  map[string]any{"name": "enum", "value": []any{"small", "large"}},
		"required":              false,
		"description":           "Button size",
		extract.DefaultValueKey: "small",
	}, res.Props["size"])

	assert.Equal(t, []Skipped{{File: filepath.Join(abs, "src", "constants.js"), Reason: "component_not_found"}}, report.Skipped)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, filepath.Join(abs, "src", "Broken.jsx"), report.Failures[0].File)
	assert.Equal(t, "evaluation", report.Failures[0].Kind)

	assert.Equal(t, 3, report.Stats.FilesDiscovered)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.NoGitignore = true
	cfg.Workers = 7

	opts := OptionsFromConfig(cfg)
	assert.False(t, opts.Gitignore)
	assert.Equal(t, 7, opts.Workers)
	assert.Equal(t, cfg.Include, opts.Include)
	assert.Equal(t, cfg.Exclude, opts.Exclude)
	assert.Nil(t, opts.Progress)

	assert.True(t, errors.Is(fmt.Errorf("x: %w", ErrPoolStopped), ErrPoolStopped))
}
