package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/propspec/pkg/config"
	"github.com/gnana997/propspec/pkg/extract"
	"github.com/gnana997/propspec/pkg/util"
)

// fakeTarget treats files whose content starts with "component" as
// components and everything else as helper modules.
type fakeTarget struct {
	mu          sync.Mutex
	extracted   []string
	invalidated []string
	purges      int
}

func (f *fakeTarget) ExtractFile(_ context.Context, path string) (*extract.Result, error) {
	f.mu.Lock()
	f.extracted = append(f.extracted, filepath.Base(path))
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read component: %w", err)
	}
	if len(data) >= 9 && string(data[:9]) == "component" {
		return &extract.Result{Component: filepath.Base(path), File: path}, nil
	}
	return nil, fmt.Errorf("%s: %w", path, extract.ErrComponentNotFound)
}

func (f *fakeTarget) Invalidate(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, filepath.Base(path))
}

func (f *fakeTarget) Purge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
}

func (f *fakeTarget) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted, f.invalidated, f.purges = nil, nil, 0
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newWatcher(t *testing.T, target Target, rec *recorder) *Watcher {
	t.Helper()
	cfg := config.Default()
	w, err := New(target, Options{
		Include:  cfg.Include,
		Exclude:  cfg.Exclude,
		Debounce: 20 * time.Millisecond,
	}, rec.handle, util.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestChanged_Component(t *testing.T) {
	dir := t.TempDir()
	button := filepath.Join(dir, "Button.jsx")
	card := filepath.Join(dir, "Card.jsx")
	writeFile(t, button, "component")
	writeFile(t, card, "component")

	target := &fakeTarget{}
	rec := &recorder{}
	w := newWatcher(t, target, rec)
	w.Track(card)

	w.changed(button)

	assert.Equal(t, []string{button, card}, w.Components())
	events := rec.take()
	require.Len(t, events, 2)
	assert.Equal(t, button, events[0].File)
	require.NotNil(t, events[0].Result)
	assert.NoError(t, events[0].Err)
	assert.Equal(t, card, events[1].File)

	assert.Equal(t, []string{"Button.jsx"}, target.invalidated)
	assert.Equal(t, 1, target.purges)
}

func TestChanged_HelperRefreshesComponents(t *testing.T) {
	dir := t.TempDir()
	button := filepath.Join(dir, "Button.jsx")
	helper := filepath.Join(dir, "sizes.js")
	writeFile(t, button, "component")
	writeFile(t, helper, "export const SIZES = [];")

	target := &fakeTarget{}
	rec := &recorder{}
	w := newWatcher(t, target, rec)
	w.Track(button)

	w.changed(helper)

	events := rec.take()
	require.Len(t, events, 1)
	assert.Equal(t, button, events[0].File)
	assert.Equal(t, []string{"sizes.js", "Button.jsx"}, target.extracted)
	assert.Equal(t, []string{button}, w.Components())
}

func TestChanged_ComponentLosesSchema(t *testing.T) {
	dir := t.TempDir()
	button := filepath.Join(dir, "Button.jsx")
	writeFile(t, button, "plain module")

	rec := &recorder{}
	w := newWatcher(t, &fakeTarget{}, rec)
	w.Track(button)

	w.changed(button)

	events := rec.take()
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, extract.ErrComponentNotFound)
	assert.Empty(t, w.Components())
}

func TestRemoved(t *testing.T) {
	dir := t.TempDir()
	button := filepath.Join(dir, "Button.jsx")
	card := filepath.Join(dir, "Card.jsx")
	writeFile(t, card, "component")

	target := &fakeTarget{}
	rec := &recorder{}
	w := newWatcher(t, target, rec)
	w.Track(button, card)

	w.removed(button)

	events := rec.take()
	require.Len(t, events, 2)
	assert.Equal(t, Event{File: button, Removed: true}, events[0])
	assert.Equal(t, card, events[1].File)
	assert.Equal(t, []string{card}, w.Components())

	// a vanished file reported as changed is handled as a removal
	w.changed(card)
	require.NoError(t, os.Remove(card))
	target.reset()
	w.changed(card)
	events = rec.take()
	require.NotEmpty(t, events)
	assert.Equal(t, Event{File: card, Removed: true}, events[len(events)-1])
	assert.Empty(t, w.Components())
}

func TestRefresh_DropsMissingComponents(t *testing.T) {
	dir := t.TempDir()
	helper := filepath.Join(dir, "sizes.js")
	writeFile(t, helper, "export {}")
	gone := filepath.Join(dir, "Gone.jsx")

	rec := &recorder{}
	w := newWatcher(t, &fakeTarget{}, rec)
	w.Track(gone)

	w.changed(helper)

	events := rec.take()
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, fs.ErrNotExist)
	assert.Empty(t, w.Components())
}

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, &fakeTarget{}, &recorder{})
	w.root = dir

	assert.True(t, w.matches(filepath.Join(dir, "src", "Button.jsx")))
	assert.False(t, w.matches(filepath.Join(dir, "src", "Button.test.jsx")))
	assert.False(t, w.matches(filepath.Join(dir, "README.md")))
	assert.False(t, w.matches(filepath.Join(filepath.Dir(dir), "Other.jsx")))

	assert.True(t, w.ignoreDir(filepath.Join(dir, "node_modules")))
	assert.True(t, w.ignoreDir(filepath.Join(dir, ".git")))
	assert.False(t, w.ignoreDir(filepath.Join(dir, "src")))
}

func TestStartStop(t *testing.T) {
	w := newWatcher(t, &fakeTarget{}, &recorder{})

	require.NoError(t, w.Start(context.Background(), t.TempDir()))
	assert.True(t, w.GetStats().IsRunning)
	assert.Error(t, w.Start(context.Background(), t.TempDir()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.GetStats().IsRunning)
	assert.Error(t, w.Start(context.Background(), t.TempDir()))
}

func TestWatch_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	button := filepath.Join(dir, "src", "Button.jsx")
	writeFile(t, button, `import PropTypes from 'prop-types';
export default class Button extends React.Component {
  static propTypes = { size: PropTypes.string };
}
`)

	ex, err := extract.New(config.Default(), util.Discard())
	require.NoError(t, err)
	defer ex.Close()

	events := make(chan Event, 16)
	cfg := ex.Config()
	w, err := New(ex, Options{Include: cfg.Include, Exclude: cfg.Exclude, Debounce: 50 * time.Millisecond},
		func(ev Event) { events <- ev }, util.Discard())
	require.NoError(t, err)
	defer w.Stop()

	first, err := ex.ExtractFile(context.Background(), button)
	require.NoError(t, err)
	assert.Equal(t, []string{"size"}, first.Keys)
	w.Track(first.File)

	require.NoError(t, w.Start(context.Background(), dir))

	writeFile(t, button, `import PropTypes from 'prop-types';
export default class Button extends React.Component {
  static propTypes = { size: PropTypes.string, label: PropTypes.node };
}
`)

	select {
	case ev := <-events:
		require.NoError(t, ev.Err)
		assert.Equal(t, first.File, ev.File)
		assert.Equal(t, []string{"size", "label"}, ev.Result.Keys)
	case <-time.After(5 * time.Second):
		t.Fatal("no event after modifying the component")
	}
}
