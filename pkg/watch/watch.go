// Package watch re-extracts components when their sources change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gnana997/propspec/pkg/batch"
	"github.com/gnana997/propspec/pkg/extract"
)

// DefaultDebounce groups the events of one save.
const DefaultDebounce = 200 * time.Millisecond

// Target is the extractor the watcher drives.
type Target interface {
	ExtractFile(ctx context.Context, path string) (*extract.Result, error)
	Invalidate(path string)
	Purge()
}

// Event reports the outcome of a re-extraction.
type Event struct {
	File    string
	Result  *extract.Result
	Err     error
	Removed bool
}

// Handler receives events. It is called from timer goroutines, one event
// at a time.
type Handler func(Event)

// Options configures a Watcher.
type Options struct {
	// Include and Exclude select the watched files, as in a scan.
	Include []string
	Exclude []string

	// Debounce is the quiet period before a changed file is processed.
	Debounce time.Duration
}

// Watcher watches a source tree and re-extracts changed components.
//
// A change to a component file re-extracts that file. A change to any other
// matching file may alter what a component imports, so every tracked
// component is re-extracted.
//
// Usage:
//
//	w, err := watch.New(extractor, watch.Options{Include: cfg.Include}, handle, logger)
//	if err != nil {
//	    return err
//	}
//	w.Track(initialComponents...)
//	if err := w.Start(ctx, root); err != nil {
//	    return err
//	}
//	defer w.Stop()
type Watcher struct {
	watcher *fsnotify.Watcher
	target  Target
	handler Handler
	options Options
	logger  *slog.Logger
	root    string

	ctx    context.Context
	cancel context.CancelFunc

	// process serializes re-extraction and handler calls
	process sync.Mutex

	componentsMu sync.Mutex
	components   map[string]struct{}

	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool
	mu       sync.Mutex
}

// New creates a Watcher. Nothing is watched until Start.
func New(target Target, options Options, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}
	if handler == nil {
		handler = func(Event) {}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		watcher:        fsw,
		target:         target,
		handler:        handler,
		options:        options,
		logger:         logger,
		components:     make(map[string]struct{}),
		debounceTimers: make(map[string]*time.Timer),
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Track marks files as known components, re-extracted whenever a
// dependency might have changed.
func (w *Watcher) Track(paths ...string) {
	w.componentsMu.Lock()
	defer w.componentsMu.Unlock()
	for _, p := range paths {
		w.components[p] = struct{}{}
	}
}

// Components returns the tracked component files, sorted.
func (w *Watcher) Components() []string {
	w.componentsMu.Lock()
	defer w.componentsMu.Unlock()
	out := make([]string, 0, len(w.components))
	for p := range w.components {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) untrack(path string) bool {
	w.componentsMu.Lock()
	defer w.componentsMu.Unlock()
	_, ok := w.components[path]
	delete(w.components, path)
	return ok
}

// Start watches root and every directory below it that a scan would visit.
// Extractions run under ctx until Stop.
func (w *Watcher) Start(ctx context.Context, root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("watcher already stopped")
	}
	if w.started {
		return errors.New("watcher already started")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	w.root = absRoot

	if err := w.addTree(absRoot); err != nil {
		return fmt.Errorf("failed to setup watches: %w", err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	go w.eventLoop()

	w.logger.Info("file watcher started", "root", absRoot)
	return nil
}

// addTree adds dir and its subdirectories to the watch list.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignoreDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Stop stops watching and cancels pending work. Safe to call more than
// once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	close(w.stopChan)
	w.mu.Unlock()

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	w.debounceTimers = make(map[string]*time.Timer)
	w.debounceMu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	if started {
		<-w.done
	}
	w.logger.Info("file watcher stopped")
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.ignoreDir(path) {
				if err := w.addTree(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !w.matches(path) {
		return
	}

	w.logger.Debug("file event", "op", event.Op.String(), "file", path)

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.debounce(path, func() { w.changed(path) })
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.debounce(path, func() { w.removed(path) })
	}
}

// debounce runs fn once no new event arrived for path during the debounce
// period.
func (w *Watcher) debounce(path string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[path]; exists {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.options.Debounce, func() {
		w.debounceMu.Lock()
		if w.debounceTimers[path] == timer {
			delete(w.debounceTimers, path)
		}
		w.debounceMu.Unlock()

		select {
		case <-w.stopChan:
			return
		default:
		}
		fn()
	})
	w.debounceTimers[path] = timer
}

// changed re-extracts path, or every tracked component when path is not
// a component itself.
func (w *Watcher) changed(path string) {
	w.process.Lock()
	defer w.process.Unlock()

	w.target.Invalidate(path)
	w.target.Purge()

	res, err := w.target.ExtractFile(w.context(), path)
	if errors.Is(err, fs.ErrNotExist) {
		if w.untrack(path) {
			w.handler(Event{File: path, Removed: true})
		}
		w.refreshComponents(path)
		return
	}
	if extract.IsSkippable(err) {
		wasComponent := w.untrack(path)
		if wasComponent {
			w.handler(Event{File: path, Err: err})
		}
		w.logger.Debug("dependency changed", "file", path)
		w.refreshComponents(path)
		return
	}

	w.Track(path)
	w.handler(Event{File: path, Result: res, Err: err})
	w.refreshComponents(path)
}

func (w *Watcher) removed(path string) {
	w.process.Lock()
	defer w.process.Unlock()

	w.target.Invalidate(path)
	w.target.Purge()

	if w.untrack(path) {
		w.handler(Event{File: path, Removed: true})
	}
	w.refreshComponents(path)
}

// refreshComponents re-extracts every tracked component except skip.
func (w *Watcher) refreshComponents(skip string) {
	for _, file := range w.Components() {
		if file == skip {
			continue
		}
		select {
		case <-w.stopChan:
			return
		default:
		}
		res, err := w.target.ExtractFile(w.context(), file)
		if errors.Is(err, fs.ErrNotExist) || extract.IsSkippable(err) {
			w.untrack(file)
		}
		w.handler(Event{File: file, Result: res, Err: err})
	}
}

func (w *Watcher) context() context.Context {
	if w.ctx != nil {
		return w.ctx
	}
	return context.Background()
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) matches(path string) bool {
	rel, ok := w.relative(path)
	if !ok {
		return false
	}
	return batch.Matches(w.options.Include, w.options.Exclude, rel)
}

func (w *Watcher) ignoreDir(path string) bool {
	if batch.SkipDir(filepath.Base(path)) {
		return true
	}
	rel, ok := w.relative(path)
	if !ok {
		return true
	}
	return !batch.Matches(nil, w.options.Exclude, rel)
}

// GetStats returns watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.debounceMu.Lock()
	pending := len(w.debounceTimers)
	w.debounceMu.Unlock()

	w.mu.Lock()
	running := w.started && !w.stopped
	w.mu.Unlock()

	return Stats{
		PendingFiles: pending,
		Components:   len(w.Components()),
		IsRunning:    running,
	}
}

// Stats contains watcher statistics.
type Stats struct {
	PendingFiles int
	Components   int
	IsRunning    bool
}
