package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fatih/color"

	"github.com/gnana997/propspec/pkg/batch"
	"github.com/gnana997/propspec/pkg/catalog"
	"github.com/gnana997/propspec/pkg/extract"
	mcpserver "github.com/gnana997/propspec/pkg/mcp"
	"github.com/gnana997/propspec/pkg/mcplog"
	"github.com/gnana997/propspec/pkg/validator"
	"github.com/gnana997/propspec/pkg/watch"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

// errFailures reports that some files failed to extract. The details have
// already been printed.
var errFailures = errors.New("extraction failed")

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- extract ---

func runExtract(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("extract", "[flags] <file>...", stderr)
	var common commonFlags
	common.register(fs)

	files, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, common.verbose, stderr)

	ex, err := extract.New(cfg, logger)
	if err != nil {
		return err
	}
	defer ex.Close()

	results := make([]*extract.Result, 0, len(files))
	failed := 0
	for _, file := range files {
		res, err := ex.ExtractFile(ctx, file)
		if err != nil {
			failed++
			red.Fprintf(stderr, "✗ %s: %v\n", file, err)
			continue
		}
		results = append(results, res)
	}

	if len(files) == 1 {
		if len(results) == 1 {
			if err := writeJSON(stdout, results[0]); err != nil {
				return err
			}
		}
	} else if err := writeJSON(stdout, results); err != nil {
		return err
	}

	if failed > 0 {
		return errFailures
	}
	return nil
}

// --- scan ---

func runScan(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("scan", "[flags] <dir>", stderr)
	var common commonFlags
	common.register(fs)
	catalogPath := fs.String("catalog", "", "write a component catalog to this file instead of printing the report")
	name := fs.String("name", "", "catalog name (default: directory name)")
	importPrefix := fs.String("import-prefix", "", "replace ./ in catalog import paths, for example @/components")
	workers := fs.Int("workers", 0, "concurrent extractions (default: config, then one per CPU)")
	strict := fs.Bool("strict", false, "exit non-zero when any component fails to extract")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		fs.Usage()
		return errUsage
	}
	root := positional[0]

	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, common.verbose, stderr)

	ex, err := extract.New(cfg, logger)
	if err != nil {
		return err
	}
	defer ex.Close()

	opts := batch.OptionsFromConfig(cfg)
	if *workers > 0 {
		opts.Workers = *workers
	}
	opts.Progress = func(done, total int, file string) {
		logger.Debug("extracted", "file", file, "done", done, "total", total)
	}

	report, err := batch.Scan(ctx, ex, root, opts, logger)
	if err != nil && report == nil {
		return err
	}

	if *catalogPath != "" {
		cat := catalog.BuildWithConfig(report.Results, catalog.BuildConfig{
			Name:         *name,
			RootDir:      report.Root,
			ImportPrefix: *importPrefix,
			Source:       "propspec " + version,
		})
		if errs := cat.Validate(); len(errs) > 0 {
			return fmt.Errorf("%w: %w", catalog.ErrInvalidCatalog, errors.Join(errs...))
		}
		if err := cat.Save(*catalogPath); err != nil {
			return err
		}
		green.Fprintf(stderr, "wrote %s (%d components)\n", *catalogPath, len(cat.Components))
	} else if werr := writeJSON(stdout, report); werr != nil {
		return werr
	}

	printScanSummary(stderr, report)

	if err != nil {
		return err
	}
	if *strict && len(report.Failures) > 0 {
		return errFailures
	}
	return nil
}

func printScanSummary(w io.Writer, report *batch.Report) {
	for _, f := range report.Failures {
		red.Fprintf(w, "✗ %s [%s]: %s\n", f.File, f.Kind, f.Error)
	}
	st := report.Stats
	bold.Fprintf(w, "%d components", st.FilesExtracted)
	fmt.Fprintf(w, ", %d props from %d files", st.PropsExtracted, st.FilesDiscovered)
	if st.FilesSkipped > 0 {
		fmt.Fprintf(w, ", %d without components", st.FilesSkipped)
	}
	if st.FilesFailed > 0 {
		red.Fprintf(w, ", %d failed", st.FilesFailed)
	}
	fmt.Fprintf(w, " in %dms\n", st.TotalTimeMs)
}

// --- watch ---

// watchEvent is one JSON line printed by the watch command.
type watchEvent struct {
	File    string          `json:"file"`
	Removed bool            `json:"removed,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Error   string          `json:"error,omitempty"`
	Result  *extract.Result `json:"result,omitempty"`
}

// watchState holds the current components of a watched tree and keeps
// the catalog file in sync with them.
type watchState struct {
	mu          sync.Mutex
	results     map[string]*extract.Result
	root        string
	catalogPath string
	out         io.Writer
	stderr      io.Writer
	logger      *slog.Logger
}

func (s *watchState) handle(ev watch.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := watchEvent{File: ev.File, Removed: ev.Removed, Result: ev.Result}
	switch {
	case ev.Removed:
		delete(s.results, ev.File)
		yellow.Fprintf(s.stderr, "- %s\n", ev.File)
	case ev.Err != nil:
		delete(s.results, ev.File)
		line.Kind = extract.Kind(ev.Err)
		line.Error = ev.Err.Error()
		red.Fprintf(s.stderr, "✗ %s: %v\n", ev.File, ev.Err)
	default:
		s.results[ev.File] = ev.Result
		green.Fprintf(s.stderr, "✓ %s (%d props)\n", ev.File, len(ev.Result.Keys))
	}

	if err := json.NewEncoder(s.out).Encode(line); err != nil {
		s.logger.Warn("failed to write event", "error", err)
	}
	if s.catalogPath != "" {
		if err := s.saveCatalog(); err != nil {
			s.logger.Error("failed to update catalog", "path", s.catalogPath, "error", err)
		}
	}
}

// saveCatalog must be called with s.mu held.
func (s *watchState) saveCatalog() error {
	files := make([]string, 0, len(s.results))
	for file := range s.results {
		files = append(files, file)
	}
	sort.Strings(files)
	results := make([]*extract.Result, len(files))
	for i, file := range files {
		results[i] = s.results[file]
	}
	cat := catalog.BuildWithConfig(results, catalog.BuildConfig{RootDir: s.root, Source: "propspec " + version})
	return cat.Save(s.catalogPath)
}

func runWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("watch", "[flags] <dir>", stderr)
	var common commonFlags
	common.register(fs)
	catalogPath := fs.String("catalog", "", "keep a component catalog up to date in this file")
	debounce := fs.Duration("debounce", watch.DefaultDebounce, "quiet period before a changed file is extracted")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		fs.Usage()
		return errUsage
	}

	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, common.verbose, stderr)

	root, err := filepath.Abs(positional[0])
	if err != nil {
		return fmt.Errorf("failed to resolve root path: %w", err)
	}

	ex, err := extract.New(cfg, logger)
	if err != nil {
		return err
	}
	defer ex.Close()

	report, err := batch.Scan(ctx, ex, root, batch.OptionsFromConfig(cfg), logger)
	if err != nil {
		return err
	}
	printScanSummary(stderr, report)

	state := &watchState{
		results:     make(map[string]*extract.Result, len(report.Results)),
		root:        report.Root,
		catalogPath: *catalogPath,
		out:         stdout,
		stderr:      stderr,
		logger:      logger,
	}
	components := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		state.results[res.File] = res
		components = append(components, res.File)
	}
	// Failed components are tracked too so a fix is picked up.
	for _, f := range report.Failures {
		components = append(components, f.File)
	}
	if *catalogPath != "" {
		if err := state.saveCatalog(); err != nil {
			return err
		}
	}

	w, err := watch.New(ex, watch.Options{
		Include:  cfg.Include,
		Exclude:  cfg.Exclude,
		Debounce: *debounce,
	}, state.handle, logger)
	if err != nil {
		return err
	}
	w.Track(components...)

	if err := w.Start(ctx, report.Root); err != nil {
		return err
	}
	bold.Fprintf(stderr, "watching %s (%d components), press Ctrl+C to stop\n", report.Root, len(components))

	<-ctx.Done()
	return w.Stop()
}

// --- serve ---

func runServe(ctx context.Context, args []string, _ io.Writer, stderr io.Writer) error {
	fs := newFlagSet("serve", "[flags]", stderr)
	var common commonFlags
	common.register(fs)
	catalogPath := fs.String("catalog", "", "catalog file enabling the catalog query tools")
	callLog := fs.String("call-log", "", "append a JSONL record of every tool call to this file")
	root := fs.String("root", "", "directory for relative tool paths (default: working directory)")

	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, common.verbose, stderr)

	ex, err := extract.New(cfg, logger)
	if err != nil {
		return err
	}
	defer ex.Close()

	opts := mcpserver.Options{
		Root:   *root,
		Scan:   batch.OptionsFromConfig(cfg),
		Logger: logger,
	}
	if *catalogPath != "" {
		qs, err := catalog.LoadAndQuery(*catalogPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		opts.Catalog = qs

		v := validator.New(qs, logger)
		defer v.Close()
		opts.Validator = v
	}
	calls, err := mcplog.NewLogger(*callLog)
	if err != nil {
		return err
	}
	if calls != nil {
		defer calls.Close()
		opts.CallLog = calls
	}

	srv := mcpserver.NewServer(ex, opts)
	logger.Info("serving MCP on stdio", "catalog", *catalogPath != "")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// --- calls ---

func runCalls(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("calls", "[flags] <call-log.jsonl>", stderr)
	asJSON := fs.Bool("json", false, "print the summary as JSON")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		fs.Usage()
		return errUsage
	}

	entries, err := mcplog.ReadEntries(positional[0])
	if err != nil {
		return err
	}
	summary := mcplog.Summarize(entries)
	if *asJSON {
		return writeJSON(stdout, summary)
	}

	if len(summary) == 0 {
		fmt.Fprintln(stdout, "no tool calls")
		return nil
	}
	toolW := len("TOOL")
	for _, s := range summary {
		toolW = max(toolW, len(s.Tool))
	}
	fmt.Fprintf(stdout, "%-*s  %6s  %6s  %8s  %8s  %10s\n", toolW, "TOOL", "CALLS", "ERRORS", "AVG MS", "MAX MS", "BYTES")
	for _, s := range summary {
		fmt.Fprintf(stdout, "%-*s  %6d  %6d  %8d  %8d  %10d\n", toolW, s.Tool, s.Calls, s.Errors, s.AvgMs(), s.MaxMs, s.ResponseBytes)
	}
	return nil
}
