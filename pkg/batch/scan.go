package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/gnana997/propspec/pkg/config"
	"github.com/gnana997/propspec/pkg/extract"
	"github.com/gnana997/propspec/pkg/util"
)

// ProgressCallback is called after each file with the number of files
// finished so far.
type ProgressCallback func(done, total int, file string)

// Options configures a scan.
type Options struct {
	Include   []string
	Exclude   []string
	Gitignore bool

	// Workers is the number of concurrent extractions. 0 selects
	// util.GetOptimalPoolSize().
	Workers int

	Progress ProgressCallback
}

// OptionsFromConfig returns the scan options cfg describes.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Include:   cfg.Include,
		Exclude:   cfg.Exclude,
		Gitignore: !cfg.NoGitignore,
		Workers:   cfg.Workers,
	}
}

// Skipped is a file without a documented component.
type Skipped struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Failure is a file whose component could not be extracted.
type Failure struct {
	File  string `json:"file"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Stats summarizes a scan.
type Stats struct {
	FilesDiscovered  int   `json:"filesDiscovered"`
	FilesExtracted   int   `json:"filesExtracted"`
	FilesSkipped     int   `json:"filesSkipped"`
	FilesFailed      int   `json:"filesFailed"`
	PropsExtracted   int   `json:"propsExtracted"`
	Workers          int   `json:"workers"`
	DiscoveryTimeMs  int64 `json:"discoveryTimeMs"`
	ExtractionTimeMs int64 `json:"extractionTimeMs"`
	TotalTimeMs      int64 `json:"totalTimeMs"`
}

// Report is the outcome of a scan. Every list is sorted by file.
type Report struct {
	Root     string            `json:"root"`
	Results  []*extract.Result `json:"results"`
	Skipped  []Skipped         `json:"skipped,omitempty"`
	Failures []Failure         `json:"failures,omitempty"`
	Stats    Stats             `json:"stats"`
}

// Scan discovers the files under root and extracts each one. A failing
// file is recorded in the report and never stops the scan. The returned
// error is non-nil only when discovery fails or ctx ends early; in the
// latter case the partial report is returned too.
func Scan(ctx context.Context, ex FileExtractor, root string, opts Options, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	logger.Info("starting scan", "root", absRoot)

	files, err := Discover(absRoot, opts.Include, opts.Exclude, opts.Gitignore)
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}
	discoveryTime := time.Since(start)

	logger.Info("file discovery complete",
		"files_found", len(files),
		"duration_ms", discoveryTime.Milliseconds())

	report := Run(ctx, ex, files, opts, logger)
	report.Root = absRoot
	report.Stats.DiscoveryTimeMs = discoveryTime.Milliseconds()
	report.Stats.TotalTimeMs = time.Since(start).Milliseconds()

	logger.Info("scan complete",
		"root", absRoot,
		"components", report.Stats.FilesExtracted,
		"skipped", report.Stats.FilesSkipped,
		"failed", report.Stats.FilesFailed,
		"duration_ms", report.Stats.TotalTimeMs)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// Run extracts the given files on a worker pool and collects the outcome.
// Discovery fields of the report are left empty.
func Run(ctx context.Context, ex FileExtractor, files []string, opts Options, logger *slog.Logger) *Report {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	report := &Report{Results: []*extract.Result{}}
	report.Stats.FilesDiscovered = len(files)
	report.Stats.Workers = util.GetOptimalPoolSizeWithOverride(opts.Workers)

	if len(files) == 0 {
		logger.Warn("no files found matching criteria")
		return report
	}

	pool := NewWorkerPool(ctx, report.Stats.Workers, ex, logger)
	pool.Start()

	// submission runs beside the collector so a full result channel never
	// blocks the job queue
	go func() {
		defer pool.Stop()
		for i, file := range files {
			if err := pool.Submit(FileJob{FilePath: file, JobID: i}); err != nil {
				logger.Debug("stopped submitting jobs", "remaining", len(files)-i, "error", err)
				return
			}
		}
	}()

	done := 0
	progress := func(file string) {
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(files), file)
		}
	}

	results, errs := pool.Results(), pool.Errors()
	for results != nil || errs != nil {
		select {
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			report.Results = append(report.Results, res.Result)
			report.Stats.FilesExtracted++
			report.Stats.PropsExtracted += len(res.Result.Keys)
			progress(res.FilePath)

		case fe, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if extract.IsSkippable(fe.Err) {
				report.Skipped = append(report.Skipped, Skipped{
					File:   fe.FilePath,
					Reason: extract.Kind(fe.Err),
				})
				report.Stats.FilesSkipped++
			} else {
				logger.Warn("extraction failed", "file", fe.FilePath, "error", fe.Err)
				report.Failures = append(report.Failures, Failure{
					File:  fe.FilePath,
					Kind:  extract.Kind(fe.Err),
					Error: fe.Err.Error(),
				})
				report.Stats.FilesFailed++
			}
			progress(fe.FilePath)
		}
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].File < report.Results[j].File
	})
	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].File < report.Skipped[j].File
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].File < report.Failures[j].File
	})

	report.Stats.ExtractionTimeMs = time.Since(start).Milliseconds()
	return report
}
