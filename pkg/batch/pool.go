package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gnana997/propspec/pkg/extract"
	"github.com/gnana997/propspec/pkg/util"
)

// FileExtractor is the part of extract.Extractor the pool needs.
type FileExtractor interface {
	ExtractFile(ctx context.Context, path string) (*extract.Result, error)
}

// FileJob is a file queued for extraction.
type FileJob struct {
	FilePath string
	JobID    int
}

// FileResult is a successful extraction.
type FileResult struct {
	FilePath string
	Result   *extract.Result
	JobID    int
}

// FileError is a failed extraction.
type FileError struct {
	FilePath string
	Err      error
	JobID    int
}

// ErrPoolStopped is returned by Submit once the pool no longer accepts jobs.
var ErrPoolStopped = errors.New("worker pool is stopped")

// WorkerPool runs extractions on a fixed number of goroutines.
//
// Usage:
//
//	pool := NewWorkerPool(ctx, workers, extractor, logger)
//	pool.Start()
//	defer pool.Stop()
//
//	go func() {
//	    for i, file := range files {
//	        pool.Submit(FileJob{FilePath: file, JobID: i})
//	    }
//	    pool.FinishSubmitting()
//	}()
//
//	// read Results() and Errors() until both are closed by Stop
//
// The worker count should match the parser pool size of the extractor,
// otherwise workers queue on parser checkout.
type WorkerPool struct {
	numWorkers int
	jobs       chan FileJob
	results    chan FileResult
	errors     chan FileError
	wg         sync.WaitGroup
	extractor  FileExtractor
	logger     *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	started    atomic.Bool
	stopped    atomic.Bool
	jobsClosed atomic.Bool
	closeOnce  sync.Once

	jobsSubmitted atomic.Int64
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
}

// NewWorkerPool creates a pool. numWorkers 0 selects
// util.GetOptimalPoolSize(). Cancelling ctx stops the workers after their
// current job.
func NewWorkerPool(ctx context.Context, numWorkers int, extractor FileExtractor, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	numWorkers = util.GetOptimalPoolSizeWithOverride(numWorkers)
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make(chan FileJob, numWorkers*2),
		results:    make(chan FileResult, numWorkers),
		errors:     make(chan FileError, numWorkers),
		extractor:  extractor,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start spawns the workers. Calls after the first are ignored.
func (wp *WorkerPool) Start() {
	if !wp.started.CompareAndSwap(false, true) {
		wp.logger.Warn("worker pool already started")
		return
	}

	wp.logger.Debug("starting worker pool", "workers", wp.numWorkers)
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug("worker cancelled", "worker_id", id)
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.processJob(id, job)
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job FileJob) {
	result, err := wp.extractor.ExtractFile(wp.ctx, job.FilePath)
	if err != nil {
		wp.logger.Debug("extraction failed",
			"worker_id", workerID,
			"file", job.FilePath,
			"error", err)
		wp.jobsFailed.Add(1)
		wp.errors <- FileError{FilePath: job.FilePath, Err: err, JobID: job.JobID}
		return
	}

	wp.jobsProcessed.Add(1)
	wp.results <- FileResult{FilePath: job.FilePath, Result: result, JobID: job.JobID}
}

// Submit enqueues a job, blocking while the queue is full.
func (wp *WorkerPool) Submit(job FileJob) error {
	if wp.stopped.Load() || wp.jobsClosed.Load() {
		return ErrPoolStopped
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		wp.jobsSubmitted.Add(1)
		return nil
	}
}

// Results delivers successful extractions. It is closed by Stop.
func (wp *WorkerPool) Results() <-chan FileResult {
	return wp.results
}

// Errors delivers failed extractions. It is closed by Stop.
func (wp *WorkerPool) Errors() <-chan FileError {
	return wp.errors
}

// FinishSubmitting closes the job queue. Workers exit once it is drained.
// Safe to call more than once. Must not race with Submit.
func (wp *WorkerPool) FinishSubmitting() {
	if wp.jobsClosed.CompareAndSwap(false, true) {
		close(wp.jobs)
		wp.logger.Debug("job queue closed", "total_submitted", wp.jobsSubmitted.Load())
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop closes the job queue, waits for in-flight jobs and closes the
// result and error channels. Safe to call more than once; the channels
// must be drained concurrently or Stop can block on a full channel.
func (wp *WorkerPool) Stop() {
	if !wp.stopped.CompareAndSwap(false, true) {
		return
	}

	wp.FinishSubmitting()
	wp.wg.Wait()
	wp.closeOnce.Do(func() {
		close(wp.results)
		close(wp.errors)
	})
	wp.cancel()

	wp.logger.Debug("worker pool stopped",
		"jobs_submitted", wp.jobsSubmitted.Load(),
		"jobs_processed", wp.jobsProcessed.Load(),
		"jobs_failed", wp.jobsFailed.Load())
}

// GetStats returns a snapshot of the pool counters.
func (wp *WorkerPool) GetStats() WorkerPoolStats {
	return WorkerPoolStats{
		NumWorkers:    wp.numWorkers,
		JobsSubmitted: wp.jobsSubmitted.Load(),
		JobsProcessed: wp.jobsProcessed.Load(),
		JobsFailed:    wp.jobsFailed.Load(),
		QueueLength:   len(wp.jobs),
	}
}

// WorkerPoolStats contains worker pool counters.
type WorkerPoolStats struct {
	NumWorkers    int
	JobsSubmitted int64
	JobsProcessed int64
	JobsFailed    int64
	QueueLength   int
}
