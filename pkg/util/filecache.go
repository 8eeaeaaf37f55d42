package util

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
)

// FileCache serves source files to the extraction pipeline from memory-mapped
// regions.
//
// Two readers share one cache: the extractor reads component files, and the
// sandbox module loader reads every file a synthetic program requires. A
// batch scan over a component library requires the same helper modules over
// and over, so each file is mapped once and sliced on every later read.
//
// Entries are keyed by path and validated against the file's size and mtime
// on each access; an entry whose file changed on disk is remapped. Watch mode
// additionally calls Invalidate as soon as fsnotify reports a write.
//
// Thread Safety:
//   - All methods are safe for concurrent use
//   - Reads of cached entries only take a read lock
type FileCache interface {
	// Get returns the mapped file, loading it on first access.
	Get(filePath string) (*MappedFile, error)

	// ReadFile returns a copy of the whole file.
	//
	// The copy stays valid after Invalidate or Close unmaps the region.
	ReadFile(filePath string) ([]byte, error)

	// FetchCode returns the text between two byte offsets. (0, 0) selects
	// the whole file.
	FetchCode(filePath string, startByte, endByte uint32) (string, error)

	// Invalidate unmaps a single file so the next access reloads it.
	Invalidate(filePath string)

	// Size returns number of currently cached files.
	Size() int

	// Stats returns current cache metrics.
	Stats() FileCacheStats

	// Close unmaps all files and releases resources.
	Close() error
}

// FileCacheConfig controls FileCache behavior.
type FileCacheConfig struct {
	// MaxFiles caps the number of cached files. 0 means unlimited.
	//
	// When the limit is reached the oldest mapping is dropped.
	MaxFiles int

	// Logger for warnings. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultFileCacheConfig returns limits suitable for a component library of a
// few thousand modules.
func DefaultFileCacheConfig() *FileCacheConfig {
	return &FileCacheConfig{
		MaxFiles: 4096,
	}
}

// MappedFile is one cached source file.
type MappedFile struct {
	Path string

	// Data is the mapped region. Nil for empty files.
	Data mmap.MMap

	// File is kept open while mapped. Nil for fallback entries.
	File *os.File

	Size    int64
	ModTime time.Time

	MappedAt time.Time
}

// FileCacheStats tracks cache performance metrics.
type FileCacheStats struct {
	FilesLoaded   int64
	FilesCached   int
	CacheHits     int64
	CacheMisses   int64
	Reloads       int64
	MmapFailures  int64
	TotalMappedMB float64
}

// NewFileCache creates a new FileCache with the given config.
//
// If config is nil, uses DefaultFileCacheConfig().
func NewFileCache(config *FileCacheConfig) FileCache {
	if config == nil {
		config = DefaultFileCacheConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &fileCacheImpl{
		maxFiles: config.MaxFiles,
		logger:   logger,
		cache:    make(map[string]*MappedFile),
	}
}

type fileCacheImpl struct {
	maxFiles int
	logger   *slog.Logger

	// mu protects cache
	mu    sync.RWMutex
	cache map[string]*MappedFile

	statsMu sync.Mutex
	stats   FileCacheStats
}

// Get returns the mapped file or loads it on first access.
func (fc *fileCacheImpl) Get(filePath string) (*MappedFile, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		fc.recordMiss()
		return nil, fmt.Errorf("failed to stat file %q: %w", filePath, err)
	}
	if stat.IsDir() {
		fc.recordMiss()
		return nil, fmt.Errorf("failed to read %q: is a directory", filePath)
	}

	fc.mu.RLock()
	mf, ok := fc.cache[filePath]
	fc.mu.RUnlock()
	if ok && fresh(mf, stat) {
		fc.recordHit()
		return mf, nil
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	// Double-check: another goroutine might have reloaded it
	if mf, ok := fc.cache[filePath]; ok {
		if fresh(mf, stat) {
			fc.recordHit()
			return mf, nil
		}
		fc.unmapLocked(mf)
		delete(fc.cache, filePath)
		fc.record(func(s *FileCacheStats) { s.Reloads++ })
	}

	if fc.maxFiles > 0 && len(fc.cache) >= fc.maxFiles {
		fc.evictOldestLocked()
	}

	mf, err = fc.loadFile(filePath)
	if err != nil {
		fc.recordMiss()
		return nil, err
	}

	fc.cache[filePath] = mf
	fc.record(func(s *FileCacheStats) {
		s.CacheMisses++
		s.FilesLoaded++
	})

	return mf, nil
}

func fresh(mf *MappedFile, stat os.FileInfo) bool {
	return mf.Size == stat.Size() && mf.ModTime.Equal(stat.ModTime())
}

// loadFile opens and maps a file, falling back to os.ReadFile if mmap fails.
//
// Must be called while holding mu.Lock.
func (fc *fileCacheImpl) loadFile(filePath string) (*MappedFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", filePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file %q: %w", filePath, err)
	}

	mf := &MappedFile{
		Path:     filePath,
		Size:     stat.Size(),
		ModTime:  stat.ModTime(),
		MappedAt: time.Now(),
	}

	// Can't mmap zero bytes
	if stat.Size() == 0 {
		file.Close()
		return mf, nil
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		fc.logger.Warn("mmap failed, using fallback",
			"file", filePath,
			"size", stat.Size(),
			"error", err)

		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("mmap failed and fallback failed for %q: mmap error: %v, read error: %w",
				filePath, err, readErr)
		}
		fc.record(func(s *FileCacheStats) { s.MmapFailures++ })

		mf.Data = mmap.MMap(raw)
		mf.Size = int64(len(raw))
		return mf, nil
	}

	mf.Data = data
	mf.File = file
	return mf, nil
}

// ReadFile returns a copy of the whole file.
func (fc *fileCacheImpl) ReadFile(filePath string) ([]byte, error) {
	var out []byte
	err := fc.withData(filePath, func(data []byte) error {
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	return out, err
}

// FetchCode extracts text using byte offsets.
func (fc *fileCacheImpl) FetchCode(filePath string, startByte, endByte uint32) (string, error) {
	var code string
	err := fc.withData(filePath, func(data []byte) error {
		if len(data) == 0 {
			return nil
		}

		if startByte == 0 && endByte == 0 {
			endByte = uint32(len(data))
		} else if endByte <= startByte {
			return fmt.Errorf("invalid byte range: endByte (%d) <= startByte (%d)",
				endByte, startByte)
		}

		if endByte > uint32(len(data)) {
			return fmt.Errorf("invalid byte range: endByte (%d) > file size (%d) for %q",
				endByte, len(data), filePath)
		}

		code = string(data[startByte:endByte])
		return nil
	})
	return code, err
}

// withData loads the file and runs fn under the read lock, so the region
// cannot be unmapped while fn copies from it.
func (fc *fileCacheImpl) withData(filePath string, fn func(data []byte) error) error {
	if _, err := fc.Get(filePath); err != nil {
		return fmt.Errorf("failed to get file %q: %w", filePath, err)
	}

	fc.mu.RLock()
	defer fc.mu.RUnlock()

	mf, ok := fc.cache[filePath]
	if !ok {
		return fmt.Errorf("file %q was invalidated while reading", filePath)
	}
	return fn(mf.Data)
}

// Invalidate unmaps a single file.
func (fc *fileCacheImpl) Invalidate(filePath string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if mf, ok := fc.cache[filePath]; ok {
		fc.unmapLocked(mf)
		delete(fc.cache, filePath)
		fc.logger.Debug("file cache entry invalidated", "file", filePath)
	}
}

// evictOldestLocked drops the entry mapped longest ago.
//
// Must be called while holding mu.Lock.
func (fc *fileCacheImpl) evictOldestLocked() {
	var oldest *MappedFile
	for _, mf := range fc.cache {
		if oldest == nil || mf.MappedAt.Before(oldest.MappedAt) {
			oldest = mf
		}
	}
	if oldest != nil {
		fc.unmapLocked(oldest)
		delete(fc.cache, oldest.Path)
	}
}

// unmapLocked releases the mapping and descriptor of one entry.
//
// Must be called while holding mu.Lock.
func (fc *fileCacheImpl) unmapLocked(mf *MappedFile) error {
	var errs []error
	if mf.File != nil && mf.Data != nil {
		if err := mf.Data.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap %q: %w", mf.Path, err))
		}
	}
	if mf.File != nil {
		if err := mf.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", mf.Path, err))
		}
	}
	mf.Data = nil
	mf.File = nil

	err := errors.Join(errs...)
	if err != nil {
		fc.logger.Warn("failed to release mapped file", "path", mf.Path, "error", err)
	}
	return err
}

// Size returns number of currently cached files.
func (fc *fileCacheImpl) Size() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	return len(fc.cache)
}

// Stats returns current cache metrics.
func (fc *fileCacheImpl) Stats() FileCacheStats {
	fc.mu.RLock()
	cached := len(fc.cache)
	var total int64
	for _, mf := range fc.cache {
		total += mf.Size
	}
	fc.mu.RUnlock()

	fc.statsMu.Lock()
	defer fc.statsMu.Unlock()

	stats := fc.stats
	stats.FilesCached = cached
	stats.TotalMappedMB = float64(total) / (1024 * 1024)
	return stats
}

// Close unmaps all files and releases resources.
func (fc *fileCacheImpl) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	var errs []error
	for _, mf := range fc.cache {
		if err := fc.unmapLocked(mf); err != nil {
			errs = append(errs, err)
		}
	}
	fc.cache = make(map[string]*MappedFile)

	fc.statsMu.Lock()
	fc.logger.Debug("file cache closed",
		"files_loaded", fc.stats.FilesLoaded,
		"cache_hits", fc.stats.CacheHits,
		"cache_misses", fc.stats.CacheMisses,
		"reloads", fc.stats.Reloads)
	fc.statsMu.Unlock()

	return errors.Join(errs...)
}

func (fc *fileCacheImpl) recordHit() {
	fc.record(func(s *FileCacheStats) { s.CacheHits++ })
}

func (fc *fileCacheImpl) recordMiss() {
	fc.record(func(s *FileCacheStats) { s.CacheMisses++ })
}

func (fc *fileCacheImpl) record(update func(*FileCacheStats)) {
	fc.statsMu.Lock()
	update(&fc.stats)
	fc.statsMu.Unlock()
}
