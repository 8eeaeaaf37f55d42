package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// resultCache keeps extraction results per component file, validated by a
// hash of the file content.
//
// Results only depend on the component file as far as the cache can tell;
// a change in an imported helper module is not detected. Watch mode purges
// the cache on every change for that reason.
//
// Thread Safety: the underlying LRU is synchronized; counters are atomic.
type resultCache struct {
	entries *lru.Cache[string, cacheEntry]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	hash   string
	result *Result
}

// CacheStats reports result cache usage.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64

	// Evictions counts entries dropped for any reason, including
	// Invalidate and Purge.
	Evictions int64
}

func newResultCache(size int, logger *slog.Logger) (*resultCache, error) {
	c := &resultCache{}
	entries, err := lru.NewWithEvict(size, func(path string, _ cacheEntry) {
		c.evictions.Add(1)
		logger.Debug("evicting cached result", "file", path)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *resultCache) get(path, hash string) (*Result, bool) {
	entry, ok := c.entries.Get(path)
	if !ok || entry.hash != hash {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.result, true
}

func (c *resultCache) add(path, hash string, result *Result) {
	c.entries.Add(path, cacheEntry{hash: hash, result: result})
}

func (c *resultCache) remove(path string) bool {
	return c.entries.Remove(path)
}

func (c *resultCache) purge() {
	c.entries.Purge()
}

func (c *resultCache) stats() CacheStats {
	return CacheStats{
		Entries:   c.entries.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
