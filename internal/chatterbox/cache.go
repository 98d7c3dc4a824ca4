package chatterbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// condFileExt is the on-disk extension of serialized conditionals.
const condFileExt = ".cond"

// ConditionalsCache is the two-tier voice-conditionals cache: an in-memory
// map fronting a directory of one .cond blob per key. Get never touches the
// disk; LoadFromDisk and LoadAllFromDisk promote blobs into memory.
//
// Concurrency: many readers or one writer. Put takes the record by value
// semantics (the record is immutable after construction), so the disk write
// can proceed without holding the lock.
type ConditionalsCache struct {
	dir string

	mu      sync.RWMutex
	entries map[string]*VoiceConditionals
}

// NewConditionalsCache creates a cache rooted at dir. The directory is
// created lazily on the first persisted Put.
func NewConditionalsCache(dir string) *ConditionalsCache {
	return &ConditionalsCache{
		dir:     dir,
		entries: make(map[string]*VoiceConditionals),
	}
}

// Dir returns the cache root directory.
func (c *ConditionalsCache) Dir() string { return c.dir }

// Has reports whether key is resident in memory.
func (c *ConditionalsCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[key]

	return ok
}

// ExistsOnDisk reports whether a blob for key exists in the cache directory.
func (c *ConditionalsCache) ExistsOnDisk(key string) bool {
	_, err := os.Stat(c.cachePath(key))
	return err == nil
}

// Get returns the cached record for key, or nil on a miss. The returned
// record is shared read-only and must not outlive the cache entry. Get never
// performs I/O.
func (c *ConditionalsCache) Get(key string) *VoiceConditionals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries[key]
}

// Put installs (or replaces) the record for key in memory and, when persist
// is set, writes the blob to disk. A failed disk write leaves the memory
// entry in place and returns an error wrapping ErrCacheWrite.
func (c *ConditionalsCache) Put(key string, conds *VoiceConditionals, persist bool) error {
	if !conds.Valid() {
		return fmt.Errorf("put %q: %w", key, ErrConditionalsInvalid)
	}

	c.mu.Lock()
	c.entries[key] = conds
	c.mu.Unlock()

	slog.Info("cached voice conditionals", "key", key, "persist", persist)

	if !persist {
		return nil
	}

	if err := conds.Save(c.cachePath(key)); err != nil {
		return fmt.Errorf("%w: persist %q: %v", ErrCacheWrite, key, err)
	}

	return nil
}

// LoadFromDisk reads the blob for key into memory. A missing file returns
// ErrCacheMiss; a blob failing the magic or version check returns
// ErrCacheFormat.
func (c *ConditionalsCache) LoadFromDisk(key string) error {
	path := c.cachePath(key)

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %q", ErrCacheMiss, key)
	}

	conds, err := LoadConditionals(path)
	if err != nil {
		return fmt.Errorf("load %q: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = conds
	c.mu.Unlock()

	slog.Info("loaded voice conditionals from disk", "key", key)

	return nil
}

// LoadAllFromDisk scans the cache directory and loads every readable .cond
// blob, returning the number loaded. Unreadable or foreign files are skipped
// (treated as misses) and logged.
func (c *ConditionalsCache) LoadAllFromDisk() int {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		slog.Debug("cache directory not readable", "dir", c.dir, "err", err)
		return 0
	}

	loaded := 0
	for _, ent := range dirents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), condFileExt) {
			continue
		}
		key := strings.TrimSuffix(ent.Name(), condFileExt)
		if err := c.LoadFromDisk(key); err != nil {
			slog.Warn("skipping unreadable cache file", "key", key, "err", err)
			continue
		}
		loaded++
	}

	slog.Info("loaded voice conditionals from cache directory", "dir", c.dir, "count", loaded)

	return loaded
}

// Remove deletes key from both tiers. Either tier may be absent; it reports
// whether anything was removed.
func (c *ConditionalsCache) Remove(key string) bool {
	c.mu.Lock()
	_, inMemory := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	onDisk := false
	path := c.cachePath(key)
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove cache file", "path", path, "err", err)
		} else {
			onDisk = true
		}
	}

	return inMemory || onDisk
}

// Clear empties both tiers.
func (c *ConditionalsCache) Clear() {
	c.ClearMemory()

	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	removed := 0
	for _, ent := range dirents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), condFileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, ent.Name())); err != nil {
			slog.Warn("failed to remove cache file", "name", ent.Name(), "err", err)
			continue
		}
		removed++
	}

	slog.Info("cleared cache files from disk", "dir", c.dir, "count", removed)
}

// ClearMemory empties the in-memory tier only.
func (c *ConditionalsCache) ClearMemory() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*VoiceConditionals)
	c.mu.Unlock()

	slog.Info("cleared memory cache", "count", n)
}

// Keys returns the in-memory keys in unspecified order.
func (c *ConditionalsCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}

	return keys
}

// IsMiss reports whether err represents a plain cache miss rather than a
// failure.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// ExtractKey normalizes a voice reference to its cache key: the file stem
// when the argument carries an extension, the base name when it carries a
// directory, otherwise the string itself. Every caller must apply this rule
// so "assets/malebrute.wav", "malebrute.xwm" and "malebrute" share an entry.
func ExtractKey(pathOrKey string) string {
	if pathOrKey == "" {
		return ""
	}

	base := filepath.Base(pathOrKey)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	if base != pathOrKey {
		return base
	}
	return pathOrKey
}

func (c *ConditionalsCache) cachePath(key string) string {
	return filepath.Join(c.dir, key+condFileExt)
}
