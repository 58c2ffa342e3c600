// Package service contains the pipeline's coordination logic: the shared preset cache,
// the quality controller, the render worker and the control-plane relays.
package service

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// PresetName returns the display name for a preset path: the file name without extension.
func PresetName(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PaletteIndex maps a preset name to one of domain.PaletteCount palettes.
// It is FNV-1a over the UTF-8 bytes, so the result is stable across runs and platforms.
// The empty name maps to 0.
func PaletteIndex(name string) int {
	if name == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int(h.Sum32() % domain.PaletteCount)
}

// CacheStats summarizes cache activity.
type CacheStats struct {
	Hits            uint64
	Misses          uint64
	StaleRecomputes uint64
	Entries         int
}

// PresetCache holds preset metadata shared by every worker in the process.
//
// Create one per process and inject it into each worker. A single mutex guards the map;
// source I/O happens before the lock is taken.
type PresetCache struct {
	logger *slog.Logger
	source ports.PresetSource

	mu      sync.Mutex
	entries map[string]domain.PresetMetadata
	stats   CacheStats
}

// NewPresetCache creates an empty cache reading timestamps from source.
func NewPresetCache(logger *slog.Logger, source ports.PresetSource) *PresetCache {
	c := &PresetCache{
		logger:  logger.With(slog.String("component", "preset_cache")),
		source:  source,
		entries: make(map[string]domain.PresetMetadata),
	}
	c.logger.Debug("preset cache initialized")
	return c
}

// Lookup returns the cached metadata for path without consulting the source.
func (c *PresetCache) Lookup(path string) (domain.PresetMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, ok := c.entries[path]
	return meta, ok
}

// Upsert inserts or replaces the metadata for path. The refcount of an existing entry is
// kept; a new entry starts at 0.
func (c *PresetCache) Upsert(path string, meta domain.PresetMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.upsertLocked(path, meta)
}

func (c *PresetCache) upsertLocked(path string, meta domain.PresetMetadata) {
	if old, ok := c.entries[path]; ok {
		meta.RefCount = old.RefCount
	} else {
		meta.RefCount = 0
	}
	c.entries[path] = meta
}

// AddRef registers a holder of path and returns the current metadata.
// An absent entry is derived from the source and inserted with refcount 1. A present
// entry whose timestamp no longer matches the source is recomputed first.
// If the source cannot be read, nothing changes and the error wraps
// domain.ErrInvalidPresetSource.
func (c *PresetCache) AddRef(path string) (domain.PresetMetadata, error) {
	modTime, err := c.modTime("addref", path)
	if err != nil {
		return domain.PresetMetadata{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.resolveLocked(path, modTime)
	meta.RefCount++
	c.entries[path] = meta

	c.logger.Debug("preset referenced",
		slog.String("path", path),
		slog.Int("refcount", meta.RefCount))
	return meta, nil
}

// Get returns up-to-date metadata for path without taking a reference.
// Missing entries are inserted with refcount 0 and stale ones are recomputed.
func (c *PresetCache) Get(path string) (domain.PresetMetadata, error) {
	modTime, err := c.modTime("get", path)
	if err != nil {
		return domain.PresetMetadata{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.resolveLocked(path, modTime)
	c.entries[path] = meta
	return meta, nil
}

// Release drops one holder of path. The entry is evicted when no holders remain.
// Unknown paths are ignored.
func (c *PresetCache) Release(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, ok := c.entries[path]
	if !ok {
		return
	}
	meta.RefCount--
	if meta.RefCount <= 0 {
		delete(c.entries, path)
		c.logger.Debug("preset evicted", slog.String("path", path))
		return
	}
	c.entries[path] = meta
}

// Stats returns a copy of the activity counters.
func (c *PresetCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// HitRate returns hits/(hits+misses), or 0 before any resolution.
func (c *PresetCache) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Len returns the number of cached entries.
func (c *PresetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every entry and counter.
func (c *PresetCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]domain.PresetMetadata)
	c.stats = CacheStats{}
}

func (c *PresetCache) modTime(op, path string) (time.Time, error) {
	modTime, err := c.source.ModTime(path)
	if err != nil {
		c.logger.Warn("preset source unreadable", slog.String("path", path), slog.Any("error", err))
		return time.Time{}, domain.NewPresetError(op, path, "source unreadable",
			fmt.Errorf("%w: %w", domain.ErrInvalidPresetSource, err))
	}
	return modTime, nil
}

// resolveLocked returns the entry for path, deriving it on a miss and recomputing it when
// modTime no longer matches. The refcount is carried over. Caller holds mu.
func (c *PresetCache) resolveLocked(path string, modTime time.Time) domain.PresetMetadata {
	meta, ok := c.entries[path]
	switch {
	case !ok:
		c.stats.Misses++
		return deriveMetadata(path, modTime)
	case !meta.SourceTimestamp.Equal(modTime):
		c.stats.Misses++
		c.stats.StaleRecomputes++
		c.logger.Debug("preset metadata stale",
			slog.String("path", path),
			slog.Any("error", domain.ErrStaleCacheEntry))
		fresh := deriveMetadata(path, modTime)
		fresh.RefCount = meta.RefCount
		return fresh
	default:
		c.stats.Hits++
		return meta
	}
}

func deriveMetadata(path string, modTime time.Time) domain.PresetMetadata {
	name := PresetName(path)
	return domain.PresetMetadata{
		Name:            name,
		PaletteIndex:    PaletteIndex(name),
		SourceTimestamp: modTime,
	}
}
