package service

import (
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

// PresetExtensions are the file extensions picked up by LoadFolder.
var PresetExtensions = []string{".milk", ".lua", ".prjm"}

// PresetPlaylist is the ordered list of presets in one folder.
// All methods are safe for concurrent use.
type PresetPlaylist struct {
	logger *slog.Logger

	mu     sync.RWMutex
	folder string
	paths  []string
	rng    *rand.Rand
}

// NewPresetPlaylist creates an empty playlist.
func NewPresetPlaylist(logger *slog.Logger) *PresetPlaylist {
	return &PresetPlaylist{
		logger: logger.With(slog.String("component", "preset_playlist")),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetSeed makes shuffle order reproducible.
func (p *PresetPlaylist) SetSeed(seed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rand.New(rand.NewPCG(seed, seed))
}

// LoadFolder replaces the playlist with the presets directly inside dir, sorted by name.
// The previous list is kept when dir cannot be read.
func (p *PresetPlaylist) LoadFolder(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return domain.NewServiceError("PresetPlaylist", "LoadFolder", "cannot read folder", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isPresetFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.SortFunc(paths, func(a, b string) int {
		return strings.Compare(strings.ToLower(filepath.Base(a)), strings.ToLower(filepath.Base(b)))
	})

	p.mu.Lock()
	p.folder = dir
	p.paths = paths
	p.mu.Unlock()

	p.logger.Info("preset folder loaded", slog.String("folder", dir), slog.Int("presets", len(paths)))
	return nil
}

// SetPaths replaces the playlist with an explicit list, keeping its order.
func (p *PresetPlaylist) SetPaths(paths []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.folder = ""
	p.paths = slices.Clone(paths)
}

// Folder returns the folder of the last successful LoadFolder.
func (p *PresetPlaylist) Folder() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.folder
}

// Len returns the number of presets.
func (p *PresetPlaylist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.paths)
}

// Paths returns a copy of the preset paths.
func (p *PresetPlaylist) Paths() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.paths)
}

// PathAt returns the preset at index i.
func (p *PresetPlaylist) PathAt(i int) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.paths) {
		return "", false
	}
	return p.paths[i], true
}

// IndexOf returns the index of path, or -1.
func (p *PresetPlaylist) IndexOf(path string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Index(p.paths, path)
}

// Next returns the index that follows current. Without shuffle it wraps to 0 after the
// last entry. With shuffle it picks a random index different from current when there is
// more than one preset. Returns -1 for an empty playlist.
func (p *PresetPlaylist) Next(current int, shuffle bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.paths)
	switch {
	case n == 0:
		return -1
	case n == 1:
		return 0
	case shuffle:
		next := p.rng.IntN(n - 1)
		if current >= 0 && current < n && next >= current {
			next++
		}
		return next
	case current < 0 || current >= n-1:
		return 0
	default:
		return current + 1
	}
}

func isPresetFile(name string) bool {
	return slices.Contains(PresetExtensions, strings.ToLower(filepath.Ext(name)))
}
