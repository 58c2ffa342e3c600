// Package memory provides repositories backed by fyne preferences.
package memory

import (
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

const (
	keyPresetPath     = "state.preset_path"
	keyPlaylistFolder = "state.playlist_folder"
)

// StateRepository implements ports.StateRepository on top of fyne.Preferences.
//
// Thread-safe: All operations protected by sync.RWMutex.
type StateRepository struct {
	prefs fyne.Preferences
	mu    sync.RWMutex
}

// NewStateRepository creates a state repository.
// prefs is usually obtained from app.Preferences().
func NewStateRepository(prefs fyne.Preferences) *StateRepository {
	return &StateRepository{prefs: prefs}
}

// SavePresetPath persists the active preset path.
func (r *StateRepository) SavePresetPath(path string) error {
	return r.save("SavePresetPath", keyPresetPath, path)
}

// LoadPresetPath returns the saved preset path.
func (r *StateRepository) LoadPresetPath() (string, error) {
	return r.load(keyPresetPath), nil
}

// SavePlaylistFolder persists the playlist folder.
func (r *StateRepository) SavePlaylistFolder(dir string) error {
	return r.save("SavePlaylistFolder", keyPlaylistFolder, dir)
}

// LoadPlaylistFolder returns the saved playlist folder.
func (r *StateRepository) LoadPlaylistFolder() (string, error) {
	return r.load(keyPlaylistFolder), nil
}

// Clear removes all saved state.
func (r *StateRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.RemoveValue(keyPresetPath)
	r.prefs.RemoveValue(keyPlaylistFolder)
	return nil
}

func (r *StateRepository) save(op, key, value string) error {
	if strings.ContainsRune(value, 0) {
		return domain.NewRepositoryError(op, "state", "path contains NUL byte", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// An empty value clears the key so the fallback applies on the next load
	if value == "" {
		r.prefs.RemoveValue(key)
		return nil
	}
	r.prefs.SetString(key, value)
	return nil
}

func (r *StateRepository) load(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.prefs.StringWithFallback(key, "")
}

// Verify interface implementation
var _ ports.StateRepository = (*StateRepository)(nil)
