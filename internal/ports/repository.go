// Package ports define repository interfaces for data persistence abstraction.
package ports

// StateRepository persists the small amount of state that survives a restart:
// the active preset path and the playlist folder.
//
// Thread-safety: Implementations must be thread-safe.
type StateRepository interface {
	// SavePresetPath persists the resolved path of the active preset.
	SavePresetPath(path string) error

	// LoadPresetPath returns the saved preset path, or "" if none was saved.
	LoadPresetPath() (string, error)

	// SavePlaylistFolder persists the folder the playlist was scanned from.
	SavePlaylistFolder(dir string) error

	// LoadPlaylistFolder returns the saved playlist folder, or "" if none was saved.
	LoadPlaylistFolder() (string, error)

	// Clear removes all saved state.
	Clear() error
}
