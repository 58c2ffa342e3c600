package ports

import "time"

// PresetSource answers questions about preset files.
// Implementations may touch the filesystem, so callers must not hold locks around them.
type PresetSource interface {
	// ModTime returns the modification time of the preset at path.
	// A missing or unreadable preset returns an error.
	ModTime(path string) (time.Time, error)
}
