// Package filesystem resolves preset metadata from files on disk.
package filesystem

import (
	"fmt"
	"os"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// Source implements ports.PresetSource with os.Stat.
type Source struct{}

// New creates a filesystem preset source.
func New() *Source {
	return &Source{}
}

// ModTime returns the modification time of the preset file at path.
// Directories and missing files are reported as domain.ErrInvalidPresetSource.
func (s *Source) ModTime(path string) (time.Time, error) {
	if path == "" {
		return time.Time{}, domain.NewPresetError("stat", path, "empty path", domain.ErrInvalidPresetSource)
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, domain.NewPresetError("stat", path, err.Error(),
			fmt.Errorf("%w: %w", domain.ErrInvalidPresetSource, err))
	}
	if info.IsDir() {
		return time.Time{}, domain.NewPresetError("stat", path, "is a directory", domain.ErrInvalidPresetSource)
	}
	return info.ModTime(), nil
}

var _ ports.PresetSource = (*Source)(nil)
