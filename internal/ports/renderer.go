package ports

import (
	"image"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

// Renderer draws frames for one visualization worker.
//
// Every method is called from the worker goroutine only, which is locked to its OS
// thread, so implementations may keep thread-bound state between calls.
type Renderer interface {
	// Name identifies the renderer variant in logs and errors.
	Name() string

	// Initialize prepares the renderer for frames of the given size.
	// It is called once when the worker starts.
	Initialize(width, height int) error

	// LoadResource switches to the preset at path. On error the previously
	// loaded preset must remain usable.
	LoadResource(path string) error

	// RenderFrame draws one frame into dst. dst bounds may change between calls
	// when the quality controller rescales the output.
	RenderFrame(dst *image.RGBA, in domain.RenderInput) error

	// Shutdown releases renderer resources. Called once when the worker stops.
	Shutdown() error
}
