// Package mock provides a mock implementation of the Renderer interface.
// It records every call so worker behaviour can be asserted without drawing anything real.
package mock

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// Renderer is a mock implementation of ports.Renderer.
//
// Thread-safety: This implementation is thread-safe so tests may inspect it while a
// worker goroutine is calling it.
type Renderer struct {
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	width       int
	height      int
	initCalls   int
	shutdowns   int
	loaded      []string
	current     string
	frames      int
	lastInput   domain.RenderInput
	lastBounds  image.Rectangle
	renderDelay time.Duration

	// Behavior configuration (for testing error scenarios)
	failInitialize bool
	failRender     bool
	failPaths      map[string]bool
}

// NewRenderer creates a new mock renderer.
func NewRenderer() *Renderer {
	return &Renderer{failPaths: make(map[string]bool)}
}

// SetLogger sets the logger for this renderer.
func (r *Renderer) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetFailInitialize configures Initialize to fail.
func (r *Renderer) SetFailInitialize(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failInitialize = fail
}

// SetFailRender configures RenderFrame to fail.
func (r *Renderer) SetFailRender(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failRender = fail
}

// SetFailPath configures LoadResource to fail for path.
func (r *Renderer) SetFailPath(path string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPaths[path] = fail
}

// SetRenderDelay makes every RenderFrame take at least d.
func (r *Renderer) SetRenderDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderDelay = d
}

// Name implements ports.Renderer.
func (r *Renderer) Name() string {
	return "mock"
}

// Initialize implements ports.Renderer.
func (r *Renderer) Initialize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.initCalls++
	if r.failInitialize {
		return domain.NewRendererError("mock", "initialize", "", fmt.Errorf("simulated failure"))
	}
	r.initialized = true
	r.width, r.height = width, height
	r.log("mock renderer initialized", slog.Int("width", width), slog.Int("height", height))
	return nil
}

// LoadResource implements ports.Renderer.
func (r *Renderer) LoadResource(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return domain.NewRendererError("mock", "load", path, domain.ErrNotInitialized)
	}
	if r.failPaths[path] {
		return domain.NewRendererError("mock", "load", path, fmt.Errorf("simulated failure"))
	}
	r.loaded = append(r.loaded, path)
	r.current = path
	return nil
}

// RenderFrame implements ports.Renderer. It fills dst with a colour derived from the
// frame count and the snapshot energy.
func (r *Renderer) RenderFrame(dst *image.RGBA, in domain.RenderInput) error {
	r.mu.Lock()
	delay := r.renderDelay
	if !r.initialized {
		r.mu.Unlock()
		return domain.NewRendererError("mock", "render", "", domain.ErrNotInitialized)
	}
	if r.failRender {
		r.mu.Unlock()
		return domain.NewRendererError("mock", "render", "", fmt.Errorf("simulated failure"))
	}
	r.frames++
	r.lastInput = in
	r.lastInput.PCM = slices.Clone(in.PCM)
	r.lastBounds = dst.Bounds()
	frame := r.frames
	r.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	c := color.RGBA{
		R: uint8(frame),
		G: uint8(in.Snapshot.ShortTimeEnergy * 255),
		B: uint8(in.Params.PaletteIndex * 50),
		A: 255,
	}
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(x, y, c)
		}
	}
	return nil
}

// Shutdown implements ports.Renderer.
func (r *Renderer) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shutdowns++
	r.initialized = false
	r.current = ""
	return nil
}

// IsInitialized reports whether Initialize succeeded and Shutdown has not run since.
func (r *Renderer) IsInitialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Size returns the size passed to Initialize.
func (r *Renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// InitCalls returns how many times Initialize was called.
func (r *Renderer) InitCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initCalls
}

// Shutdowns returns how many times Shutdown was called.
func (r *Renderer) Shutdowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdowns
}

// Loaded returns every successfully loaded path in order.
func (r *Renderer) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.loaded)
}

// Current returns the active resource path.
func (r *Renderer) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Frames returns the number of rendered frames.
func (r *Renderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// LastInput returns the input of the most recent frame.
func (r *Renderer) LastInput() domain.RenderInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastInput
}

// LastBounds returns the destination bounds of the most recent frame.
func (r *Renderer) LastBounds() image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBounds
}

func (r *Renderer) log(msg string, attrs ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, attrs...)
	}
}

var _ ports.Renderer = (*Renderer)(nil)
