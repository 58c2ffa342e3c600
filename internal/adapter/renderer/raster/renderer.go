// Package raster provides a software renderer that draws audio-reactive plasma frames
// into RGBA buffers.
//
// Each preset maps to one of the palettes; switching presets moves between palettes
// using the active transition style. Energy and beats drive the plasma speed, zoom and
// brightness, spectrum bars and an oscilloscope are layered on top, and the quality
// decision toggles a second plasma octave and beat particles.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

const (
	plasmaBaseScale = 0.02 // Base scale for plasma pattern
	plasmaBaseSpeed = 0.03 // Base animation speed per 60 Hz frame
	plasmaDownscale = 2    // Render at lower resolution for performance

	spectrumBars = 32
	maxParticles = 64
	beatSparks   = 12

	pulseDecay = 6.0 // per second
	maxStep    = 100 * time.Millisecond
)

// Warp holds the plasma modulation a preset script may set each frame.
// Zero fields fall back to the neutral value.
type Warp struct {
	Hue      float64 // palette rotation in turns
	Zoom     float64 // coordinate scale multiplier
	Speed    float64 // animation speed multiplier
	Contrast float64 // contrast multiplier
}

// DefaultWarp returns the neutral warp.
func DefaultWarp() Warp {
	return Warp{Zoom: 1, Speed: 1, Contrast: 1}
}

func (w Warp) normalized() Warp {
	fix := func(v, neutral, lo, hi float64) float64 {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return neutral
		}
		return math.Min(math.Max(v, lo), hi)
	}
	hue := w.Hue
	if math.IsNaN(hue) || math.IsInf(hue, 0) {
		hue = 0
	}
	return Warp{
		Hue:      hue - math.Floor(hue),
		Zoom:     fix(w.Zoom, 1, 0.1, 10),
		Speed:    fix(w.Speed, 1, 0, 10),
		Contrast: fix(w.Contrast, 1, 0.1, 4),
	}
}

type particle struct {
	x, y   float64 // normalized position
	vx, vy float64 // normalized units per second
	life   float64 // seconds remaining
	col    color.RGBA
}

// Renderer implements ports.Renderer in software.
//
// RenderFrame is called from a single worker goroutine. SetWarp and the inspection
// methods may be called from other goroutines.
type Renderer struct {
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	width       int
	height      int
	resource    string
	warp        Warp

	palettes   [domain.PaletteCount]palette
	trans      transition
	primed     bool
	bassAvg    float64
	midAvg     float64
	highAvg    float64
	phase      float64
	pulse      float64
	lastBeat   uint64
	sawBeat    bool
	last       time.Duration
	bars       []float32
	particles  []particle
	rng        *rand.Rand
	framesDone uint64
}

// NewRenderer creates a new software renderer.
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		logger: logger,
		warp:   DefaultWarp(),
		bars:   make([]float32, spectrumBars),
		rng:    rand.New(rand.NewPCG(0x9e3779b9, 0x7f4a7c15)),
	}
	for i := range r.palettes {
		r.palettes[i] = newPalette(i)
	}
	return r
}

// Name returns the renderer variant.
func (r *Renderer) Name() string {
	return "raster"
}

// Initialize prepares the renderer for frames of the given nominal size.
func (r *Renderer) Initialize(width, height int) error {
	if width <= 0 || height <= 0 {
		return domain.NewRendererError(r.Name(), "initialize", "",
			domain.NewValidationError("size", fmt.Sprintf("%dx%d", width, height), "must be positive"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true
	r.width = width
	r.height = height
	r.primed = false
	r.bassAvg, r.midAvg, r.highAvg = 0.5, 0.5, 0.5
	r.phase = 0
	r.pulse = 0
	r.sawBeat = false
	r.last = 0
	r.particles = make([]particle, 0, maxParticles)

	r.logger.Debug("raster renderer initialized", slog.Int("width", width), slog.Int("height", height))
	return nil
}

// LoadResource validates that the preset file exists. The palette itself follows the
// preset metadata carried in each frame's parameters.
func (r *Renderer) LoadResource(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return domain.NewRendererError(r.Name(), "load", path, domain.ErrNotInitialized)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.NewRendererError(r.Name(), "load", path,
			fmt.Errorf("%w: %w", domain.ErrInvalidPresetSource, err))
	}
	if info.IsDir() {
		return domain.NewRendererError(r.Name(), "load", path,
			fmt.Errorf("%w: is a directory", domain.ErrInvalidPresetSource))
	}

	r.resource = path
	r.logger.Debug("resource loaded", slog.String("path", path))
	return nil
}

// SetWarp replaces the plasma modulation.
func (r *Renderer) SetWarp(w Warp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warp = w.normalized()
}

// Warp returns the active plasma modulation.
func (r *Renderer) Warp() Warp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warp
}

// Resource returns the path of the last loaded preset.
func (r *Renderer) Resource() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resource
}

// Size returns the nominal frame size passed to Initialize.
func (r *Renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// RenderFrame draws one frame into dst. The frame fills dst's bounds, which may be
// smaller than the nominal size when the quality controller scales down.
func (r *Renderer) RenderFrame(dst *image.RGBA, in domain.RenderInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return domain.NewRendererError(r.Name(), "render", "", domain.ErrNotInitialized)
	}
	if dst == nil || dst.Bounds().Empty() {
		return nil
	}

	dt := in.Elapsed - r.last
	if dt < 0 || !r.primed {
		dt = 0
	}
	if dt > maxStep {
		dt = maxStep
	}
	r.last = in.Elapsed
	seconds := dt.Seconds()

	r.updateTransition(in)
	r.updateBands(in)
	beat := r.updateBeat(in, seconds)

	warp := r.warp
	r.phase += (plasmaBaseSpeed + r.midAvg*0.05) * warp.Speed * seconds * 60
	r.primed = true

	r.drawPlasma(dst, in, warp)
	if in.HaveSnapshot && in.Snapshot.HasSpectrum {
		r.drawSpectrum(dst, in.Snapshot.Spectrum[:])
	}
	r.drawScope(dst, in.PCM)

	if in.Decision.Particles {
		if beat {
			r.spawnSparks(in.Params.PaletteIndex)
		}
		r.stepParticles(seconds)
		r.drawParticles(dst)
	} else {
		r.particles = r.particles[:0]
	}

	r.framesDone++
	return nil
}

// Shutdown releases frame state. Initialize may be called again afterwards.
func (r *Renderer) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = false
	r.particles = nil
	r.logger.Debug("raster renderer shut down", slog.Uint64("frames", r.framesDone))
	return nil
}

func (r *Renderer) updateTransition(in domain.RenderInput) {
	idx := in.Params.PaletteIndex % domain.PaletteCount
	if idx < 0 {
		idx += domain.PaletteCount
	}
	if !r.primed {
		r.trans = transition{from: idx, to: idx, style: domain.TransitionCut}
		return
	}
	if idx == r.trans.to {
		return
	}
	r.trans = transition{
		from:     r.trans.to,
		to:       idx,
		start:    in.Elapsed,
		duration: in.Params.TransitionDuration,
		style:    in.Params.TransitionStyle,
	}
}

func (r *Renderer) updateBands(in domain.RenderInput) {
	var bass, mid, high float64
	switch {
	case in.HaveSnapshot && in.Snapshot.HasSpectrum:
		bass, mid, high = Bands(in.Snapshot.Spectrum[:])
	case in.HaveSnapshot:
		level := math.Sqrt(math.Max(float64(in.Snapshot.ShortTimeEnergy), 0))
		bass, mid, high = level, level, level
	default:
		bass, mid, high = 0.5, 0.5, 0.5
	}

	r.bassAvg = r.bassAvg*0.85 + clamp01(bass)*0.15
	r.midAvg = r.midAvg*0.85 + clamp01(mid)*0.15
	r.highAvg = r.highAvg*0.85 + clamp01(high)*0.15
}

// updateBeat decays the pulse and raises it once per detected beat window.
func (r *Renderer) updateBeat(in domain.RenderInput, seconds float64) bool {
	r.pulse *= math.Exp(-pulseDecay * seconds)

	s := in.Snapshot
	if !in.HaveSnapshot || !s.BeatDetected {
		return false
	}
	if r.sawBeat && s.SamplePosition == r.lastBeat {
		return false
	}
	r.sawBeat = true
	r.lastBeat = s.SamplePosition
	r.pulse = math.Max(r.pulse, clamp01(float64(in.Params.BeatSensitivity)*0.5))
	return true
}

func (r *Renderer) drawPlasma(dst *image.RGBA, in domain.RenderInput, warp Warp) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()

	progress := r.trans.progress(in.Elapsed)
	from := &r.palettes[r.trans.from]
	to := &r.palettes[r.trans.to]

	// Keep the pattern density independent of the render scale.
	density := 1.0
	if r.width > 0 {
		density = float64(r.width) / float64(w)
	}
	scale := plasmaBaseScale * (1.0 + r.bassAvg*0.5) * warp.Zoom * r.trans.zoom(in.Elapsed) * density
	contrast := (0.5 + (r.bassAvg+r.midAvg+r.highAvg)*0.3) * warp.Contrast
	hueShift := int(warp.Hue * paletteSize)
	glow := r.pulse * 0.35
	detail := in.Decision.HighDetail

	for py := 0; py*plasmaDownscale < h; py++ {
		for px := 0; px*plasmaDownscale < w; px++ {
			x := float64(px*plasmaDownscale) * scale
			y := float64(py*plasmaDownscale) * scale

			value := plasmaValue(x, y, r.phase, r.bassAvg, r.midAvg)
			if detail {
				value = value*0.7 + plasmaValue(x*2.3, y*2.3, r.phase*1.7, r.highAvg, r.midAvg)*0.3
			}
			value = clamp01((value-0.5)*contrast + 0.5)

			i := (int(value*float64(paletteSize-1)) + hueShift) % paletteSize
			col := to[i]
			if progress < 1 {
				col = mix(from[i], col, progress)
			}
			if glow > 0 {
				col = brighten(col, glow)
			}

			fillRect(dst, image.Rect(
				b.Min.X+px*plasmaDownscale, b.Min.Y+py*plasmaDownscale,
				b.Min.X+(px+1)*plasmaDownscale, b.Min.Y+(py+1)*plasmaDownscale,
			), col)
		}
	}
}

// plasmaValue computes the plasma value at a given point, in [0,1].
func plasmaValue(x, y, t, bass, mid float64) float64 {
	// Horizontal, vertical and diagonal waves
	v1 := math.Sin(x*10 + t*2)
	v2 := math.Sin(y*10 + t*3)
	v3 := math.Sin((x+y)*7 + t*1.5)

	// Circular waves from a bass-modulated center
	cx := x - 5*(1+bass*0.5)
	cy := y - 5*(1+bass*0.5)
	v4 := math.Sin(math.Sqrt(cx*cx+cy*cy)*8 - t*4)

	// Orbiting circular waves
	cx2 := x + 3*math.Sin(t)
	cy2 := y + 3*math.Cos(t*0.7)
	v5 := math.Sin(math.Sqrt(cx2*cx2+cy2*cy2)*6 + t*2)

	// Turbulence
	v6 := math.Sin(x*3+math.Sin(y*4+t)) * mid

	combined := (v1 + v2 + v3 + v4 + v5 + v6) / 6.0
	return combined*0.5 + 0.5
}

func (r *Renderer) drawSpectrum(dst *image.RGBA, spectrum []float32) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	maxHeight := float64(h) / 3
	barHeights(r.bars, spectrum, maxHeight)

	barW := float64(w) / float64(len(r.bars))
	for i, height := range r.bars {
		if height < 1 {
			continue
		}
		col := gradientColor(float64(height) / maxHeight)
		x0 := b.Min.X + int(float64(i)*barW)
		x1 := b.Min.X + int(float64(i+1)*barW) - 1
		if x1 <= x0 {
			x1 = x0 + 1
		}
		for y := b.Max.Y - int(height); y < b.Max.Y; y++ {
			for x := x0; x < x1; x++ {
				blendPixel(dst, x, y, col, 0.6)
			}
		}
	}
}

func (r *Renderer) drawScope(dst *image.RGBA, pcm []float32) {
	if len(pcm) < 2 {
		return
	}
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	mid := float64(b.Min.Y) + h/2
	amp := h / 4
	col := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	step := float64(len(pcm)-1) / math.Max(w-1, 1)
	prevX, prevY := float64(b.Min.X), mid-clampSample(pcm[0])*amp
	for x := 1.0; x < w; x++ {
		s := pcm[int(x*step)]
		y := mid - clampSample(s)*amp
		drawThickLine(dst, prevX, prevY, float64(b.Min.X)+x, y, 1, col)
		prevX, prevY = float64(b.Min.X)+x, y
	}
}

func clampSample(s float32) float64 {
	return math.Min(math.Max(float64(s), -1), 1)
}

func (r *Renderer) spawnSparks(paletteIndex int) {
	base := float64(paletteIndex%domain.PaletteCount) / domain.PaletteCount
	for i := 0; i < beatSparks && len(r.particles) < maxParticles; i++ {
		angle := r.rng.Float64() * 2 * math.Pi
		speed := 0.2 + r.rng.Float64()*0.4
		r.particles = append(r.particles, particle{
			x:    0.5,
			y:    0.5,
			vx:   math.Cos(angle) * speed,
			vy:   math.Sin(angle) * speed,
			life: 0.6 + r.rng.Float64()*0.6,
			col:  hslColor(base+r.rng.Float64()*0.15, 0.9, 0.6),
		})
	}
}

func (r *Renderer) stepParticles(seconds float64) {
	alive := r.particles[:0]
	for _, p := range r.particles {
		p.life -= seconds
		if p.life <= 0 {
			continue
		}
		p.x += p.vx * seconds
		p.y += p.vy * seconds
		alive = append(alive, p)
	}
	r.particles = alive
}

func (r *Renderer) drawParticles(dst *image.RGBA) {
	b := dst.Bounds()
	for _, p := range r.particles {
		cx := b.Min.X + int(p.x*float64(b.Dx()))
		cy := b.Min.Y + int(p.y*float64(b.Dy()))
		drawFilledCircle(dst, cx, cy, 1+p.life*2, p.col)
	}
}

var _ ports.Renderer = (*Renderer)(nil)
