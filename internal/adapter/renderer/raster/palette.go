package raster

import (
	"image/color"
	"math"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

const paletteSize = 256

// palette is a precomputed smooth color ramp.
type palette [paletteSize]color.RGBA

// newPalette builds the palette for a preset palette index. Each index rotates the
// base ramp by an equal share of the color wheel.
func newPalette(index int) palette {
	index = ((index % domain.PaletteCount) + domain.PaletteCount) % domain.PaletteCount
	return generatePalette(float64(index) * 2 * math.Pi / domain.PaletteCount)
}

// generatePalette creates a smooth color palette with hue offset.
func generatePalette(hueOffset float64) palette {
	var p palette
	for i := 0; i < paletteSize; i++ {
		t := float64(i) / float64(paletteSize)

		r := math.Sin(t*math.Pi*2+hueOffset)*0.5 + 0.5
		g := math.Sin(t*math.Pi*2+hueOffset+math.Pi*2/3)*0.5 + 0.5
		b := math.Sin(t*math.Pi*2+hueOffset+math.Pi*4/3)*0.5 + 0.5

		p[i] = color.RGBA{
			R: uint8(r * 255),
			G: uint8(g * 255),
			B: uint8(b * 255),
			A: 255,
		}
	}
	return p
}

// transition tracks the move from one palette to the next.
type transition struct {
	from, to int
	start    time.Duration
	duration time.Duration
	style    domain.TransitionStyle
}

// progress returns how far the transition has advanced at elapsed, in [0,1].
// Cuts complete immediately.
func (t transition) progress(elapsed time.Duration) float64 {
	if t.style == domain.TransitionCut || t.duration <= 0 || t.from == t.to {
		return 1
	}
	return clamp01(float64(elapsed-t.start) / float64(t.duration))
}

// zoom returns the coordinate scale applied during a zoom transition.
func (t transition) zoom(elapsed time.Duration) float64 {
	if t.style != domain.TransitionZoom {
		return 1
	}
	return 1 + (1-t.progress(elapsed))*1.5
}
