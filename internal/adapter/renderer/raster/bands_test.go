package raster

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandLevel(t *testing.T) {
	spectrum := make([]float32, 64)
	for i := bassLo; i < bassHi; i++ {
		spectrum[i] = 0.25
	}

	assert.InDelta(t, 0.5, bandLevel(spectrum, bassLo, bassHi, -1), 1e-9)
	assert.InDelta(t, 0.0, bandLevel(spectrum, bassHi, midHi, -1), 1e-9)
	assert.Equal(t, -1.0, bandLevel(spectrum, 60, 60, -1), "empty band")
	assert.Equal(t, -1.0, bandLevel(spectrum[:5], 10, 50, -1), "band past the spectrum")
}

func TestBands(t *testing.T) {
	bass, mid, treble := Bands(nil)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, []float64{bass, mid, treble})

	spectrum := make([]float32, 512)
	for i := midHi; i < len(spectrum); i++ {
		spectrum[i] = 0.09
	}
	bass, mid, treble = Bands(spectrum)
	assert.Zero(t, bass)
	assert.Zero(t, mid)
	assert.InDelta(t, 0.3, treble, 1e-6)
}

func TestBarHeights(t *testing.T) {
	bars := make([]float32, 8)

	barHeights(bars, nil, 100)
	assert.Equal(t, make([]float32, 8), bars)

	spectrum := make([]float32, 512)
	spectrum[1] = 0.01 // sqrt(0.01)*3 = 0.3
	barHeights(bars, spectrum, 100)
	assert.InDelta(t, 30, bars[0], 1e-3)
	for _, h := range bars[1:] {
		assert.Zero(t, h)
	}

	spectrum[511] = 4
	barHeights(bars, spectrum, 100)
	assert.InDelta(t, 100, bars[7], 1e-3, "clamped to max height")
}

func TestPalettes(t *testing.T) {
	p0 := newPalette(0)
	assert.Equal(t, generatePalette(0), p0)
	assert.Equal(t, p0, newPalette(5), "index wraps")
	assert.Equal(t, newPalette(4), newPalette(-1))

	for i := 1; i < 5; i++ {
		assert.NotEqual(t, p0, newPalette(i))
	}
	for _, c := range p0 {
		assert.Equal(t, uint8(255), c.A)
	}
}

func TestMix(t *testing.T) {
	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	assert.Equal(t, black, mix(black, white, 0))
	assert.Equal(t, white, mix(black, white, 1))
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, mix(black, white, 0.5))
	assert.Equal(t, white, mix(black, white, 7), "weight clamped")
}

func TestHSLToRGB(t *testing.T) {
	r, g, b := HSLToRGB(0, 0, 0.4)
	assert.Equal(t, []float64{0.4, 0.4, 0.4}, []float64{r, g, b})

	r, g, b = HSLToRGB(0, 1, 0.5)
	assert.InDelta(t, 1, r, 1e-9)
	assert.InDelta(t, 0, g, 1e-9)
	assert.InDelta(t, 0, b, 1e-9)

	r, g, b = HSLToRGB(1.0/3.0, 1, 0.5)
	assert.InDelta(t, 0, r, 1e-9)
	assert.InDelta(t, 1, g, 1e-9)
	assert.InDelta(t, 0, b, 1e-9)
}

func TestGradientColor(t *testing.T) {
	assert.Equal(t, color.RGBA{G: 255, A: 255}, gradientColor(0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, gradientColor(1))
	assert.Equal(t, color.RGBA{R: 255, G: 255, A: 255}, gradientColor(0.5))
}
