package raster

import (
	"math"
)

// Spectrum band boundaries in bins of a 1024-point window.
const (
	bassLo = 1
	bassHi = 10
	midHi  = 50
)

// bandLevel returns the root of the mean magnitude over bins [lo, hi).
// Out-of-range or empty bands return fallback.
func bandLevel(spectrum []float32, lo, hi int, fallback float64) float64 {
	if hi > len(spectrum) {
		hi = len(spectrum)
	}
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return fallback
	}

	var sum float64
	for i := lo; i < hi; i++ {
		sum += float64(spectrum[i])
	}
	return math.Sqrt(sum / float64(hi-lo))
}

// Bands returns the bass, mid and treble levels of a spectrum, each 0.5 when the
// spectrum is too short to cover the band.
func Bands(spectrum []float32) (bass, mid, treble float64) {
	return bandLevel(spectrum, bassLo, bassHi, 0.5),
		bandLevel(spectrum, bassHi, midHi, 0.5),
		bandLevel(spectrum, midHi, len(spectrum), 0.5)
}

// barHeights maps a spectrum onto len(dst) bars using logarithmic bin grouping.
// Each bar holds the scaled peak of its bins, limited to maxHeight.
func barHeights(dst []float32, spectrum []float32, maxHeight float64) {
	for i := range dst {
		dst[i] = 0
	}
	if len(spectrum) < 2 || len(dst) == 0 {
		return
	}

	numBars := len(dst)
	b0 := 1 // skip DC
	for x := 0; x < numBars; x++ {
		var b1 int
		if numBars > 1 {
			b1 = int(math.Pow(2, float64(x)*9.0/float64(numBars-1)))
		} else {
			b1 = len(spectrum) - 1
		}
		if b1 >= len(spectrum) {
			b1 = len(spectrum) - 1
		}
		if b1 < b0 {
			b1 = b0
		}

		var peak float32
		for b := b0; b <= b1 && b < len(spectrum); b++ {
			if spectrum[b] > peak {
				peak = spectrum[b]
			}
		}

		y := math.Sqrt(float64(peak)) * 3.0 * maxHeight
		dst[x] = float32(math.Min(math.Max(y, 0), maxHeight))
		b0 = b1 + 1
	}
}
