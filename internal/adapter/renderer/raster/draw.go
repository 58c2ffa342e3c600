package raster

import (
	"image"
	"image/color"
	"math"
)

// fillRect fills r clipped to the image bounds.
func fillRect(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

// blendPixel mixes col into the pixel at (x, y) with weight alpha in [0,1].
func blendPixel(img *image.RGBA, x, y int, col color.RGBA, alpha float64) {
	if !(image.Point{X: x, Y: y}.In(img.Bounds())) {
		return
	}
	img.SetRGBA(x, y, mix(img.RGBAAt(x, y), col, alpha))
}

// drawThickLine draws a line with the specified thickness.
func drawThickLine(img *image.RGBA, x1, y1, x2, y2 float64, thickness int, col color.RGBA) {
	bounds := img.Bounds()

	dx := x2 - x1
	dy := y2 - y1
	length := math.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return
	}

	// Perpendicular unit vector for thickness
	perpX := -dy / length
	perpY := dx / length

	steps := int(length) + 1
	for t := -thickness / 2; t <= thickness/2; t++ {
		offsetX := float64(t) * perpX
		offsetY := float64(t) * perpY

		for i := 0; i <= steps; i++ {
			progress := float64(i) / float64(steps)
			px := int(x1 + dx*progress + offsetX)
			py := int(y1 + dy*progress + offsetY)
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.SetRGBA(px, py, col)
			}
		}
	}
}

// drawFilledCircle draws a filled circle.
func drawFilledCircle(img *image.RGBA, cx, cy int, radius float64, col color.RGBA) {
	bounds := img.Bounds()
	r := int(radius)

	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				px, py := cx+dx, cy+dy
				if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
					img.SetRGBA(px, py, col)
				}
			}
		}
	}
}

// gradientColor returns a color from a green-yellow-red gradient based on pos (0.0 to 1.0).
func gradientColor(pos float64) color.RGBA {
	pos = clamp01(pos)

	var r, g uint8
	if pos < 0.5 {
		r = uint8(pos * 2 * 255)
		g = 255
	} else {
		r = 255
		g = uint8((1 - (pos-0.5)*2) * 255)
	}
	return color.RGBA{R: r, G: g, A: 255}
}

// mix linearly interpolates between a and b. t=0 yields a, t=1 yields b.
func mix(a, b color.RGBA, t float64) color.RGBA {
	t = clamp01(t)
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}

// brighten moves col towards white by amount in [0,1].
func brighten(col color.RGBA, amount float64) color.RGBA {
	return mix(col, color.RGBA{R: 255, G: 255, B: 255, A: 255}, amount)
}

// HSLToRGB converts HSL to RGB (h, s, l in 0-1 range).
func HSLToRGB(h, s, l float64) (r, g, b float64) {
	if s == 0 {
		return l, l, l
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	r = hueToRGB(p, q, h+1.0/3.0)
	g = hueToRGB(p, q, h)
	b = hueToRGB(p, q, h-1.0/3.0)
	return r, g, b
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 0.5 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

func hslColor(h, s, l float64) color.RGBA {
	r, g, b := HSLToRGB(h, s, l)
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
