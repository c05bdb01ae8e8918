// Package colormap provides the tints used to tell stack planes apart.
package colormap

import (
	"image/color"
)

// LinearColormap is a linear interpolation colormap.
type LinearColormap struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Shade darkens coarser pyramid levels; level 0 is the lightest.
var Shade = LinearColormap{
	colors: []color.RGBA{
		{236, 236, 236, 255},
		{200, 200, 200, 255},
		{150, 150, 150, 255},
		{96, 96, 96, 255},
	},
}

// Planes gives neighbouring z planes clearly different tints.
var Planes = LinearColormap{
	colors: []color.RGBA{
		{31, 119, 180, 255},  // Blue
		{255, 127, 14, 255},  // Orange
		{44, 160, 44, 255},   // Green
		{214, 39, 40, 255},   // Red
		{148, 103, 189, 255}, // Purple
		{23, 190, 207, 255},  // Cyan
		{188, 189, 34, 255},  // Olive
	},
}

// ForPlane returns the tint of plane z.
func ForPlane(z int) color.RGBA {
	return Planes.colors[wrap(z, len(Planes.colors))]
}
