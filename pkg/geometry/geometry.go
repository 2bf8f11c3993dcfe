// Package geometry provides the coordinate math shared by regions, the
// compositor and the editing surface.
//
// All model coordinates are floating-point pixels in the source image's
// native grid, origin at the top-left corner.
package geometry

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Point represents a position in source-image pixel coordinates
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size represents a width/height pair
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Box represents an axis-aligned rectangle with its origin at the top-left corner
type Box struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Contains reports whether p lies inside the box, edges included
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.Width &&
		p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// Pixels returns the smallest integer rectangle covering the box.
func (b Box) Pixels() image.Rectangle {
	return image.Rect(
		toPixel(math.Floor(b.X)),
		toPixel(math.Floor(b.Y)),
		toPixel(math.Ceil(b.X+b.Width)),
		toPixel(math.Ceil(b.Y+b.Height)),
	).Canon()
}

// CenterSampled returns the pixels whose centers fall inside the half-open
// box [X, X+Width) x [Y, Y+Height).
func (b Box) CenterSampled() image.Rectangle {
	if b.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(
		toPixel(math.Ceil(b.X-0.5)),
		toPixel(math.Ceil(b.Y-0.5)),
		toPixel(math.Ceil(b.X+b.Width-0.5)),
		toPixel(math.Ceil(b.Y+b.Height-0.5)),
	)
}

// PixelLimit bounds the integer coordinates produced by Pixels and
// CenterSampled. Anything further out is clamped to it.
const PixelLimit = 1 << 30

// toPixel converts a whole-valued float to int, clamping to PixelLimit.
// NaN maps to 0.
func toPixel(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > PixelLimit:
		return PixelLimit
	case v < -PixelLimit:
		return -PixelLimit
	}
	return int(v)
}

// BoundingBox computes the minimal axis-aligned box containing all points.
// An empty point set yields a zero box at the origin.
func BoundingBox(points []Point) Box {
	if len(points) == 0 {
		return Box{}
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}

	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)
	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// DisplayToSource maps a point on a scaled display surface back into the
// source image's pixel grid. The display is assumed to preserve the source
// aspect ratio, so one scale factor serves both axes.
func DisplayToSource(p Point, display, source Size) Point {
	if display.Width <= 0 {
		return p
	}
	scale := source.Width / display.Width
	return Point{X: p.X * scale, Y: p.Y * scale}
}

// FitWithinContainer returns the largest size with the source's aspect ratio
// that fits inside the container ("contain" fit).
func FitWithinContainer(container, source Size) Size {
	if container.Width <= 0 || container.Height <= 0 || source.Width <= 0 || source.Height <= 0 {
		return Size{}
	}

	sourceRatio := source.Width / source.Height
	containerRatio := container.Width / container.Height

	if sourceRatio > containerRatio {
		// Source is wider, constrain by width
		return Size{Width: container.Width, Height: container.Width / sourceRatio}
	}
	// Source is taller, constrain by height
	return Size{Width: container.Height * sourceRatio, Height: container.Height}
}
