// Package region defines the drawable redaction regions and the ordered
// collection that makes up one editing state.
//
// A Region is a closed sum type over three shapes, discriminated by Kind:
//
//   - Rectangle: X, Y, Width, Height
//   - Ellipse: X, Y, Width, Height, the bounding box of an inscribed ellipse
//   - Path: Points, a closed polygon (last point joins the first)
//
// All coordinates are absolute source-image pixels.
package region

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/ghostsnap/pkg/geometry"
)

// Kind discriminates the region shape
type Kind string

const (
	Rectangle Kind = "rectangle"
	Ellipse   Kind = "ellipse"
	Path      Kind = "path"
)

// MinExtent is the drag size (in pixels) a rectangle or ellipse must exceed
// on both axes to be kept.
const MinExtent = 5.0

// MinPathPoints is the minimum number of points of a freehand path.
const MinPathPoints = 2

var (
	// ErrDegenerate marks a candidate region too small to commit
	ErrDegenerate = errors.New("region: degenerate shape")
	// ErrUnknownKind marks a region with an unrecognised discriminant
	ErrUnknownKind = errors.New("region: unknown kind")
	// ErrIndexOutOfRange marks a removal outside the collection
	ErrIndexOutOfRange = errors.New("region: index out of range")
)

// Region is one area marked for redaction
type Region struct {
	Kind   Kind             `json:"type" yaml:"type"`
	X      float64          `json:"x,omitempty" yaml:"x,omitempty"`
	Y      float64          `json:"y,omitempty" yaml:"y,omitempty"`
	Width  float64          `json:"width,omitempty" yaml:"width,omitempty"`
	Height float64          `json:"height,omitempty" yaml:"height,omitempty"`
	Points []geometry.Point `json:"points,omitempty" yaml:"points,omitempty"`
}

// NewRectangle creates a rectangle region
func NewRectangle(x, y, width, height float64) Region {
	return Region{Kind: Rectangle, X: x, Y: y, Width: width, Height: height}
}

// NewEllipse creates an ellipse region inscribed in the given box
func NewEllipse(x, y, width, height float64) Region {
	return Region{Kind: Ellipse, X: x, Y: y, Width: width, Height: height}
}

// NewPath creates a freehand region. The points are copied.
func NewPath(points []geometry.Point) Region {
	pts := make([]geometry.Point, len(points))
	copy(pts, points)
	return Region{Kind: Path, Points: pts}
}

// FromBox creates a rectangle or ellipse region covering the box
func FromBox(kind Kind, b geometry.Box) Region {
	return Region{Kind: kind, X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

// Bounds returns the axis-aligned bounding box of the region
func (r Region) Bounds() geometry.Box {
	switch r.Kind {
	case Rectangle, Ellipse:
		return geometry.Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	case Path:
		return geometry.BoundingBox(r.Points)
	default:
		return geometry.Box{}
	}
}

// Validate reports whether the region may be committed.
func (r Region) Validate() error {
	if !r.finite() {
		return fmt.Errorf("%w: %s with non-finite coordinates", ErrDegenerate, r.Kind)
	}

	switch r.Kind {
	case Rectangle, Ellipse:
		if !(r.Width > MinExtent && r.Height > MinExtent) {
			return fmt.Errorf("%w: %s %.1fx%.1f (minimum above %.0fpx)", ErrDegenerate, r.Kind, r.Width, r.Height, MinExtent)
		}
	case Path:
		if len(r.Points) < MinPathPoints {
			return fmt.Errorf("%w: path with %d points", ErrDegenerate, len(r.Points))
		}
		if r.Bounds().Empty() {
			return fmt.Errorf("%w: path has no area", ErrDegenerate)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	return nil
}

// finite reports whether every coordinate is a real number
func (r Region) finite() bool {
	for _, v := range [...]float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, p := range r.Points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// Contains reports whether p hits the region. Paths use the even-odd rule,
// matching how the compositor clips them.
func (r Region) Contains(p geometry.Point) bool {
	switch r.Kind {
	case Rectangle:
		return r.Bounds().Contains(p)
	case Ellipse:
		rx, ry := r.Width/2, r.Height/2
		if rx <= 0 || ry <= 0 {
			return false
		}
		dx := (p.X - (r.X + rx)) / rx
		dy := (p.Y - (r.Y + ry)) / ry
		return dx*dx+dy*dy <= 1
	case Path:
		return evenOdd(r.Points, p)
	default:
		return false
	}
}

// evenOdd casts a horizontal ray from p and counts edge crossings
func evenOdd(points []geometry.Point, p geometry.Point) bool {
	n := len(points)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := points[i], points[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}
