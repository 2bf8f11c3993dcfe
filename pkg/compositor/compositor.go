// Package compositor renders redaction regions onto an image.
//
// Render starts from a fresh copy of the source and walks the region list
// in order. For each region it builds a clip matching the exact shape, runs
// the configured effect and keeps only the clipped pixels:
//
//   - Blur convolves the working canvas with a Gaussian whose sigma is the
//     configured radius. The kernel is not limited to the region, so edges
//     blend with the surrounding pixels.
//   - Pixelate crops the region's bounding box from the pristine source,
//     shrinks it to max(1, w/cell) x max(1, h/cell) cells and scales it back
//     up, both with nearest-neighbour sampling. Because it reads the pristine
//     source, overlapping pixelated regions never compound.
//
// Rendering is deterministic: the same source, regions and configuration
// always give bit-identical output.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ghostsnap/pkg/effects"
	"github.com/menta2k/ghostsnap/pkg/geometry"
	"github.com/menta2k/ghostsnap/pkg/region"
)

// ErrEmptySource is returned when the source has no pixels yet (for example
// before decoding finished). Callers keep their previous output.
var ErrEmptySource = errors.New("compositor: source image has no pixels")

// Compositor applies privacy effects to regions of an image
type Compositor struct{}

// New creates a new Compositor
func New() *Compositor {
	return &Compositor{}
}

// Render produces the composited image at the source's native resolution.
// Regions partly or fully outside the image are clipped to the intersection.
func (c *Compositor) Render(src image.Image, regions region.Collection, cfg effects.Config) (*image.NRGBA, error) {
	if src == nil {
		return nil, ErrEmptySource
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrEmptySource
	}
	cfg = cfg.Clamp()

	pristine := imaging.Clone(src)
	canvas := imaging.Clone(pristine)

	for i, r := range regions {
		cl, err := clipFor(r, canvas.Bounds())
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if cl.rect.Empty() {
			continue
		}

		var patch *image.NRGBA
		var origin image.Point
		switch cfg.Kind {
		case effects.Pixelate:
			patch, origin = pixelatePatch(pristine, r.Bounds(), cfg.CellSize)
		default:
			patch, origin = blurPatch(canvas, cl.rect, float64(cfg.BlurRadius))
		}
		if patch == nil {
			continue
		}
		cl.composite(canvas, patch, origin)
	}

	return canvas, nil
}

// blurPatch blurs the canvas around rect. The margin is wider than the
// Gaussian kernel radius (ceil(3*sigma)), so pixels inside rect come out
// exactly as if the whole canvas had been blurred.
func blurPatch(canvas *image.NRGBA, rect image.Rectangle, sigma float64) (*image.NRGBA, image.Point) {
	margin := int(math.Ceil(sigma*3)) + 1
	area := rect.Inset(-margin).Intersect(canvas.Bounds())
	if area.Empty() {
		return nil, image.Point{}
	}
	return imaging.Blur(imaging.Crop(canvas, area), sigma), area.Min
}

// pixelatePatch builds the blocky version of the box from the pristine source
func pixelatePatch(source *image.NRGBA, box geometry.Box, cellSize int) (*image.NRGBA, image.Point) {
	area := box.Pixels().Intersect(source.Bounds())
	if area.Empty() {
		return nil, image.Point{}
	}

	w, h := area.Dx(), area.Dy()
	cols := max(1, w/cellSize)
	rows := max(1, h/cellSize)

	small := imaging.Resize(imaging.Crop(source, area), cols, rows, imaging.NearestNeighbor)
	return imaging.Resize(small, w, h, imaging.NearestNeighbor), area.Min
}
