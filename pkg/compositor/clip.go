package compositor

import (
	"fmt"
	"image"

	"github.com/gogpu/gg"

	"github.com/menta2k/ghostsnap/pkg/geometry"
	"github.com/menta2k/ghostsnap/pkg/region"
)

// rasterLimit is the largest region extent handed to the rasterizer.
// Larger outlines lose precision there and are point-sampled instead.
const rasterLimit = 1 << 16

// clip is the set of canvas pixels one region may change
type clip struct {
	rect image.Rectangle
	// cover holds per-pixel coverage relative to rect.Min; nil means every
	// pixel of rect is fully covered.
	cover *gg.Mask
}

// clipFor builds the clip of a region within bounds. Rectangles are snapped
// to the pixels whose centers they contain. Ellipses and paths are
// rasterized with anti-aliased coverage; paths use the even-odd rule.
func clipFor(r region.Region, bounds image.Rectangle) (clip, error) {
	switch r.Kind {
	case region.Rectangle:
		return clip{rect: r.Bounds().CenterSampled().Intersect(bounds)}, nil
	case region.Ellipse, region.Path:
		area := r.Bounds().Pixels().Intersect(bounds)
		if area.Empty() {
			return clip{}, nil
		}
		if b := r.Bounds(); b.Width > rasterLimit || b.Height > rasterLimit {
			return clip{rect: area, cover: sample(r, area)}, nil
		}
		mask, err := rasterize(r, area)
		if err != nil {
			return clip{}, err
		}
		return clip{rect: area, cover: mask}, nil
	default:
		return clip{}, fmt.Errorf("%w: %q", region.ErrUnknownKind, r.Kind)
	}
}

// rasterize fills the region's outline into a mask the size of area
func rasterize(r region.Region, area image.Rectangle) (*gg.Mask, error) {
	dc := gg.NewContext(area.Dx(), area.Dy())
	defer func() { _ = dc.Close() }()

	dc.SetFillRule(gg.FillRuleEvenOdd)
	dc.SetRGBA(1, 1, 1, 1)

	ox, oy := float64(area.Min.X), float64(area.Min.Y)
	switch r.Kind {
	case region.Ellipse:
		rx, ry := r.Width/2, r.Height/2
		dc.DrawEllipse(r.X+rx-ox, r.Y+ry-oy, rx, ry)
	case region.Path:
		for i, p := range r.Points {
			if i == 0 {
				dc.MoveTo(p.X-ox, p.Y-oy)
				continue
			}
			dc.LineTo(p.X-ox, p.Y-oy)
		}
		dc.ClosePath()
	}

	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("rasterize %s clip: %w", r.Kind, err)
	}
	return gg.NewMaskFromAlpha(dc.Image()), nil
}

// sample builds a hard-edged mask by testing each pixel center in area
func sample(r region.Region, area image.Rectangle) *gg.Mask {
	alpha := image.NewAlpha(area)
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if r.Contains(geometry.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}) {
				alpha.Pix[alpha.PixOffset(x, y)] = 255
			}
		}
	}
	return gg.NewMaskFromAlpha(alpha)
}

// composite copies patch pixels into dst wherever the clip covers them.
// origin is the canvas position of the patch's top-left pixel.
func (c clip) composite(dst, patch *image.NRGBA, origin image.Point) {
	area := c.rect.Intersect(patch.Bounds().Add(origin)).Intersect(dst.Bounds())

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			alpha := uint8(255)
			if c.cover != nil {
				alpha = c.cover.At(x-c.rect.Min.X, y-c.rect.Min.Y)
				if alpha == 0 {
					continue
				}
			}

			di := dst.PixOffset(x, y)
			si := patch.PixOffset(x-origin.X, y-origin.Y)
			if alpha == 255 {
				copy(dst.Pix[di:di+4], patch.Pix[si:si+4])
				continue
			}
			for k := 0; k < 4; k++ {
				dst.Pix[di+k] = mix(dst.Pix[di+k], patch.Pix[si+k], alpha)
			}
		}
	}
}

// mix blends a toward b by t/255
func mix(a, b, t uint8) uint8 {
	return uint8((int(a)*(255-int(t)) + int(b)*int(t) + 127) / 255)
}
