package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"

	"github.com/menta2k/ghostsnap/pkg/region"
)

// OverlayStyle controls how region outlines are drawn
type OverlayStyle struct {
	Color     color.NRGBA
	LineWidth float64
	Dash      []float64
}

var (
	// DrawingStyle is the cyan dashed outline used while a shape is drawn
	DrawingStyle = OverlayStyle{Color: color.NRGBA{0, 255, 255, 255}, Dash: []float64{6, 4}}
	// SelectStyle is the red outline used when regions can be deleted
	SelectStyle = OverlayStyle{Color: color.NRGBA{255, 0, 0, 255}}
)

// Overlay returns a copy of img with every region outlined. The line width
// defaults to about 0.3% of the shorter side.
func (p *Processor) Overlay(img image.Image, regions []region.Region, style OverlayStyle) (image.Image, error) {
	dc := gg.NewContextForImage(imaging.Clone(img))
	defer func() { _ = dc.Close() }()

	w, h := dc.Width(), dc.Height()
	lineWidth := style.LineWidth
	if lineWidth <= 0 {
		lineWidth = math.Max(2, 0.003*math.Min(float64(w), float64(h)))
	}

	dc.SetColor(style.Color)
	dc.SetLineWidth(lineWidth)
	if len(style.Dash) > 0 {
		dc.SetDash(style.Dash...)
	}

	for i, r := range regions {
		switch r.Kind {
		case region.Rectangle:
			dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
		case region.Ellipse:
			dc.DrawEllipse(r.X+r.Width/2, r.Y+r.Height/2, r.Width/2, r.Height/2)
		case region.Path:
			for j, pt := range r.Points {
				x := clamp(pt.X, -1, float64(w)+1)
				y := clamp(pt.Y, -1, float64(h)+1)
				if j == 0 {
					dc.MoveTo(x, y)
				} else {
					dc.LineTo(x, y)
				}
			}
			dc.ClosePath()
		default:
			return nil, fmt.Errorf("overlay region %d: %w", i, region.ErrUnknownKind)
		}
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("overlay region %d: %w", i, err)
		}
	}

	return dc.Image(), nil
}
