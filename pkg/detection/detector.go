package detection

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/ghostsnap/pkg/client"
	"github.com/menta2k/ghostsnap/pkg/processing"
	"github.com/menta2k/ghostsnap/pkg/region"
	"github.com/menta2k/ghostsnap/pkg/types"
)

var (
	// ErrDetectionInProgress is returned when a detection is already running
	ErrDetectionInProgress = errors.New("detection: a detection is already in progress")
	// ErrMalformedResponse is returned when the reply holds no usable box list
	ErrMalformedResponse = errors.New("detection: malformed detector response")
	// ErrDetectionFailed wraps every backend failure surfaced to callers
	ErrDetectionFailed = errors.New("detection: failed to process image")
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultSystemPrompt instructs the model to answer with proportional boxes only
const DefaultSystemPrompt = `You are an expert privacy protection tool. Analyze this image and identify all areas that contain sensitive or personally identifiable information (PII).
This includes, but is not limited to: names, email addresses, phone numbers, physical addresses, faces, credit card numbers, social security numbers, license plates, and any other private data.
For each identified sensitive area, provide its bounding box coordinates. The origin (0,0) is the top-left corner of the image.
The response must be a JSON array of objects, where each object has "x", "y", "width", and "height" properties.
The values must be numbers between 0 and 1, representing the proportional location and size relative to the image dimensions.
Do not provide any other text or explanation in your response. Only return the JSON array.`

// DefaultPrompt is the user turn sent with the image
const DefaultPrompt = `Analyze this image and identify all sensitive PII areas.`

// ResponseSchema is the JSON schema of the expected reply, for backends that
// support structured output
const ResponseSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "x": {"type": "number"},
      "y": {"type": "number"},
      "width": {"type": "number"},
      "height": {"type": "number"}
    },
    "required": ["x", "y", "width", "height"]
  }
}`

// Detector proposes sensitive areas of an image as proportional boxes.
// Results are unordered and may overlap.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Box, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) ([]types.Box, error)

// Detect calls f
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]types.Box, error) {
	return f(ctx, img)
}

// Options configures a VisionDetector
type Options struct {
	Model        string
	SendFormat   string
	SendSize     int
	SendQuality  int
	SystemPrompt string
	Prompt       string
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		Model:        "qwen2.5vl:7b",
		SendFormat:   "jpg",
		SendSize:     1536,
		SendQuality:  85,
		SystemPrompt: DefaultSystemPrompt,
		Prompt:       DefaultPrompt,
	}
}

// VisionDetector finds sensitive areas using a vision language model
type VisionDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	opts      Options
}

// NewVisionDetector creates a detector on top of a vision client. Zero
// option fields take their defaults.
func NewVisionDetector(c client.VisionClient, opts Options) *VisionDetector {
	def := DefaultOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.SendFormat == "" {
		opts.SendFormat = def.SendFormat
	}
	if opts.SendSize <= 0 {
		opts.SendSize = def.SendSize
	}
	if opts.SendQuality <= 0 || opts.SendQuality > 100 {
		opts.SendQuality = def.SendQuality
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = def.SystemPrompt
	}
	if opts.Prompt == "" {
		opts.Prompt = def.Prompt
	}
	return &VisionDetector{client: c, processor: processing.NewProcessor(), opts: opts}
}

// Options returns the effective options
func (d *VisionDetector) Options() Options {
	return d.opts
}

// Client returns the underlying vision client
func (d *VisionDetector) Client() client.VisionClient {
	return d.client
}

// Detect sends a downscaled copy of img to the model and parses its reply
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.Box, error) {
	imageB64, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	raw, err := d.client.Query(ctx, d.opts.Model, d.opts.SystemPrompt, d.opts.Prompt, imageB64)
	if err != nil {
		return nil, err
	}

	w, h := sentSize(img.Bounds(), d.opts.SendSize)
	return ParseBoxes(raw, w, h)
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imageB64, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return "", fmt.Errorf("prepare image: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.opts.Model, SimpleTestPrompt, imageB64)
}

// sentSize mirrors the downscale done by PrepareImageForModel
func sentSize(b image.Rectangle, maxDim int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

// ToRegions converts proportional boxes to rectangles in source pixels
func ToRegions(boxes []types.Box, width, height int) []region.Region {
	fw, fh := float64(width), float64(height)
	out := make([]region.Region, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, region.NewRectangle(b.X*fw, b.Y*fh, b.Width*fw, b.Height*fh))
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox forces box coordinates into [0,1]. Boxes that are clearly in
// pixels are divided by the image size first when it is known.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.Width > 1 || b.Height > 1) {
		b.X /= float64(imgW)
		b.Y /= float64(imgH)
		b.Width /= float64(imgW)
		b.Height /= float64(imgH)
	}

	b.X = clamp(b.X, 0, 1)
	b.Y = clamp(b.Y, 0, 1)
	b.Width = clamp(b.Width, 0, 1-b.X)
	b.Height = clamp(b.Height, 0, 1-b.Y)
	return b
}
