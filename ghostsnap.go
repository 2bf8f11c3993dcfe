// Package ghostsnap redacts sensitive areas of an image.
//
// A Session holds one image and an undoable list of regions drawn over it.
// Every change to the regions or the effect recomposes the output: each
// region is blurred or pixelated in place, clipped to its exact shape.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		"github.com/menta2k/ghostsnap"
//		"github.com/menta2k/ghostsnap/pkg/effects"
//		"github.com/menta2k/ghostsnap/pkg/region"
//	)
//
//	func main() {
//		s := ghostsnap.New()
//		if err := s.LoadImage("screenshot.png"); err != nil {
//			log.Fatal(ghostsnap.UserMessage(err))
//		}
//
//		s.AddRegions(region.NewRectangle(10, 10, 120, 24))
//		s.SetEffect(effects.Config{Kind: effects.Pixelate, CellSize: 12})
//
//		if err := s.Save("screenshot-redacted.png"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these main components:
//
//  1. History (pkg/history): linear undo/redo over region snapshots
//  2. Compositor (pkg/compositor): applies the effect inside each region
//  3. Gesture (pkg/gesture): turns pointer events into regions
//  4. Detection (pkg/detection): proposes regions using a vision model or OCR
//
// Regions are stored in source-image pixels. A UI that shows the image
// scaled uses DisplaySize and ToSource to convert pointer positions.
package ghostsnap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ghostsnap/pkg/analyzer"
	"github.com/menta2k/ghostsnap/pkg/compositor"
	"github.com/menta2k/ghostsnap/pkg/detection"
	"github.com/menta2k/ghostsnap/pkg/effects"
	"github.com/menta2k/ghostsnap/pkg/geometry"
	"github.com/menta2k/ghostsnap/pkg/gesture"
	"github.com/menta2k/ghostsnap/pkg/history"
	"github.com/menta2k/ghostsnap/pkg/processing"
	"github.com/menta2k/ghostsnap/pkg/region"
)

// Version of the ghostsnap library
const Version = "1.0.0"

// DefaultFilename is offered when saving the redacted image
const DefaultFilename = "ghostsnap-image.png"

var (
	// ErrNoImage is returned by operations that need a loaded image
	ErrNoImage = errors.New("ghostsnap: no image loaded")
	// ErrNoDetector is returned by Detect when no detector is configured
	ErrNoDetector = errors.New("ghostsnap: no detector configured")
	// ErrImageChanged is returned when the image was replaced while a
	// detection was running. The detection results are discarded.
	ErrImageChanged = errors.New("ghostsnap: image changed during detection")
)

// Config configures a Session
type Config struct {
	Analyzer analyzer.Config
	Effect   effects.Config
	// Detector is optional; Detect fails with ErrNoDetector without one
	Detector detection.Detector
	Output   OutputConfig
}

// OutputConfig controls how the composite is encoded
type OutputConfig struct {
	Quality  int
	Lossless bool
}

// Session is one redaction session: a source image, the region history and
// the current composite. All methods are safe for concurrent use; Detect is
// the only one that blocks on I/O, and it does so without holding the
// session lock.
type Session struct {
	mu sync.Mutex

	analyzer   *analyzer.ImageAnalyzer
	processor  *processing.Processor
	compositor *compositor.Compositor
	detector   detection.Detector
	guard      *detection.Guard
	history    *history.History
	gesture    *gesture.Machine
	effect     effects.Config
	output     OutputConfig

	source image.Image
	info   analyzer.ImageInfo
	// generation is bumped on every image load so a detection started on
	// an earlier image can tell its results are stale
	generation uint64
	composite  *image.NRGBA
}

// New creates a Session with default configuration and no detector
func New() *Session {
	return NewWithConfig(Config{Effect: effects.Default()})
}

// NewWithConfig creates a Session with custom configuration
func NewWithConfig(cfg Config) *Session {
	if cfg.Output.Quality <= 0 || cfg.Output.Quality > 100 {
		cfg.Output.Quality = 90
	}
	return &Session{
		analyzer:   analyzer.NewWithConfig(cfg.Analyzer),
		processor:  processing.NewProcessor(),
		compositor: compositor.New(),
		detector:   cfg.Detector,
		guard:      detection.NewGuard(),
		history:    history.New(),
		gesture:    gesture.New(gesture.Rectangle),
		effect:     cfg.Effect.Clamp(),
		output:     cfg.Output,
	}
}

// SetDetector replaces the detector used by Detect
func (s *Session) SetDetector(d detection.Detector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detector = d
}

// LoadImage loads the source image from a file. A rejected file leaves the
// session unchanged.
func (s *Session) LoadImage(path string) error {
	img, info, err := s.analyzer.LoadImage(path)
	if err != nil {
		return err
	}
	s.setImage(img, info)
	return nil
}

// LoadImageFromReader loads the source image from r. mediaType is the
// declared type of the data; pass "" to sniff it.
func (s *Session) LoadImageFromReader(r io.Reader, mediaType string) error {
	img, info, err := s.analyzer.LoadImageFromReader(r, mediaType)
	if err != nil {
		return err
	}
	s.setImage(img, info)
	return nil
}

// LoadImageFromURL downloads the source image over http or https
func (s *Session) LoadImageFromURL(ctx context.Context, imageURL string) error {
	data, mediaType, err := s.processor.Download(ctx, imageURL)
	if err != nil {
		return err
	}
	img, info, err := s.analyzer.Decode(data, mediaType)
	if err != nil {
		return err
	}
	s.setImage(img, info)
	return nil
}

// Open loads the source image from an http(s) URL or a file path. Files
// are typed by extension, downloads by their Content-Type header.
func (s *Session) Open(ctx context.Context, source string) error {
	data, mediaType, err := s.processor.Fetch(ctx, source)
	if err != nil {
		return err
	}
	if mediaType == "" {
		mediaType = analyzer.MediaTypeFromPath(source)
	}
	img, info, err := s.analyzer.Decode(data, mediaType)
	if err != nil {
		return err
	}
	s.setImage(img, info)
	return nil
}

// SetImage uses an already decoded image as the source
func (s *Session) SetImage(img image.Image) error {
	if img == nil {
		return analyzer.ErrEmptyImage
	}
	if err := s.analyzer.ValidateImage(img); err != nil {
		return err
	}
	s.setImage(img, s.analyzer.GetImageInfo(img))
	return nil
}

// setImage starts a fresh session on img: history back to the single empty
// snapshot, any gesture dropped, output recomposed
func (s *Session) setImage(img image.Image, info analyzer.ImageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = img
	s.info = info
	s.generation++
	s.history.Reset()
	s.gesture.Cancel()
	s.composite = nil
	s.recompose()

	Logger().Info("image loaded", "width", info.Width, "height", info.Height, "format", info.Format)
}

// Image returns the source image, or nil
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Info returns the natural size and format of the source image
func (s *Session) Info() analyzer.ImageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Regions returns the current region collection. The slice is a copy.
func (s *Session) Regions() region.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.history.Current()
	out := make(region.Collection, len(cur))
	copy(out, cur)
	return out
}

// AddRegions appends the valid candidates as a single history entry and
// returns how many were kept. Degenerate candidates are dropped silently;
// when none survive no entry is recorded.
func (s *Session) AddRegions(candidates ...region.Region) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return 0, ErrNoImage
	}
	return s.appendRegions(candidates), nil
}

func (s *Session) appendRegions(candidates []region.Region) int {
	valid := region.Valid(candidates)
	if len(valid) == 0 {
		return 0
	}
	s.history.Commit(func(cur region.Collection) region.Collection {
		return cur.Append(valid...)
	})
	Logger().Debug("regions added", "count", len(valid), "history", s.history.Len())
	s.recompose()
	return len(valid)
}

// RemoveRegion deletes the region at index i as one history entry
func (s *Session) RemoveRegion(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.history.Current().RemoveAt(i)
	if err != nil {
		return err
	}
	s.history.Commit(func(region.Collection) region.Collection { return next })
	Logger().Debug("region removed", "index", i)
	s.recompose()
	return nil
}

// RemoveRegionAt deletes the topmost region containing p. It reports
// whether anything was removed; a miss records no history entry.
func (s *Session) RemoveRegionAt(p geometry.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeAt(p)
}

func (s *Session) removeAt(p geometry.Point) bool {
	i := s.history.Current().TopmostAt(p)
	if i < 0 {
		return false
	}
	next, err := s.history.Current().RemoveAt(i)
	if err != nil {
		return false
	}
	s.history.Commit(func(region.Collection) region.Collection { return next })
	Logger().Debug("region removed", "index", i, "x", p.X, "y", p.Y)
	s.recompose()
	return true
}

// Clear removes every region as one history entry. Clearing an already
// empty collection records nothing.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history.Current()) == 0 {
		return
	}
	s.history.Commit(region.Collection.Clear)
	Logger().Debug("regions cleared")
	s.recompose()
}

// Undo steps back one history entry. It reports whether anything changed.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.history.Undo() {
		return false
	}
	Logger().Debug("undo", "index", s.history.Index())
	s.recompose()
	return true
}

// Redo steps forward one history entry. It reports whether anything changed.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.history.Redo() {
		return false
	}
	Logger().Debug("redo", "index", s.history.Index())
	s.recompose()
	return true
}

// CanUndo reports whether Undo would do anything
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

// CanRedo reports whether Redo would do anything
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// Tool returns the active drawing tool
func (s *Session) Tool() gesture.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gesture.Tool()
}

// SetTool switches the drawing tool, discarding any shape being drawn
func (s *Session) SetTool(t gesture.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture.SetTool(t)
}

// PointerDown handles a press at p, in source pixels. With the pointer tool
// it deletes the topmost region under p; with a drawing tool it starts a
// shape.
func (s *Session) PointerDown(p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return ErrNoImage
	}
	if s.gesture.Tool() == gesture.Pointer {
		s.removeAt(p)
		return nil
	}
	s.gesture.Down(p)
	return nil
}

// PointerMove extends the shape being drawn
func (s *Session) PointerMove(p geometry.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture.Move(p)
}

// PointerUp finishes the gesture and commits the shape if it is large
// enough. It reports whether a region was added.
func (s *Session) PointerUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.gesture.Up()
	if !ok {
		return false
	}
	return s.appendRegions([]region.Region{r}) > 0
}

// PointerLeave handles the pointer leaving the surface. A gesture in
// progress is finished exactly as on PointerUp.
func (s *Session) PointerLeave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.gesture.Leave()
	if !ok {
		return false
	}
	return s.appendRegions([]region.Region{r}) > 0
}

// Preview returns the shape currently being drawn
func (s *Session) Preview() (region.Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gesture.Preview()
}

// Effect returns the effect configuration
func (s *Session) Effect() effects.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effect
}

// SetEffect changes the effect. Numeric parameters are clamped into range.
// The change is not recorded in history.
func (s *Session) SetEffect(cfg effects.Config) error {
	cfg = cfg.Clamp()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.effect {
		return nil
	}
	s.effect = cfg
	Logger().Debug("effect changed", "effect", cfg.String())
	s.recompose()
	return nil
}

// Busy reports whether a detection is in flight
func (s *Session) Busy() bool {
	return s.guard.Busy()
}

// Detect asks the detector for sensitive areas of the current image and
// adds them as rectangles in one history entry. It returns the number of
// regions added.
//
// Only one detection runs at a time; a second call returns
// detection.ErrDetectionInProgress. Backend failures are wrapped in
// detection.ErrDetectionFailed and leave the regions untouched.
func (s *Session) Detect(ctx context.Context) (int, error) {
	s.mu.Lock()
	src, info, gen, det := s.source, s.info, s.generation, s.detector
	s.mu.Unlock()

	if src == nil {
		return 0, ErrNoImage
	}
	if det == nil {
		return 0, ErrNoDetector
	}

	var added int
	err := s.guard.Run(ctx, func(ctx context.Context) error {
		Logger().Debug("detection started", "width", info.Width, "height", info.Height)

		boxes, err := det.Detect(ctx, src)
		if err != nil {
			return fmt.Errorf("%w: %w", detection.ErrDetectionFailed, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return ErrImageChanged
		}
		added = s.appendRegions(detection.ToRegions(boxes, info.Width, info.Height))
		Logger().Debug("detection finished", "boxes", len(boxes), "added", added)
		return nil
	})
	if err != nil && !errors.Is(err, detection.ErrDetectionInProgress) {
		Logger().Warn("detection failed", "error", err)
	}
	return added, err
}

// Overlay returns a copy of the composite with editing guides drawn on it.
// With the pointer tool every region is outlined as deletable, and a shape
// being drawn is outlined as a dashed preview.
func (s *Session) Overlay() (image.Image, error) {
	s.mu.Lock()
	out := s.composite
	var deletable region.Collection
	if s.gesture.Tool() == gesture.Pointer {
		deletable = s.history.Current()
	}
	preview, drawing := s.gesture.Preview()
	s.mu.Unlock()

	if out == nil {
		return nil, ErrNoImage
	}
	if len(deletable) == 0 && !drawing {
		return imaging.Clone(out), nil
	}

	var img image.Image = out
	var err error
	if len(deletable) > 0 {
		if img, err = s.processor.Overlay(img, deletable, processing.SelectStyle); err != nil {
			return nil, err
		}
	}
	if drawing {
		if img, err = s.processor.Overlay(img, []region.Region{preview}, processing.DrawingStyle); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// recompose renders the current regions. It must be called with s.mu held.
// When the source cannot be rendered the previous output is kept.
func (s *Session) recompose() {
	if s.source == nil {
		return
	}
	out, err := s.compositor.Render(s.source, s.history.Current(), s.effect)
	if err != nil {
		Logger().Warn("composite skipped", "error", err)
		return
	}
	s.composite = out
}

// Output returns the latest composite, or nil before an image is loaded
func (s *Session) Output() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composite
}

// Encode writes the composite to w. format is png, jpg, webp, bmp or tiff;
// empty means png.
func (s *Session) Encode(w io.Writer, format string) error {
	s.mu.Lock()
	out := s.composite
	s.mu.Unlock()

	if out == nil {
		return ErrNoImage
	}
	return s.processor.Encode(w, out, format, s.output.Quality, s.output.Lossless)
}

// Save writes the composite to path, choosing the format from its
// extension. An empty path uses DefaultFilename.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	out := s.composite
	s.mu.Unlock()

	if out == nil {
		return ErrNoImage
	}
	if path == "" {
		path = DefaultFilename
	}
	format := processing.FormatFromPath(path)
	if format == "" {
		format = "png"
	}
	return s.processor.SaveImage(out, path, format, s.output.Quality, s.output.Lossless)
}

// DisplaySize returns the size the image takes when fitted inside a
// container of the given size, preserving its aspect ratio
func (s *Session) DisplaySize(container geometry.Size) geometry.Size {
	return geometry.FitWithinContainer(container, s.naturalSize())
}

// ToSource maps a point on the displayed image back to source pixels
func (s *Session) ToSource(p geometry.Point, display geometry.Size) geometry.Point {
	return geometry.DisplayToSource(p, display, s.naturalSize())
}

func (s *Session) naturalSize() geometry.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return geometry.Size{Width: float64(s.info.Width), Height: float64(s.info.Height)}
}

// UserMessage converts an error from the session into a message suitable
// for showing to a user
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, analyzer.ErrNotImage),
		errors.Is(err, analyzer.ErrUnsupportedFormat),
		errors.Is(err, analyzer.ErrEmptyImage):
		return "Please select a valid image file."
	case errors.Is(err, detection.ErrDetectionInProgress):
		return "Detection is already running."
	case errors.Is(err, ErrImageChanged):
		return "The image changed while detection was running."
	case errors.Is(err, ErrNoDetector):
		return "Auto-detect is not configured."
	case errors.Is(err, detection.ErrDetectionFailed):
		return "Failed to detect sensitive areas. Please try again."
	case errors.Is(err, ErrNoImage):
		return "Please load an image first."
	default:
		return err.Error()
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
