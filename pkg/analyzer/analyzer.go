package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	// ErrNotImage is returned when the declared media type is not image/*
	ErrNotImage = errors.New("analyzer: input is not an image")
	// ErrUnsupportedFormat is returned for images no registered decoder handles
	ErrUnsupportedFormat = errors.New("analyzer: unsupported image format")
	// ErrEmptyImage is returned for images with zero natural dimensions
	ErrEmptyImage = errors.New("analyzer: image has no pixels")
)

// ImageAnalyzer validates and decodes user supplied images
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	DefaultQuality   int
	SupportedFormats []string
	MinImageSize     int
}

// DefaultFormats lists every format the registered decoders understand
var DefaultFormats = []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			DefaultQuality:   90,
			SupportedFormats: DefaultFormats,
			MinImageSize:     1,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultFormats
	}
	if config.MinImageSize <= 0 {
		config.MinImageSize = 1
	}
	return &ImageAnalyzer{config: config}
}

// DefaultQuality returns the configured lossy encoding quality
func (a *ImageAnalyzer) DefaultQuality() int {
	return a.config.DefaultQuality
}

// LoadImage loads an image from file. The media type is taken from the
// file extension, falling back to content sniffing.
func (a *ImageAnalyzer) LoadImage(path string) (image.Image, ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	return a.LoadImageFromReader(file, MediaTypeFromPath(path))
}

// LoadImageFromReader decodes an image after checking its media type.
// An empty mediaType is sniffed from the content.
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader, mediaType string) (image.Image, ImageInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to read image data: %w", err)
	}
	return a.Decode(data, mediaType)
}

// Decode checks mediaType, decodes data and validates the result
func (a *ImageAnalyzer) Decode(data []byte, mediaType string) (image.Image, ImageInfo, error) {
	if mediaType == "" {
		mediaType = DetectMediaType(data)
	}
	if !IsImageMediaType(mediaType) {
		return nil, ImageInfo{}, fmt.Errorf("%w: %s", ErrNotImage, mediaType)
	}

	img, format, err := decode(data)
	if err != nil {
		return nil, ImageInfo{}, err
	}
	if !a.isFormatSupported(format) {
		return nil, ImageInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, ImageInfo{}, err
	}

	info := a.GetImageInfo(img)
	info.Format = format
	info.MediaType = mediaType
	return img, info, nil
}

func decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}

	// WebP variants the registered decoder rejects
	if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return img, "webp", nil
	}

	if errors.Is(err, image.ErrFormat) {
		return nil, "", ErrUnsupportedFormat
	}
	return nil, "", fmt.Errorf("failed to decode image: %w", err)
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
	Format      string
	MediaType   string
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	format = normalizeFormat(format)
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, normalizeFormat(supported)) {
			return true
		}
	}
	return false
}

// ValidateImage checks that an image has pixels and meets the minimum size
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	if img == nil {
		return ErrEmptyImage
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return ErrEmptyImage
	}
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// IsImageMediaType reports whether mediaType declares an image
func IsImageMediaType(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/")
}

// DetectMediaType sniffs the media type from the first bytes of data
func DetectMediaType(data []byte) string {
	// net/http does not sniff TIFF
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	return http.DetectContentType(data)
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// MediaTypeFromPath returns the media type implied by the file extension,
// or "" when the extension is unknown
func MediaTypeFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	return mime.TypeByExtension(ext)
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	switch format {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return format
}
