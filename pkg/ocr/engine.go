// Package ocr finds personal data in an image with Tesseract.
//
// It is an offline alternative to the vision model backends: words are
// recognised locally and matched against patterns for emails, phone
// numbers, payment cards and similar identifiers.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/ghostsnap/pkg/processing"
	"github.com/menta2k/ghostsnap/pkg/types"
)

// Engine provides OCR based detection using Tesseract.
// A gosseract client is not safe for concurrent use, so calls are serialised.
type Engine struct {
	mu            sync.Mutex
	client        *gosseract.Client
	processor     *processing.Processor
	minConfidence float64
	padding       int
}

// NewEngine creates a new OCR engine. languages is a tesseract language
// list such as "eng" or "eng+deu".
func NewEngine(languages string) (*Engine, error) {
	client := gosseract.NewClient()

	langs := strings.FieldsFunc(languages, func(r rune) bool { return r == '+' || r == ',' })
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	return &Engine{
		client:        client,
		processor:     processing.NewProcessor(),
		minConfidence: 40,
		padding:       2,
	}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Words recognises every word in img
func (e *Engine) Words(ctx context.Context, img image.Image) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := e.processor.Encode(&buf, img, "png", 0, true); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Sparse text finds isolated labels in screenshots
	if err := e.client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	// Only the verbose variant fills in block, paragraph and line numbers
	boxes, err := e.client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("failed to get boxes: %w", err)
	}

	origin := img.Bounds().Min
	words := make([]Word, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" || box.Confidence < e.minConfidence {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Bounds:     box.Box.Add(origin),
			Confidence: box.Confidence,
			Block:      box.BlockNum,
			Par:        box.ParNum,
			Line:       box.LineNum,
		})
	}
	return words, nil
}

// Detect implements detection.Detector. Each personal data match becomes
// one proportional box, padded by a couple of pixels.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]types.Box, error) {
	words, err := e.Words(ctx, img)
	if err != nil {
		return nil, err
	}
	return ToBoxes(FindPII(words), img.Bounds(), e.padding), nil
}

// ToBoxes converts pixel matches to proportional boxes within bounds
func ToBoxes(matches []Match, bounds image.Rectangle, padding int) []types.Box {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	boxes := make([]types.Box, 0, len(matches))
	if w <= 0 || h <= 0 {
		return boxes
	}

	for _, m := range matches {
		r := m.Bounds.Inset(-padding).Intersect(bounds)
		if r.Empty() {
			continue
		}
		r = r.Sub(bounds.Min)
		boxes = append(boxes, types.Box{
			X:      float64(r.Min.X) / w,
			Y:      float64(r.Min.Y) / h,
			Width:  float64(r.Dx()) / w,
			Height: float64(r.Dy()) / h,
			Label:  m.Label,
		})
	}
	return boxes
}
