package main

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/ghostsnap"
	"github.com/menta2k/ghostsnap/internal/config"
	"github.com/menta2k/ghostsnap/pkg/detection"
	"github.com/menta2k/ghostsnap/pkg/region"
	"github.com/menta2k/ghostsnap/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 2), G: uint8(y * 2), B: 90, A: 255})
		}
	}
	return img
}

// stubDetector swaps newDetector for the duration of the test and reports
// whether the backend was closed
func stubDetector(t *testing.T, det detection.Detector) *bool {
	t.Helper()
	closed := false
	orig := newDetector
	newDetector = func(*config.Config, bool) (detection.Detector, *detection.VisionDetector, func(), error) {
		return det, nil, func() { closed = true }, nil
	}
	t.Cleanup(func() { newDetector = orig })
	return &closed
}

func newTestSession(t *testing.T) *ghostsnap.Session {
	t.Helper()
	s := ghostsnap.New()
	if err := s.SetImage(createTestImage(100, 50)); err != nil {
		t.Fatalf("SetImage failed: %v", err)
	}
	return s
}

func TestAutoDetect(t *testing.T) {
	closed := stubDetector(t, detection.DetectorFunc(func(context.Context, image.Image) ([]types.Box, error) {
		return []types.Box{{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}}, nil
	}))
	s := newTestSession(t)

	if err := autoDetect(context.Background(), config.Default(), s, false, false); err != nil {
		t.Fatalf("autoDetect failed: %v", err)
	}
	if len(s.Regions()) != 1 {
		t.Errorf("Expected one detected region, got %d", len(s.Regions()))
	}
	if !*closed {
		t.Error("Backend was not closed")
	}
}

func TestAutoDetectClosesOnFailure(t *testing.T) {
	boom := errors.New("backend down")
	closed := stubDetector(t, detection.DetectorFunc(func(context.Context, image.Image) ([]types.Box, error) {
		return nil, boom
	}))
	s := newTestSession(t)

	err := autoDetect(context.Background(), config.Default(), s, false, false)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the backend error, got %v", err)
	}
	if !*closed {
		t.Error("Backend was not closed after a failed detection")
	}
	if len(s.Regions()) != 0 {
		t.Error("A failed detection added regions")
	}
}

func TestAutoDetectCheckCloses(t *testing.T) {
	closed := stubDetector(t, detection.DetectorFunc(func(context.Context, image.Image) ([]types.Box, error) {
		return nil, nil
	}))

	// a backend that is neither a vision client nor tesseract has no check
	if err := autoDetect(context.Background(), config.Default(), newTestSession(t), true, false); err == nil {
		t.Error("Expected an error for a backend without a check")
	}
	if !*closed {
		t.Error("Backend was not closed after the check")
	}
}

func TestWriteRegions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.json")
	regions := region.Collection{region.NewRectangle(1, 2, 30, 40)}

	if err := writeRegions(path, regions); err != nil {
		t.Fatalf("writeRegions failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got region.Collection
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Invalid JSON written: %v", err)
	}
	if len(got) != 1 || got[0].Width != 30 {
		t.Errorf("Unexpected regions %+v", got)
	}

	// NaN cannot be encoded; nothing is written
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := writeRegions(bad, region.Collection{{Kind: region.Rectangle, X: math.NaN()}}); err == nil {
		t.Error("Expected an encoding error")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("No file should be written when encoding fails")
	}
}
