package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/ghostsnap/pkg/region"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 64, 255})
		}
	}
	return img
}

func TestDownload(t *testing.T) {
	var pngBytes bytes.Buffer
	if err := png.Encode(&pngBytes, createTestImage(8, 8)); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			if r.Header.Get("User-Agent") == "" {
				t.Error("Expected a User-Agent header")
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	data, mediaType, err := p.Download(context.Background(), srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if mediaType != "image/png" || !bytes.Equal(data, pngBytes.Bytes()) {
		t.Errorf("Unexpected download: type=%q len=%d", mediaType, len(data))
	}

	if _, _, err := p.Download(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Expected error for 404")
	}
	if _, _, err := p.Download(context.Background(), "ftp://example.com/a.png"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestFetchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	data, mediaType, err := NewProcessor().Fetch(context.Background(), path)
	if err != nil || string(data) != "abc" || mediaType != "" {
		t.Errorf("Fetch = %q, %q, %v", data, mediaType, err)
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "jpg", 100, 80)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Payload is not a jpeg: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("Expected 100x50 after downscale, got %v", img.Bounds())
	}
}

func TestEncodeFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(20, 10)

	for _, format := range []string{"png", "jpg", "jpeg", "webp", "bmp", "tiff"} {
		var buf bytes.Buffer
		if err := p.Encode(&buf, img, format, 85, false); err != nil {
			t.Errorf("%s: encode failed: %v", format, err)
			continue
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty output", format)
		}
	}

	var buf bytes.Buffer
	if err := p.Encode(&buf, img, "svg", 85, false); !errors.Is(err, ErrUnsupportedOutput) {
		t.Errorf("Expected ErrUnsupportedOutput, got %v", err)
	}
}

func TestSaveImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()

	path := filepath.Join(dir, "out.png")
	if err := p.SaveImage(createTestImage(12, 12), path, "", 90, false); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("Saved file is not a png: %v", err)
	}

	bad := filepath.Join(dir, "out.xyz")
	if err := p.SaveImage(createTestImage(4, 4), bad, "", 90, false); err == nil {
		t.Error("Expected error for unknown extension")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("Failed save should not leave a file behind")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"a.PNG":     "png",
		"b.jpeg":    "jpg",
		"c.webp":    "webp",
		"dir/d.tif": "tiff",
		"no-ext":    "",
	}
	for in, want := range tests {
		if got := FormatFromPath(in); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOverlay(t *testing.T) {
	p := NewProcessor()
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	regions := []region.Region{
		region.NewRectangle(10, 10, 30, 30),
		region.NewEllipse(50, 50, 40, 30),
	}
	out, err := p.Overlay(src, regions, OverlayStyle{Color: color.NRGBA{255, 0, 0, 255}, LineWidth: 3})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	r, g, _, _ := out.At(10, 25).RGBA()
	if r>>8 < 200 || g>>8 > 100 {
		t.Errorf("Expected red outline at left edge, got r=%d g=%d", r>>8, g>>8)
	}
	r, g, _, _ = out.At(25, 25).RGBA()
	if r>>8 != 255 || g>>8 != 255 {
		t.Error("Interior of the rectangle should stay white")
	}
	if src.NRGBAAt(10, 25) != (color.NRGBA{255, 255, 255, 255}) {
		t.Error("Overlay modified the source image")
	}

	if _, err := p.Overlay(src, []region.Region{{Kind: "hexagon"}}, SelectStyle); !errors.Is(err, region.ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}
