package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetFileExtension(t *testing.T) {
	tests := map[string]string{
		"a.PNG":        "png",
		"dir/b.tar.gz": "gz",
		"noext":        "",
	}
	for in, want := range tests {
		if got := GetFileExtension(in); got != want {
			t.Errorf("GetFileExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.webp", "d.tif"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be an image file", name)
		}
	}
	for _, name := range []string{"a.txt", "b", "c.pdf"} {
		if IsImageFile(name) {
			t.Errorf("%s should not be an image file", name)
		}
	}
}

func TestRedactedFilename(t *testing.T) {
	if got := RedactedFilename(filepath.Join("photos", "cat.jpg"), "png", "x.png"); got != filepath.Join("photos", "cat-redacted.png") {
		t.Errorf("Unexpected name %q", got)
	}
	if got := RedactedFilename("https://example.com/a.jpg", "png", "ghostsnap-image.png"); got != "ghostsnap-image.png" {
		t.Errorf("URL input should use the default name, got %q", got)
	}
	if got := RedactedFilename("cat.jpg", "", "x.png"); got != "cat-redacted.png" {
		t.Errorf("Expected png default, got %q", got)
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if FileExists(dir) {
		t.Error("FileExists should be false for directories")
	}

	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(file) {
		t.Error("FileExists should be true for a regular file")
	}
	if FileExists(filepath.Join(dir, "missing")) {
		t.Error("FileExists should be false for missing files")
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(` a:b*c?.`); got != "a_b_c_" {
		t.Errorf("Unexpected sanitized name %q", got)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KB",
		5 << 20: "5.0 MB",
	}
	for in, want := range tests {
		if got := FormatFileSize(in); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", in, got, want)
		}
	}
}
