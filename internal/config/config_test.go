package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/ghostsnap/pkg/effects"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Effect.Kind != effects.Blur || cfg.Effect.BlurRadius != 20 || cfg.Effect.CellSize != 20 {
		t.Errorf("Unexpected effect defaults %+v", cfg.Effect)
	}
	if cfg.Output.Filename != "ghostsnap-image.png" {
		t.Errorf("Unexpected default filename %q", cfg.Output.Filename)
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Effect = effects.Config{Kind: effects.Pixelate, BlurRadius: 10, CellSize: 12}
	cfg.Detector.Model = "llava"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Effect != cfg.Effect || loaded.Detector.Model != "llava" {
		t.Errorf("Round trip lost data: %+v", loaded)
	}
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := strings.Join([]string{
		"effect:",
		"  kind: pixelate",
		"  cell_size: 8",
		"detector:",
		"  backend: tesseract",
	}, "\n")
	if err := os.WriteFile(path, []byte(yamlDoc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Effect.Kind != effects.Pixelate || cfg.Effect.CellSize != 8 {
		t.Errorf("YAML values not applied: %+v", cfg.Effect)
	}
	if cfg.Effect.BlurRadius != 20 {
		t.Errorf("Missing field should keep default, got %d", cfg.Effect.BlurRadius)
	}
	if cfg.Detector.Backend != BackendTesseract || cfg.Detector.SendQuality != 85 {
		t.Errorf("Unexpected detector config %+v", cfg.Detector)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Loaded config should validate: %v", err)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"quality", func(c *Config) { c.Analyzer.DefaultQuality = 0 }},
		{"formats", func(c *Config) { c.Analyzer.SupportedFormats = nil }},
		{"effect", func(c *Config) { c.Effect.BlurRadius = 100 }},
		{"backend", func(c *Config) { c.Detector.Backend = "gemini" }},
		{"url", func(c *Config) { c.Detector.URL = "localhost" }},
		{"send quality", func(c *Config) { c.Detector.SendQuality = 101 }},
		{"timeout", func(c *Config) { c.Detector.Timeout = 0 }},
		{"output quality", func(c *Config) { c.Output.Quality = -1 }},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}

	cfg := Default()
	cfg.Detector.Backend = BackendTesseract
	cfg.Detector.URL = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Tesseract backend should not need a URL: %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	if !strings.HasSuffix(GetConfigPath(), filepath.Join("ghostsnap", "config.json")) && GetConfigPath() != "./config.json" {
		t.Errorf("Unexpected config path %q", GetConfigPath())
	}
}
