package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/ghostsnap/pkg/effects"
)

// Config holds the application configuration
type Config struct {
	Analyzer AnalyzerConfig `json:"analyzer" yaml:"analyzer"`
	Effect   effects.Config `json:"effect" yaml:"effect"`
	Detector DetectorConfig `json:"detector" yaml:"detector"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// AnalyzerConfig holds configuration for image input
type AnalyzerConfig struct {
	DefaultQuality   int      `json:"default_quality" yaml:"default_quality"`
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
}

// DetectorConfig selects and configures the auto-detect backend
type DetectorConfig struct {
	Backend     string `json:"backend" yaml:"backend"`
	URL         string `json:"url" yaml:"url"`
	Model       string `json:"model" yaml:"model"`
	SendFormat  string `json:"send_format" yaml:"send_format"`
	SendSize    int    `json:"send_size" yaml:"send_size"`
	SendQuality int    `json:"send_quality" yaml:"send_quality"`
	// Timeout in seconds for a single detection request
	Timeout int `json:"timeout" yaml:"timeout"`
	// Languages is the tesseract language list, e.g. "eng+deu"
	Languages string `json:"languages" yaml:"languages"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Filename      string `json:"filename" yaml:"filename"`
	Quality       int    `json:"quality" yaml:"quality"`
	Lossless      bool   `json:"lossless" yaml:"lossless"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Known detector backends
const (
	BackendOllama    = "ollama"
	BackendLlamaCpp  = "llamacpp"
	BackendTesseract = "tesseract"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			DefaultQuality:   90,
			SupportedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
			MinImageSize:     1,
		},
		Effect: effects.Default(),
		Detector: DetectorConfig{
			Backend:     BackendOllama,
			URL:         "http://localhost:11434",
			Model:       "qwen2.5vl:7b",
			SendFormat:  "jpg",
			SendSize:    1536,
			SendQuality: 85,
			Timeout:     300,
			Languages:   "eng",
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			Filename:      "ghostsnap-image.png",
			Quality:       90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// isYAML reports whether the file should be read as YAML
func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file. Fields missing
// from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Analyzer.DefaultQuality < 1 || c.Analyzer.DefaultQuality > 100 {
		return fmt.Errorf("analyzer.default_quality must be between 1 and 100")
	}

	if c.Analyzer.MinImageSize < 1 {
		return fmt.Errorf("analyzer.min_image_size must be positive")
	}

	if len(c.Analyzer.SupportedFormats) == 0 {
		return fmt.Errorf("analyzer.supported_formats cannot be empty")
	}

	if err := c.Effect.Validate(); err != nil {
		return fmt.Errorf("effect: %w", err)
	}

	switch c.Detector.Backend {
	case BackendOllama, BackendLlamaCpp:
		u, err := url.Parse(c.Detector.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("detector.url must be an absolute URL, got %q", c.Detector.URL)
		}
	case BackendTesseract:
	default:
		return fmt.Errorf("detector.backend must be one of %s, %s, %s", BackendOllama, BackendLlamaCpp, BackendTesseract)
	}

	if c.Detector.SendSize < 0 {
		return fmt.Errorf("detector.send_size cannot be negative")
	}

	if c.Detector.SendQuality < 1 || c.Detector.SendQuality > 100 {
		return fmt.Errorf("detector.send_quality must be between 1 and 100")
	}

	if c.Detector.Timeout < 1 {
		return fmt.Errorf("detector.timeout must be positive")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// DetectorTimeout returns the detection timeout as a duration
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detector.Timeout) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "ghostsnap", "config.json")
}
