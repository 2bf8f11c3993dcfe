// Package effects describes the privacy transform applied inside regions.
package effects

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects the visual transform
type Kind string

const (
	Blur     Kind = "blur"
	Pixelate Kind = "pixelate"
)

// Parameter bounds, in pixels
const (
	MinBlurRadius     = 2
	MaxBlurRadius     = 50
	DefaultBlurRadius = 20

	MinCellSize     = 4
	MaxCellSize     = 50
	DefaultCellSize = 20
)

// ErrUnknownKind is returned for effect names other than blur and pixelate
var ErrUnknownKind = errors.New("effects: unknown effect kind")

// Config is the effect configuration. It is not part of the undo history;
// changing it only forces a recomposition.
type Config struct {
	Kind       Kind `json:"kind" yaml:"kind"`
	BlurRadius int  `json:"blur_radius" yaml:"blur_radius"`
	CellSize   int  `json:"cell_size" yaml:"cell_size"`
}

// Default returns a blur configuration with default parameters
func Default() Config {
	return Config{
		Kind:       Blur,
		BlurRadius: DefaultBlurRadius,
		CellSize:   DefaultCellSize,
	}
}

// ParseKind converts a user supplied name into a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Blur:
		return Blur, nil
	case Pixelate, "pixelation", "mosaic":
		return Pixelate, nil
	default:
		return "", fmt.Errorf("%w: %q (use blur or pixelate)", ErrUnknownKind, s)
	}
}

// Clamp returns a copy with both numeric parameters forced into bounds.
// An empty kind becomes Blur.
func (c Config) Clamp() Config {
	if c.Kind == "" {
		c.Kind = Blur
	}
	c.BlurRadius = clampInt(c.BlurRadius, MinBlurRadius, MaxBlurRadius)
	c.CellSize = clampInt(c.CellSize, MinCellSize, MaxCellSize)
	return c
}

// Validate checks the kind and both parameter bounds
func (c Config) Validate() error {
	if c.Kind != Blur && c.Kind != Pixelate {
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if c.BlurRadius < MinBlurRadius || c.BlurRadius > MaxBlurRadius {
		return fmt.Errorf("effects: blur_radius must be between %d and %d", MinBlurRadius, MaxBlurRadius)
	}
	if c.CellSize < MinCellSize || c.CellSize > MaxCellSize {
		return fmt.Errorf("effects: cell_size must be between %d and %d", MinCellSize, MaxCellSize)
	}
	return nil
}

func (c Config) String() string {
	if c.Kind == Pixelate {
		return fmt.Sprintf("pixelate(%dpx)", c.CellSize)
	}
	return fmt.Sprintf("%s(%dpx)", c.Kind, c.BlurRadius)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
