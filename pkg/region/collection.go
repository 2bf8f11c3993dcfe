package region

import (
	"fmt"

	"github.com/menta2k/ghostsnap/pkg/geometry"
)

// Collection is an ordered list of regions. Order is render order; later
// regions are composited after earlier ones. Duplicates are legal.
//
// A Collection recorded in history is never modified in place: every
// operation below returns a new slice and leaves the receiver untouched.
type Collection []Region

// Append returns a copy of c with the valid candidates appended in order.
// Degenerate candidates are dropped silently.
func (c Collection) Append(candidates ...Region) Collection {
	out := make(Collection, len(c), len(c)+len(candidates))
	copy(out, c)
	for _, r := range candidates {
		if r.Validate() != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RemoveAt returns a copy of c without the region at index i
func (c Collection) RemoveAt(i int) (Collection, error) {
	if i < 0 || i >= len(c) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, len(c))
	}
	out := make(Collection, 0, len(c)-1)
	out = append(out, c[:i]...)
	out = append(out, c[i+1:]...)
	return out, nil
}

// Clear returns the empty collection
func (c Collection) Clear() Collection {
	return Collection{}
}

// TopmostAt returns the index of the last region containing p, or -1.
func (c Collection) TopmostAt(p geometry.Point) int {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Contains(p) {
			return i
		}
	}
	return -1
}

// Valid filters candidates down to the ones Append would keep
func Valid(candidates []Region) []Region {
	var out []Region
	for _, r := range candidates {
		if r.Validate() == nil {
			out = append(out, r)
		}
	}
	return out
}
