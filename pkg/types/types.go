package types

// Box is a detection in proportional coordinates: every field is a
// fraction of the image width or height in the [0,1] range
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Label optionally names what was found (email, face, ...)
	Label string `json:"label,omitempty"`
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Detections is the response shape some models wrap their boxes in
type Detections struct {
	Regions []Box `json:"regions"`
}
