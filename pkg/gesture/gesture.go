// Package gesture turns pointer events into candidate regions.
//
// A Machine has two states. Down moves Idle to Drawing when a drawing tool
// is selected; Up or Leave always returns to Idle and hands back the finished
// shape. Move never produces a result, so a caller that commits only what Up
// and Leave return gets exactly one history entry per gesture.
package gesture

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/ghostsnap/pkg/geometry"
	"github.com/menta2k/ghostsnap/pkg/region"
)

// Tool is the active drawing tool
type Tool string

const (
	Pointer   Tool = "pointer"
	Rectangle Tool = "rectangle"
	Ellipse   Tool = "ellipse"
	Freehand  Tool = "freehand"
)

// ErrUnknownTool is returned by ParseTool for unrecognised names
var ErrUnknownTool = errors.New("gesture: unknown tool")

// ParseTool converts a user supplied name into a Tool
func ParseTool(s string) (Tool, error) {
	switch Tool(strings.ToLower(strings.TrimSpace(s))) {
	case Pointer, "select":
		return Pointer, nil
	case Rectangle, "rect":
		return Rectangle, nil
	case Ellipse, "circle":
		return Ellipse, nil
	case Freehand, "path", "lasso":
		return Freehand, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
}

// Draws reports whether the tool creates regions
func (t Tool) Draws() bool {
	return t == Rectangle || t == Ellipse || t == Freehand
}

// State of the gesture machine
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// Machine tracks one in-progress gesture. It is not safe for concurrent use.
type Machine struct {
	tool    Tool
	state   State
	start   geometry.Point
	current geometry.Point
	points  []geometry.Point
}

// New creates an idle machine with the given tool
func New(tool Tool) *Machine {
	return &Machine{tool: tool}
}

// Tool returns the selected tool
func (m *Machine) Tool() Tool {
	return m.tool
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// SetTool switches tools. A shape being drawn is discarded.
func (m *Machine) SetTool(tool Tool) {
	m.tool = tool
	m.Cancel()
}

// Down starts a gesture at p. It returns false when the tool does not draw
// or a gesture is already running.
func (m *Machine) Down(p geometry.Point) bool {
	if !m.tool.Draws() || m.state == Drawing {
		return false
	}
	m.state = Drawing
	m.start = p
	m.current = p
	m.points = m.points[:0]
	if m.tool == Freehand {
		m.points = append(m.points, p)
	}
	return true
}

// Move extends the in-progress shape. It is ignored while idle.
func (m *Machine) Move(p geometry.Point) {
	if m.state != Drawing {
		return
	}
	m.current = p
	if m.tool == Freehand {
		if last := m.points[len(m.points)-1]; last == p {
			return
		}
		m.points = append(m.points, p)
	}
}

// Up ends the gesture. The shape is returned only if it passes region
// validation; tiny accidental drags come back as false.
func (m *Machine) Up() (region.Region, bool) {
	if m.state != Drawing {
		return region.Region{}, false
	}
	r := m.shape()
	m.Cancel()

	if err := r.Validate(); err != nil {
		return region.Region{}, false
	}
	return r, true
}

// Leave handles the pointer leaving the surface mid-gesture. It finalizes
// exactly like Up so no half-drawn shape is left behind.
func (m *Machine) Leave() (region.Region, bool) {
	return m.Up()
}

// Cancel drops any in-progress shape and returns to Idle
func (m *Machine) Cancel() {
	m.state = Idle
	m.points = nil
}

// Preview returns the shape being drawn, without validation
func (m *Machine) Preview() (region.Region, bool) {
	if m.state != Drawing {
		return region.Region{}, false
	}
	return m.shape(), true
}

func (m *Machine) shape() region.Region {
	switch m.tool {
	case Freehand:
		return region.NewPath(m.points)
	case Ellipse:
		return region.FromBox(region.Ellipse, m.box())
	default:
		return region.FromBox(region.Rectangle, m.box())
	}
}

// box normalises the drag so dragging up or left gives positive extents
func (m *Machine) box() geometry.Box {
	return geometry.Box{
		X:      math.Min(m.start.X, m.current.X),
		Y:      math.Min(m.start.Y, m.current.Y),
		Width:  math.Abs(m.current.X - m.start.X),
		Height: math.Abs(m.current.Y - m.start.Y),
	}
}
