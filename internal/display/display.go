// Package display describes the monitor topology of the virtual desktop and
// the rectangles users select on it.
package display

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSelection is returned for rectangles without a positive area.
var ErrInvalidSelection = errors.New("selection must have positive width and height")

// ErrNoDisplays is returned when a provider finds no connected monitor.
var ErrNoDisplays = errors.New("no displays connected")

// Rect is a pixel rectangle in virtual-desktop coordinates. Origins may be
// negative for monitors placed left of or above the primary one.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// NewSelection validates a user selection.
func NewSelection(x, y, width, height int) (Rect, error) {
	r := Rect{X: x, Y: y, Width: width, Height: height}
	if err := r.Validate(); err != nil {
		return Rect{}, err
	}
	return r, nil
}

// Validate reports whether r can be used as a capture region.
func (r Rect) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidSelection, r.Width, r.Height)
	}
	return nil
}

// Right is the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom is the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Offset translates r so that its coordinates are relative to origin.
func (r Rect) Offset(origin Rect) Rect {
	return Rect{X: r.X - origin.X, Y: r.Y - origin.Y, Width: r.Width, Height: r.Height}
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d%+d%+d", r.Width, r.Height, r.X, r.Y)
}

// ParseRect reads the WxH+X+Y form written by String.
func ParseRect(s string) (Rect, error) {
	var r Rect
	s = strings.TrimSpace(s)
	if _, err := fmt.Sscanf(s, "%dx%d%d%d", &r.Width, &r.Height, &r.X, &r.Y); err != nil || r.String() != s {
		return Rect{}, fmt.Errorf("%w: %q is not WxH+X+Y", ErrInvalidSelection, s)
	}
	if err := r.Validate(); err != nil {
		return Rect{}, err
	}
	return r, nil
}

// Display is one connected monitor.
type Display struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Bounds  Rect   `json:"bounds"`
	Primary bool   `json:"primary"`
}

// Provider reports the live monitor layout. Implementations must query the
// display server on every call; callers rely on hot-plugged monitors being
// visible the next time an overlay opens.
type Provider interface {
	Displays() ([]Display, error)
	Name() string
}

// VirtualDesktop returns the tightest rectangle covering every display.
func VirtualDesktop(displays []Display) (Rect, error) {
	if len(displays) == 0 {
		return Rect{}, ErrNoDisplays
	}

	minX, minY := displays[0].Bounds.X, displays[0].Bounds.Y
	maxX, maxY := displays[0].Bounds.Right(), displays[0].Bounds.Bottom()
	for _, d := range displays[1:] {
		minX = min(minX, d.Bounds.X)
		minY = min(minY, d.Bounds.Y)
		maxX = max(maxX, d.Bounds.Right())
		maxY = max(maxY, d.Bounds.Bottom())
	}

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

// Primary returns the primary display, or the first one when none is flagged.
func Primary(displays []Display) (Display, error) {
	if len(displays) == 0 {
		return Display{}, ErrNoDisplays
	}
	for _, d := range displays {
		if d.Primary {
			return d, nil
		}
	}
	return displays[0], nil
}

// Find returns the display with the given id.
func Find(displays []Display, id string) (Display, bool) {
	for _, d := range displays {
		if d.ID == id {
			return d, true
		}
	}
	return Display{}, false
}
