// Package window owns the on-screen pieces of the recorder: the primary
// control window and the area-selection overlay. It also lists application
// windows so they can be offered as capture sources.
package window

import (
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
)

// Info describes a top-level application window
type Info struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Class string `json:"class"`
	PID   int    `json:"pid"`
	// Geometry is in root (virtual desktop) coordinates
	Geometry display.Rect `json:"geometry"`
}

// Control window height limits
const (
	MinHeight = 100
	MaxHeight = 400
)

// ClampHeight limits h to the control window's allowed range
func ClampHeight(h int) int {
	return max(MinHeight, min(MaxHeight, h))
}
