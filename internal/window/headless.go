package window

import (
	"sync"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
)

// ControlState is a snapshot of a headless control window
type ControlState struct {
	Visible   bool `json:"visible"`
	Minimized bool `json:"minimized"`
	Closed    bool `json:"closed"`
	Height    int  `json:"height"`
}

// HeadlessControl records control window commands without drawing
// anything. The web client renders the real controls.
type HeadlessControl struct {
	mu    sync.Mutex
	state ControlState
}

// NewHeadlessControl returns a hidden control window of minimum height
func NewHeadlessControl() *HeadlessControl {
	return &HeadlessControl{state: ControlState{Height: MinHeight}}
}

func (h *HeadlessControl) Show() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Visible = true
	h.state.Minimized = false
	return nil
}

func (h *HeadlessControl) Hide() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Visible = false
	return nil
}

func (h *HeadlessControl) Minimize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Minimized = true
	return nil
}

func (h *HeadlessControl) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Closed = true
	h.state.Visible = false
	return nil
}

func (h *HeadlessControl) SetHeight(height int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Height = height
	return nil
}

// State returns the current window state
func (h *HeadlessControl) State() ControlState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// HeadlessOverlays opens overlays that only exist as bookkeeping; the
// selection arrives through the API instead of pointer input.
type HeadlessOverlays struct {
	mu     sync.Mutex
	opened int
	closed int
	last   display.Rect
}

// OpenOverlay records bounds and returns a handle
func (h *HeadlessOverlays) OpenOverlay(bounds display.Rect, _ SelectionSink) (Overlay, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened++
	h.last = bounds
	return &headlessOverlay{parent: h}, nil
}

// Counts returns how many overlays were opened and closed
func (h *HeadlessOverlays) Counts() (opened, closed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened, h.closed
}

// LastBounds returns the bounds of the most recent overlay
func (h *HeadlessOverlays) LastBounds() display.Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

type headlessOverlay struct {
	parent *HeadlessOverlays
}

func (o *headlessOverlay) Close() error {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	o.parent.closed++
	return nil
}
