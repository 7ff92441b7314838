package window

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// ErrClosed is returned once the control window has been closed.
var ErrClosed = errors.New("control window closed")

// ControlWindow is the primary, always-present window of the recorder.
type ControlWindow interface {
	Show() error
	Hide() error
	Minimize() error
	Close() error
	SetHeight(height int) error
}

// SelectionSink receives the outcome of an overlay. Overlays call it from
// their own goroutine, never from inside OpenOverlay.
type SelectionSink interface {
	SubmitSelection(r display.Rect) (bool, error)
	CancelSelection()
}

// Overlay is an open area-selection surface. Close is called exactly once.
type Overlay interface {
	Close() error
}

// OverlayFactory creates overlays spanning bounds
type OverlayFactory interface {
	OpenOverlay(bounds display.Rect, sink SelectionSink) (Overlay, error)
}

// EventKind identifies a selector outcome
type EventKind string

const (
	EventSelected  EventKind = "selected"
	EventCancelled EventKind = "cancelled"
)

// Event is published to subscribers when an overlay closes
type Event struct {
	Kind      EventKind     `json:"kind"`
	Selection *display.Rect `json:"selection,omitempty"`
	// Target is the display id the selector was opened for
	Target string `json:"target,omitempty"`
}

// Coordinator keeps exactly one of the control window and the overlay
// interactive. The overlay is owned here: created on open, destroyed on
// close, re-created on the next open.
type Coordinator struct {
	displays display.Provider
	control  ControlWindow
	overlays OverlayFactory

	mu          sync.Mutex
	overlay     Overlay
	bounds      display.Rect
	target      string
	height      int
	closed      bool
	subscribers []chan Event
}

// NewCoordinator creates a coordinator. The control window is shown
// immediately.
func NewCoordinator(displays display.Provider, control ControlWindow, overlays OverlayFactory) *Coordinator {
	c := &Coordinator{
		displays: displays,
		control:  control,
		overlays: overlays,
		height:   MinHeight,
	}
	if err := control.Show(); err != nil {
		logger.WithComponent("coordinator").Warn().Err(err).Msg("Failed to show control window")
	}
	return c
}

// OpenAreaSelector hides the control window and opens an overlay covering
// every display. The display list is read fresh so monitors plugged in
// since the last call are covered. If an overlay is already open its bounds
// are returned and nothing else happens.
func (c *Coordinator) OpenAreaSelector(ctx context.Context, targetDisplayID string) (display.Rect, error) {
	log := logger.WithComponent("coordinator")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return display.Rect{}, ErrClosed
	}
	if c.overlay != nil {
		log.Debug().Str("bounds", c.bounds.String()).Msg("Area selector already open")
		return c.bounds, nil
	}
	if err := ctx.Err(); err != nil {
		return display.Rect{}, err
	}

	displays, err := c.displays.Displays()
	if err != nil {
		return display.Rect{}, fmt.Errorf("failed to read displays: %w", err)
	}
	bounds, err := display.VirtualDesktop(displays)
	if err != nil {
		return display.Rect{}, err
	}

	if err := c.control.Hide(); err != nil {
		log.Warn().Err(err).Msg("Failed to hide control window")
	}

	overlay, err := c.overlays.OpenOverlay(bounds, c)
	if err != nil {
		if showErr := c.control.Show(); showErr != nil {
			log.Warn().Err(showErr).Msg("Failed to show control window")
		}
		return display.Rect{}, fmt.Errorf("failed to open overlay: %w", err)
	}

	c.overlay = overlay
	c.bounds = bounds
	c.target = targetDisplayID

	log.Info().
		Str("bounds", bounds.String()).
		Int("displays", len(displays)).
		Str("target_display", targetDisplayID).
		Msg("Area selector opened")
	return bounds, nil
}

// takeOverlay detaches the overlay so that only one caller closes it.
func (c *Coordinator) takeOverlay() (Overlay, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ov, target := c.overlay, c.target
	c.overlay = nil
	c.target = ""
	return ov, target
}

func (c *Coordinator) closeOverlay(ov Overlay) {
	if err := ov.Close(); err != nil {
		logger.WithComponent("coordinator").Warn().Err(err).Msg("Failed to close overlay")
	}
}

// SubmitSelection delivers r if an overlay is open, closing it. It reports
// whether the selection was delivered. The control window is shown either
// way. An invalid rectangle is rejected and leaves the overlay open.
func (c *Coordinator) SubmitSelection(r display.Rect) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	ov, target := c.takeOverlay()
	if ov != nil {
		c.closeOverlay(ov)
	}
	c.showControl()

	if ov == nil {
		logger.WithComponent("coordinator").Debug().Str("selection", r.String()).Msg("No overlay open, dropping selection")
		return false, nil
	}

	logger.WithComponent("coordinator").Info().Str("selection", r.String()).Msg("Area selected")
	sel := r
	c.publish(Event{Kind: EventSelected, Selection: &sel, Target: target})
	return true, nil
}

// CancelSelection closes the overlay if one is open and shows the control
// window.
func (c *Coordinator) CancelSelection() {
	ov, target := c.takeOverlay()
	if ov != nil {
		c.closeOverlay(ov)
		logger.WithComponent("coordinator").Info().Msg("Area selection cancelled")
		c.publish(Event{Kind: EventCancelled, Target: target})
	}
	c.showControl()
}

func (c *Coordinator) showControl() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.control.Show(); err != nil {
		logger.WithComponent("coordinator").Warn().Err(err).Msg("Failed to show control window")
	}
}

// SelectorOpen reports whether an overlay is open and its bounds
func (c *Coordinator) SelectorOpen() (display.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bounds, c.overlay != nil
}

// PrimaryDisplaySize returns the size of the primary display
func (c *Coordinator) PrimaryDisplaySize() (int, int, error) {
	displays, err := c.displays.Displays()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read displays: %w", err)
	}
	d, err := display.Primary(displays)
	if err != nil {
		return 0, 0, err
	}
	return d.Bounds.Width, d.Bounds.Height, nil
}

// Show shows the control window
func (c *Coordinator) Show() error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.control.Show()
}

// Hide hides the control window
func (c *Coordinator) Hide() error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.control.Hide()
}

// Minimize iconifies the control window
func (c *Coordinator) Minimize() error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.control.Minimize()
}

// Resize sets the control window height, clamped to MinHeight..MaxHeight,
// and returns the applied height.
func (c *Coordinator) Resize(height int) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	h := ClampHeight(height)
	if err := c.control.SetHeight(h); err != nil {
		return 0, fmt.Errorf("failed to resize control window: %w", err)
	}

	c.mu.Lock()
	c.height = h
	c.mu.Unlock()
	return h, nil
}

// Height returns the last applied control window height
func (c *Coordinator) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Close destroys the overlay, if any, and the control window. Subscriber
// channels are closed.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ov := c.overlay
	c.overlay = nil
	subs := c.subscribers
	c.subscribers = nil
	c.mu.Unlock()

	if ov != nil {
		c.closeOverlay(ov)
	}
	for _, ch := range subs {
		close(ch)
	}
	return c.control.Close()
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribe returns a channel receiving selector events
func (c *Coordinator) Subscribe() chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, 10)
	if c.closed {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber
func (c *Coordinator) Unsubscribe(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (c *Coordinator) publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			// Skip if channel is full
		}
	}
}
