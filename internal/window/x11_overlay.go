package window

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

const (
	overlayBackground = 0x101010
	overlayBand       = 0x3daee9
	keysymEscape      = 0xff1b
)

// X11Overlays opens full-desktop selection overlays, each on its own X
// connection so that closing one tears down everything it created.
type X11Overlays struct{}

// OpenOverlay maps an override-redirect window over bounds and grabs the
// pointer and keyboard. Dragging selects an area, Escape or the right
// button cancels.
func (X11Overlays) OpenOverlay(bounds display.Rect, sink SelectionSink) (Overlay, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	win, err := newXWindow(conn,
		image.Rect(bounds.X, bounds.Y, bounds.Right(), bounds.Bottom()),
		xproto.CwBackPixel|xproto.CwOverrideRedirect|xproto.CwEventMask|xproto.CwCursor,
		[]uint32{
			overlayBackground,
			1,
			xproto.EventMaskExposure | xproto.EventMaskKeyPress |
				xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease |
				xproto.EventMaskPointerMotion,
			0,
		},
	)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = win.setClass("screenrecorder-overlay", "ScreenRecorder")

	o := &X11Overlay{
		win:    win,
		bounds: bounds,
		sink:   sink,
		escape: escapeKeycode(conn),
		done:   make(chan struct{}),
	}
	win.setForeground(overlayBand)

	if err := xproto.MapWindowChecked(conn, win.id).Check(); err != nil {
		win.destroy()
		conn.Close()
		return nil, fmt.Errorf("failed to map overlay: %w", err)
	}
	o.grab()

	go o.eventLoop()

	logger.WithComponent("overlay").Debug().
		Uint32("window_id", uint32(win.id)).
		Str("bounds", bounds.String()).
		Msg("Overlay mapped")
	return o, nil
}

// X11Overlay is one open selection overlay
type X11Overlay struct {
	win    *xwindow
	bounds display.Rect
	sink   SelectionSink
	escape xproto.Keycode

	dragging       bool
	startX, startY int

	once sync.Once
	done chan struct{}
}

func (o *X11Overlay) grab() {
	log := logger.WithComponent("overlay")

	ptr, err := xproto.GrabPointer(o.win.conn, false, o.win.id,
		xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease|xproto.EventMaskPointerMotion,
		xproto.GrabModeAsync, xproto.GrabModeAsync, o.win.id, xproto.CursorNone, xproto.TimeCurrentTime).Reply()
	if err != nil || ptr.Status != xproto.GrabStatusSuccess {
		log.Warn().Err(err).Msg("Failed to grab pointer")
	}

	kbd, err := xproto.GrabKeyboard(o.win.conn, false, o.win.id, xproto.TimeCurrentTime,
		xproto.GrabModeAsync, xproto.GrabModeAsync).Reply()
	if err != nil || kbd.Status != xproto.GrabStatusSuccess {
		log.Warn().Err(err).Msg("Failed to grab keyboard")
	}
}

func (o *X11Overlay) eventLoop() {
	defer close(o.done)

	for {
		ev, err := o.win.conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			continue
		}

		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			if e.Detail == o.escape {
				o.sink.CancelSelection()
			}
		case xproto.ButtonPressEvent:
			switch e.Detail {
			case xproto.ButtonIndex1:
				o.dragging = true
				o.startX, o.startY = int(e.EventX), int(e.EventY)
			case xproto.ButtonIndex3:
				o.sink.CancelSelection()
			}
		case xproto.MotionNotifyEvent:
			if o.dragging {
				o.drawBand(o.band(int(e.EventX), int(e.EventY)))
			}
		case xproto.ButtonReleaseEvent:
			if !o.dragging || e.Detail != xproto.ButtonIndex1 {
				continue
			}
			o.dragging = false
			local := o.band(int(e.EventX), int(e.EventY))
			if local.Empty() {
				xproto.ClearArea(o.win.conn, false, o.win.id, 0, 0, 0, 0)
				continue
			}
			sel := display.Rect{
				X:      o.bounds.X + local.X,
				Y:      o.bounds.Y + local.Y,
				Width:  local.Width,
				Height: local.Height,
			}
			if _, err := o.sink.SubmitSelection(sel); err != nil {
				logger.WithComponent("overlay").Debug().Err(err).Msg("Selection rejected")
			}
		}
	}
}

// band returns the normalized rectangle between the drag start and (x, y)
// in window coordinates.
func (o *X11Overlay) band(x, y int) display.Rect {
	return display.Rect{
		X:      min(o.startX, x),
		Y:      min(o.startY, y),
		Width:  abs(x - o.startX),
		Height: abs(y - o.startY),
	}
}

func (o *X11Overlay) drawBand(r display.Rect) {
	conn := o.win.conn
	xproto.ClearArea(conn, false, o.win.id, 0, 0, 0, 0)
	if r.Empty() {
		return
	}
	xproto.PolyRectangle(conn, xproto.Drawable(o.win.id), o.win.gc, []xproto.Rectangle{{
		X: int16(r.X), Y: int16(r.Y), Width: uint16(r.Width - 1), Height: uint16(r.Height - 1),
	}})

	label := drawLabel(sizeLabel(r.Width, r.Height))
	lx := r.X
	ly := r.Y - label.Bounds().Dy() - 2
	if ly < 0 {
		ly = r.Bottom() + 2
	}
	if err := o.win.putImage(label, lx, ly); err != nil {
		logger.WithComponent("overlay").Debug().Err(err).Msg("Failed to draw size label")
	}
}

// Close releases the grabs and destroys the overlay window
func (o *X11Overlay) Close() error {
	o.once.Do(func() {
		conn := o.win.conn
		xproto.UngrabPointer(conn, xproto.TimeCurrentTime)
		xproto.UngrabKeyboard(conn, xproto.TimeCurrentTime)
		o.win.destroy()
		conn.Sync()
		conn.Close()
	})
	return nil
}

// escapeKeycode finds the keycode producing the Escape keysym
func escapeKeycode(conn *xgb.Conn) xproto.Keycode {
	setup := xproto.Setup(conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil || reply.KeysymsPerKeycode == 0 {
		return 9 // evdev default
	}

	per := int(reply.KeysymsPerKeycode)
	for i := 0; i < int(count); i++ {
		if i*per < len(reply.Keysyms) && reply.Keysyms[i*per] == keysymEscape {
			return setup.MinKeycode + xproto.Keycode(i)
		}
	}
	return 9
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
