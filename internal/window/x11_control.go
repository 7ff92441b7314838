package window

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

const (
	controlWidth      = 360
	controlBackground = 0x202020
	iconicState       = 3
)

// X11ControlWindow is a small top-level window showing the recorder status.
type X11ControlWindow struct {
	win *xwindow

	mu      sync.Mutex
	status  string
	height  int
	closed  bool
	onClose func()
	done    chan struct{}
}

// NewX11ControlWindow creates the control window, unmapped. onClose runs
// when the window manager asks the window to close; it may be nil.
func NewX11ControlWindow(onClose func()) (*X11ControlWindow, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	win, err := newXWindow(conn,
		image.Rect(0, 0, controlWidth, MinHeight),
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{
			controlBackground,
			xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
		},
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	log := logger.WithComponent("control-window")
	if err := win.setTitle("Screen Recorder"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := win.setClass("screenrecorder", "ScreenRecorder"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	c := &X11ControlWindow{
		win:     win,
		height:  MinHeight,
		onClose: onClose,
		done:    make(chan struct{}),
	}
	c.watchDelete()

	go c.eventLoop()

	log.Info().Uint32("window_id", uint32(win.id)).Msg("Control window created")
	return c, nil
}

// ID returns the X11 window id
func (c *X11ControlWindow) ID() uint32 {
	return uint32(c.win.id)
}

// watchDelete opts into WM_DELETE_WINDOW so closing from the title bar is
// reported instead of killing the connection.
func (c *X11ControlWindow) watchDelete() {
	protocols, err := c.win.atom("WM_PROTOCOLS")
	if err != nil {
		return
	}
	deleteWindow, err := c.win.atom("WM_DELETE_WINDOW")
	if err != nil {
		return
	}
	data := make([]byte, 4)
	xgb.Put32(data, uint32(deleteWindow))
	xproto.ChangeProperty(c.win.conn, xproto.PropModeReplace, c.win.id, protocols, xproto.AtomAtom, 32, 1, data)
}

func (c *X11ControlWindow) eventLoop() {
	defer close(c.done)

	deleteWindow, _ := c.win.atom("WM_DELETE_WINDOW")
	for {
		ev, err := c.win.conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			continue
		}

		switch e := ev.(type) {
		case xproto.ExposeEvent:
			if e.Count == 0 {
				c.redraw()
			}
		case xproto.ClientMessageEvent:
			if e.Format == 32 && xproto.Atom(e.Data.Data32[0]) == deleteWindow && c.onClose != nil {
				// Close waits for this loop to exit
				go c.onClose()
			}
		}
	}
}

// SetStatus replaces the status line
func (c *X11ControlWindow) SetStatus(text string) {
	c.mu.Lock()
	c.status = text
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.redraw()
	}
}

func (c *X11ControlWindow) redraw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	xproto.ClearArea(c.win.conn, false, c.win.id, 0, 0, 0, 0)
	if c.status == "" {
		return
	}
	label := drawLabel(c.status)
	y := (c.height - label.Bounds().Dy()) / 2
	if err := c.win.putImage(label, labelPadding*2, max(0, y)); err != nil {
		logger.WithComponent("control-window").Debug().Err(err).Msg("Failed to draw status")
	}
}

func (c *X11ControlWindow) Show() error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := xproto.MapWindowChecked(c.win.conn, c.win.id).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	return nil
}

func (c *X11ControlWindow) Hide() error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := xproto.UnmapWindowChecked(c.win.conn, c.win.id).Check(); err != nil {
		return fmt.Errorf("failed to unmap window: %w", err)
	}
	return nil
}

// Minimize asks the window manager to iconify the window (ICCCM 4.1.4)
func (c *X11ControlWindow) Minimize() error {
	if c.isClosed() {
		return ErrClosed
	}
	changeState, err := c.win.atom("WM_CHANGE_STATE")
	if err != nil {
		return fmt.Errorf("failed to intern WM_CHANGE_STATE: %w", err)
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: c.win.id,
		Type:   changeState,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{iconicState, 0, 0, 0, 0}),
	}
	return xproto.SendEventChecked(
		c.win.conn,
		false,
		c.win.screen.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

func (c *X11ControlWindow) SetHeight(height int) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := xproto.ConfigureWindowChecked(c.win.conn, c.win.id,
		xproto.ConfigWindowHeight, []uint32{uint32(height)}).Check(); err != nil {
		return fmt.Errorf("failed to configure window: %w", err)
	}
	c.mu.Lock()
	c.height = height
	c.mu.Unlock()
	return nil
}

// Close destroys the window and its connection
func (c *X11ControlWindow) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.win.destroy()
	c.win.conn.Close()
	<-c.done
	return nil
}

func (c *X11ControlWindow) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
