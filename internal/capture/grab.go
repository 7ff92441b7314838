package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/kbinani/screenshot"
)

// RegionGrabber takes a still image of a desktop region
type RegionGrabber interface {
	GrabRegion(r display.Rect) (image.Image, error)
}

// WindowGrabber takes a still image of one window
type WindowGrabber interface {
	GrabWindow(id uint32) (image.Image, error)
}

// ScreenGrabber grabs regions through kbinani/screenshot
type ScreenGrabber struct{}

// GrabRegion captures r
func (ScreenGrabber) GrabRegion(r display.Rect) (image.Image, error) {
	img, err := screenshot.CaptureRect(image.Rect(r.X, r.Y, r.Right(), r.Bottom()))
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", r, err)
	}
	return img, nil
}

// X11Grabber grabs window contents, using a Composite pixmap when the
// extension is present so obscured windows still render.
type X11Grabber struct {
	conn             *xgb.Conn
	screen           *xproto.ScreenInfo
	compositeEnabled bool
	mu               sync.Mutex
}

// NewX11Grabber connects to the X server
func NewX11Grabber() (*X11Grabber, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	g := &X11Grabber{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
	}

	if err := composite.Init(conn); err != nil {
		logger.WithComponent("x11-grabber").Warn().
			Err(err).
			Msg("Composite extension not available - thumbnails of obscured windows may be wrong")
	} else {
		g.compositeEnabled = true
	}
	return g, nil
}

// Close closes the X11 connection
func (g *X11Grabber) Close() error {
	g.conn.Close()
	return nil
}

// GrabRegion reads r from the root window
func (g *X11Grabber) GrabRegion(r display.Rect) (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reply, err := xproto.GetImage(
		g.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(g.screen.Root),
		int16(r.X), int16(r.Y),
		uint16(r.Width), uint16(r.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return bgraToRGBA(reply.Data, r.Width, r.Height), nil
}

// GrabWindow captures the window with the given X11 id
func (g *X11Grabber) GrabWindow(id uint32) (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	win := xproto.Window(id)
	geom, err := xproto.GetGeometry(g.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return nil, fmt.Errorf("window %d has no area", id)
	}

	drawable := xproto.Drawable(win)
	if g.compositeEnabled {
		if pixmap, ok := g.namePixmap(win); ok {
			defer xproto.FreePixmap(g.conn, pixmap)
			drawable = xproto.Drawable(pixmap)
		}
	}

	reply, err := xproto.GetImage(
		g.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return bgraToRGBA(reply.Data, int(geom.Width), int(geom.Height)), nil
}

// namePixmap returns the off-screen pixmap Composite keeps for win.
func (g *X11Grabber) namePixmap(win xproto.Window) (xproto.Pixmap, bool) {
	pixmap, err := xproto.NewPixmapId(g.conn)
	if err != nil {
		return 0, false
	}
	if err := composite.NameWindowPixmapChecked(g.conn, win, pixmap).Check(); err != nil {
		logger.WithComponent("x11-grabber").Debug().
			Err(err).
			Uint32("window_id", uint32(win)).
			Msg("NameWindowPixmap failed, reading window directly")
		return 0, false
	}
	return pixmap, true
}

// bgraToRGBA converts 32bpp ZPixmap data (BGRX byte order) to RGBA.
func bgraToRGBA(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	n := min(len(data), len(img.Pix))
	for i := 0; i+3 < n; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 0xff
	}
	return img
}
