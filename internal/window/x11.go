package window

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// xwindow holds one window and the connection that owns it
type xwindow struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	id     xproto.Window
	gc     xproto.Gcontext
}

func newXWindow(conn *xgb.Conn, bounds image.Rectangle, mask uint32, values []uint32) (*xwindow, error) {
	screen := xproto.Setup(conn).DefaultScreen(conn)

	id, err := xproto.NewWindowId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}

	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		id,
		screen.Root,
		int16(bounds.Min.X), int16(bounds.Min.Y),
		uint16(bounds.Dx()), uint16(bounds.Dy()),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(conn, gc, xproto.Drawable(id), 0, nil).Check(); err != nil {
		return nil, fmt.Errorf("failed to create GC: %w", err)
	}

	return &xwindow{conn: conn, screen: screen, id: id, gc: gc}, nil
}

func (w *xwindow) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(w.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func (w *xwindow) setTitle(title string) error {
	titleAtom, err := w.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := w.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(w.conn, xproto.PropModeReplace, w.id,
		titleAtom, utf8Atom, 8, uint32(len(title)), []byte(title)).Check()
}

// setClass sets WM_CLASS, formatted as instance\0class\0
func (w *xwindow) setClass(instance, class string) error {
	classAtom, err := w.atom("WM_CLASS")
	if err != nil {
		return err
	}
	v := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(w.conn, xproto.PropModeReplace, w.id,
		classAtom, xproto.AtomString, 8, uint32(len(v)), []byte(v)).Check()
}

func (w *xwindow) setForeground(pixel uint32) {
	xproto.ChangeGC(w.conn, w.gc, xproto.GcForeground, []uint32{pixel})
}

// putImage draws img at (x, y). Only 24/32-bit TrueColor roots are
// supported, which is what every current X server offers.
func (w *xwindow) putImage(img *image.RGBA, x, y int) error {
	b := img.Bounds()
	return xproto.PutImageChecked(
		w.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(w.id),
		w.gc,
		uint16(b.Dx()), uint16(b.Dy()),
		int16(x), int16(y),
		0,
		w.screen.RootDepth,
		rgbaToBGRX(img),
	).Check()
}

func (w *xwindow) destroy() {
	xproto.FreeGC(w.conn, w.gc)
	xproto.DestroyWindow(w.conn, w.id)
}

func rgbaToBGRX(img *image.RGBA) []byte {
	b := img.Bounds()
	data := make([]byte, b.Dx()*b.Dy()*4)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			data[i] = row[x*4+2]
			data[i+1] = row[x*4+1]
			data[i+2] = row[x*4]
			i += 4
		}
	}
	return data
}

// Label colours
var (
	labelBackground = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	labelForeground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

const labelPadding = 4

// drawLabel renders text in a padded box using the built-in 7x13 font
func drawLabel(text string) *image.RGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 2*labelPadding
	height := face.Metrics().Height.Ceil() + 2*labelPadding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(labelBackground), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelForeground),
		Face: face,
		Dot:  fixed.P(labelPadding, labelPadding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	return img
}

// sizeLabel formats a selection size the way the overlay shows it
func sizeLabel(width, height int) string {
	return fmt.Sprintf("%d × %d", width, height)
}
