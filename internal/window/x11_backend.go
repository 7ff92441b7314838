package window

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// X11Backend lists application windows of an X11 session
type X11Backend struct {
	conn  *xgb.Conn
	root  xproto.Window
	mu    sync.Mutex
	atoms map[string]xproto.Atom
	// own windows are never offered as capture sources
	exclude map[uint32]bool
}

// NewX11Backend connects to the X server in $DISPLAY
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	return &X11Backend{
		conn:    conn,
		root:    xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms:   make(map[string]xproto.Atom),
		exclude: make(map[uint32]bool),
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Exclude hides a window, such as our own control window, from ListWindows
func (b *X11Backend) Exclude(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exclude[id] = true
}

// ListWindows returns all visible windows using EWMH _NET_CLIENT_LIST with
// a QueryTree fallback.
func (b *X11Backend) ListWindows() ([]Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := logger.WithComponent("x11-backend")

	ids, err := b.clientList()
	if err != nil || len(ids) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("ListWindows: EWMH failed, falling back to QueryTree")
		}
		tree, err := xproto.QueryTree(b.conn, b.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", err)
		}
		ids = tree.Children
	}

	windows := make([]Info, 0, len(ids))
	for _, id := range ids {
		if b.exclude[uint32(id)] {
			continue
		}
		info, err := b.windowInfo(id)
		if err != nil {
			log.Debug().Uint32("winID", uint32(id)).Err(err).Msg("Skipping window")
			continue
		}
		// Windows without title or class are usually not user windows
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}

	log.Debug().Int("count", len(windows)).Msg("Listed windows")
	return windows, nil
}

// clientList reads the window manager's _NET_CLIENT_LIST
func (b *X11Backend) clientList() ([]xproto.Window, error) {
	atom, err := b.atom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(b.conn, false, b.root, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for _, v := range cardinals(reply.Value) {
		ids = append(ids, xproto.Window(v))
	}
	return ids, nil
}

func (b *X11Backend) windowInfo(win xproto.Window) (Info, error) {
	info := Info{ID: uint32(win)}

	attrs, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	if err != nil {
		return info, fmt.Errorf("failed to get attributes: %w", err)
	}
	if attrs.MapState != xproto.MapStateViewable {
		return info, fmt.Errorf("window not viewable")
	}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return info, fmt.Errorf("failed to get geometry: %w", err)
	}
	// Geometry is relative to the parent; reparenting window managers put
	// clients inside frames, so translate to root coordinates.
	x, y := int(geom.X), int(geom.Y)
	if tr, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply(); err == nil {
		x, y = int(tr.DstX), int(tr.DstY)
	}
	info.Geometry = display.Rect{X: x, Y: y, Width: int(geom.Width), Height: int(geom.Height)}

	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		if title := b.stringProperty(win, name); title != "" {
			info.Title = title
			break
		}
	}
	info.Class = parseWMClass(b.stringProperty(win, "WM_CLASS"))

	if atom, err := b.atom("_NET_WM_PID"); err == nil {
		reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.AtomCardinal, 0, 1).Reply()
		if err == nil {
			if v := cardinals(reply.Value); len(v) > 0 {
				info.PID = int(v[0])
			}
		}
	}
	return info, nil
}

func (b *X11Backend) atom(name string) (xproto.Atom, error) {
	if a, ok := b.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern %s: %w", name, err)
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (b *X11Backend) stringProperty(win xproto.Window, name string) string {
	atom, err := b.atom(name)
	if err != nil {
		return ""
	}
	reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil || reply.ValueLen == 0 {
		return ""
	}
	return string(reply.Value)
}

// parseWMClass returns the class part of WM_CLASS ("instance\0class\0"),
// falling back to the instance.
func parseWMClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}

// cardinals decodes a format-32 property value
func cardinals(value []byte) []uint32 {
	out := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(value[i:]))
	}
	return out
}
