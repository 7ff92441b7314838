// Package pipewire captures through the xdg-desktop-portal ScreenCast
// interface: the portal hands out a PipeWire node that gst-launch-1.0
// encodes to WebM.
package pipewire

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/godbus/dbus/v5"
)

// ErrDenied is returned when the user dismisses the portal dialog.
var ErrDenied = errors.New("screen cast permission denied")

// Portal D-Bus constants
const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"
)

// Source types for SelectSources
const (
	SourceTypeMonitor = 1 << 0
	SourceTypeWindow  = 1 << 1
)

// Cursor and persist modes for SelectSources
const (
	CursorModeEmbedded     = 1 << 1
	PersistModeApplication = 2
)

// StreamInfo is one PipeWire stream granted by the portal. Position and
// Size are zero when the compositor does not report them.
type StreamInfo struct {
	NodeID uint32
	X, Y   int
	Width  int
	Height int
}

// Session is one granted screen cast. Close ends it.
type Session struct {
	conn   *dbus.Conn
	handle dbus.ObjectPath
	Stream StreamInfo
	once   sync.Once
}

// Close ends the portal session and disconnects from the bus
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		if s.conn == nil {
			return
		}
		if s.handle != "" {
			s.conn.Object(portalService, s.handle).Call(sessionIface+".Close", 0)
		}
		err = s.conn.Close()
	})
	return err
}

// Portal negotiates screen cast sessions
type Portal struct {
	tokenPath string
	timeout   time.Duration
	mu        sync.Mutex
	seq       atomic.Uint32
}

// NewPortal returns a portal client that keeps its restore token under the
// user config dir, so the permission dialog is only shown once.
func NewPortal() *Portal {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	return &Portal{
		tokenPath: filepath.Join(configDir, "screenrecorder", "portal_token"),
		timeout:   60 * time.Second,
	}
}

// Available reports whether the session bus exposes the ScreenCast portal
func (p *Portal) Available() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false
	}
	for _, n := range names {
		if n == portalService {
			return true
		}
	}
	return false
}

// Open runs CreateSession, SelectSources and Start. The compositor shows
// its picker during SelectSources; a dismissed picker yields ErrDenied.
func (p *Portal) Open(windows bool) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.WithComponent("portal")

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s := &Session{conn: conn}

	results, err := p.request(conn, "CreateSession", map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(p.token("session")),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	handle, err := sessionHandle(results)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.handle = handle
	log.Debug().Str("session", string(handle)).Msg("Created portal session")

	types := uint32(SourceTypeMonitor)
	if windows {
		types |= SourceTypeWindow
	}
	selectOpts := map[string]dbus.Variant{
		"types":        dbus.MakeVariant(types),
		"multiple":     dbus.MakeVariant(false),
		"cursor_mode":  dbus.MakeVariant(uint32(CursorModeEmbedded)),
		"persist_mode": dbus.MakeVariant(uint32(PersistModeApplication)),
	}
	if token := p.loadRestoreToken(); token != "" {
		selectOpts["restore_token"] = dbus.MakeVariant(token)
		log.Debug().Msg("Using saved restore token")
	}
	if _, err := p.request(conn, "SelectSources", selectOpts, handle); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to select sources: %w", err)
	}

	results, err = p.request(conn, "Start", map[string]dbus.Variant{}, handle, "")
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start screen cast: %w", err)
	}

	if v, ok := results["restore_token"]; ok {
		if token, ok := v.Value().(string); ok {
			p.saveRestoreToken(token)
		}
	}

	stream, err := parseStreams(results)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Stream = stream

	log.Info().
		Uint32("node_id", stream.NodeID).
		Int("width", stream.Width).
		Int("height", stream.Height).
		Msg("Screen cast started")
	return s, nil
}

func (p *Portal) token(prefix string) string {
	return fmt.Sprintf("screenrecorder_%s_%d_%d", prefix, os.Getpid(), p.seq.Add(1))
}

// request calls a ScreenCast method and waits for the matching Response
// signal on the returned Request object.
func (p *Portal) request(conn *dbus.Conn, method string, options map[string]dbus.Variant, args ...interface{}) (map[string]dbus.Variant, error) {
	log := logger.WithComponent("portal")

	options["handle_token"] = dbus.MakeVariant(p.token(method))

	// Subscribe before calling so a fast Response is not missed.
	responses := make(chan *dbus.Signal, 10)
	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Response'", requestIface)
	if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		log.Warn().Err(err).Msg("Failed to add match rule")
	}
	conn.Signal(responses)
	defer conn.RemoveSignal(responses)

	callArgs := append(args, options)
	var requestPath dbus.ObjectPath
	if err := conn.Object(portalService, portalPath).Call(screenCastIface+"."+method, 0, callArgs...).Store(&requestPath); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	log.Debug().Str("method", method).Str("request_path", string(requestPath)).Msg("Waiting for portal response")

	timeout := time.After(p.timeout)
	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for %s response", method)
		case sig := <-responses:
			if sig.Path != requestPath || sig.Name != requestIface+".Response" {
				continue
			}
			if len(sig.Body) < 2 {
				return nil, fmt.Errorf("invalid %s response", method)
			}
			code, _ := sig.Body[0].(uint32)
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			switch code {
			case 0:
				return results, nil
			case 1:
				return nil, ErrDenied
			default:
				return nil, fmt.Errorf("%s failed (code %d)", method, code)
			}
		}
	}
}

func sessionHandle(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := results["session_handle"]
	if !ok {
		return "", fmt.Errorf("no session handle in response")
	}
	switch h := v.Value().(type) {
	case dbus.ObjectPath:
		return h, nil
	case string:
		return dbus.ObjectPath(h), nil
	default:
		return "", fmt.Errorf("unexpected session_handle type: %T", h)
	}
}

// parseStreams reads the first entry of the a(ua{sv}) "streams" result.
func parseStreams(results map[string]dbus.Variant) (StreamInfo, error) {
	v, ok := results["streams"]
	if !ok {
		return StreamInfo{}, fmt.Errorf("no streams in response")
	}

	var entry []interface{}
	switch streams := v.Value().(type) {
	case [][]interface{}:
		if len(streams) > 0 {
			entry = streams[0]
		}
	case []interface{}:
		if len(streams) > 0 {
			entry, _ = streams[0].([]interface{})
		}
	}
	if len(entry) == 0 {
		return StreamInfo{}, fmt.Errorf("unexpected streams format %T", v.Value())
	}

	nodeID, ok := entry[0].(uint32)
	if !ok {
		return StreamInfo{}, fmt.Errorf("unexpected node id type %T", entry[0])
	}
	info := StreamInfo{NodeID: nodeID}

	if len(entry) > 1 {
		if props, ok := entry[1].(map[string]dbus.Variant); ok {
			info.X, info.Y = pair(props["position"])
			info.Width, info.Height = pair(props["size"])
		}
	}
	return info, nil
}

// pair decodes an (ii) struct variant
func pair(v dbus.Variant) (int, int) {
	vals, ok := v.Value().([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0
	}
	a, _ := vals[0].(int32)
	b, _ := vals[1].(int32)
	return int(a), int(b)
}

type restoreToken struct {
	Token string `json:"token"`
}

func (p *Portal) loadRestoreToken() string {
	data, err := os.ReadFile(p.tokenPath)
	if err != nil {
		return ""
	}
	var t restoreToken
	if err := json.Unmarshal(data, &t); err != nil {
		return ""
	}
	return t.Token
}

func (p *Portal) saveRestoreToken(token string) {
	if token == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0755); err != nil {
		return
	}
	data, err := json.Marshal(restoreToken{Token: token})
	if err != nil {
		return
	}
	if err := os.WriteFile(p.tokenPath, data, 0600); err != nil {
		logger.WithComponent("portal").Debug().Err(err).Msg("Failed to save restore token")
	}
}
