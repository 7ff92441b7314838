package display

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// RandRProvider reads the monitor layout from the X server through the
// RandR extension. Each connected output driving a CRTC is one Display.
type RandRProvider struct {
	conn *xgb.Conn
	root xproto.Window
	mu   sync.Mutex
}

// NewRandRProvider connects to the X server named by $DISPLAY.
func NewRandRProvider() (*RandRProvider, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("RandR extension not available: %w", err)
	}

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return &RandRProvider{conn: conn, root: root}, nil
}

// Name returns the provider name
func (p *RandRProvider) Name() string {
	return "randr"
}

// Close closes the X11 connection
func (p *RandRProvider) Close() error {
	p.conn.Close()
	return nil
}

// Displays queries the current outputs. Nothing is cached between calls.
func (p *RandRProvider) Displays() ([]Display, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.WithComponent("randr")

	res, err := randr.GetScreenResourcesCurrent(p.conn, p.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(p.conn, p.root).Reply(); err == nil {
		primary = reply.Output
	}

	displays := make([]Display, 0, len(res.Outputs))
	for _, output := range res.Outputs {
		info, err := randr.GetOutputInfo(p.conn, output, res.ConfigTimestamp).Reply()
		if err != nil {
			log.Debug().Err(err).Uint32("output", uint32(output)).Msg("Skipping output without info")
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}

		crtc, err := randr.GetCrtcInfo(p.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			log.Debug().Err(err).Uint32("crtc", uint32(info.Crtc)).Msg("Skipping output without CRTC info")
			continue
		}
		if crtc.Width == 0 || crtc.Height == 0 {
			continue
		}

		displays = append(displays, Display{
			ID:   strconv.FormatUint(uint64(output), 10),
			Name: string(info.Name),
			Bounds: Rect{
				X:      int(crtc.X),
				Y:      int(crtc.Y),
				Width:  int(crtc.Width),
				Height: int(crtc.Height),
			},
			Primary: output == primary,
		})
	}

	if len(displays) == 0 {
		return nil, ErrNoDisplays
	}

	log.Debug().Int("count", len(displays)).Msg("Enumerated displays")
	return displays, nil
}
