package commands

import (
	"fmt"
	"io"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/capture/pipewire"
	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/bryanchriswhite/ScreenRecorder/internal/preview"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
	"github.com/bryanchriswhite/ScreenRecorder/internal/window"
	"github.com/spf13/viper"
)

// desktop holds the display server connections shared by a command
type desktop struct {
	displays display.Provider
	windows  *window.X11Backend
	grabber  *capture.X11Grabber
}

// openDesktop connects to the display server. Window listing and window
// thumbnails are optional; screens are always available.
func openDesktop() *desktop {
	log := logger.WithComponent("desktop")

	d := &desktop{displays: display.Detect()}
	log.Debug().Str("provider", d.displays.Name()).Msg("Display provider selected")

	if w, err := window.NewX11Backend(); err != nil {
		log.Warn().Err(err).Msg("Window listing unavailable")
	} else {
		d.windows = w
	}

	if g, err := capture.NewX11Grabber(); err != nil {
		log.Warn().Err(err).Msg("Window thumbnails unavailable")
	} else {
		d.grabber = g
	}
	return d
}

// enumerator lists sources from whatever connections opened
func (d *desktop) enumerator() *capture.Enumerator {
	e := &capture.Enumerator{
		Displays: d.displays,
		Screens:  capture.ScreenGrabber{},
	}
	if d.windows != nil {
		e.Windows = d.windows
	}
	if d.grabber != nil {
		e.WindowShots = d.grabber
	}
	return e
}

// previewFrames grabs whatever the session is set to record
func (d *desktop) previewFrames(targets preview.Targeter) *preview.TargetFrames {
	f := &preview.TargetFrames{
		Targets:  targets,
		Displays: d.displays,
		Screens:  capture.ScreenGrabber{},
	}
	if d.grabber != nil {
		f.Windows = d.grabber
	}
	return f
}

func (d *desktop) Close() {
	if d.windows != nil {
		d.windows.Close()
	}
	if d.grabber != nil {
		d.grabber.Close()
	}
	if c, ok := d.displays.(io.Closer); ok {
		c.Close()
	}
}

// newBackend routes to the ScreenCast portal first under Wayland and to
// ffmpeg x11grab first otherwise.
func newBackend() *capture.Router {
	ffmpeg := capture.NewFFmpegBackend(viper.GetString("ffmpeg"))
	portal := pipewire.NewBackend(pipewire.NewPortal())

	if capture.IsWayland() {
		return capture.NewRouter(portal, ffmpeg)
	}
	return capture.NewRouter(ffmpeg, portal)
}

func loadSettings() (*config.Manager, error) {
	settings, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func newSession(settings *config.Manager, sources capture.Lister) *recording.Session {
	return recording.NewSession(sources, newBackend(), settings)
}
