package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/api"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/bryanchriswhite/ScreenRecorder/internal/preview"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
	"github.com/bryanchriswhite/ScreenRecorder/internal/shell"
	"github.com/bryanchriswhite/ScreenRecorder/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ScreenRecorder server",
	Long: `Start the ScreenRecorder HTTP server with the control window and the
area selector overlay.

The server provides a REST API and a websocket status stream for the web UI.
An active recording is stopped and saved on shutdown.`,
	Example: `  # Start server on default port (8080)
  screenrecorder serve

  # Start server on custom port
  screenrecorder serve --port 9090

  # Without X11 windows; the web UI drives everything
  screenrecorder serve --headless

  # Start with debug logging
  screenrecorder serve --log-level debug --pretty-log`,
	RunE: runServe,
}

var serveHeadless bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "do not create the X11 control window and overlay")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	fmt.Println("🎬 ScreenRecorder")
	fmt.Println("=================")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	desk := openDesktop()
	defer desk.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	control, overlays, x11Control := newControlWindow(stop)
	if x11Control != nil && desk.windows != nil {
		desk.windows.Exclude(x11Control.ID())
	}

	session := newSession(settings, desk.enumerator())
	coord := window.NewCoordinator(desk.displays, control, overlays)

	if x11Control != nil {
		updates := session.Subscribe()
		defer session.Unsubscribe(updates)
		go feedStatus(x11Control, updates)
	}

	live := preview.NewStream(desk.previewFrames(session).Frame,
		preview.WithBadge(preview.SessionBadge(session)))
	defer live.Close()

	server := api.NewServer(api.Deps{
		Settings: settings,
		Sources:  desk.enumerator(),
		Session:  session,
		Windows:  coord,
		Clipper:  newClipper(),
		Shell:    shell.NewOpener(),
		Preview:  live,
		OnClose:  stop,
	})

	port := viper.GetInt("port")
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(port)
	}()

	fmt.Println()
	log.Info().Msg("✅ ScreenRecorder is running!")
	log.Info().Msgf("   - Web UI: http://localhost:%d", port)
	log.Info().Msgf("   - API: http://localhost:%d/api", port)
	log.Info().Msg("   - Press Ctrl+C to stop")
	fmt.Println()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			coord.Close()
			return err
		}
	}

	fmt.Println()
	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	live.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	if err := session.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to save recording on shutdown")
	}
	return coord.Close()
}

// newControlWindow returns the X11 control window and overlay factory, or
// headless stand-ins when --headless is set or X11 is unreachable. The
// third value is nil when headless.
func newControlWindow(onClose func()) (window.ControlWindow, window.OverlayFactory, *window.X11ControlWindow) {
	if serveHeadless {
		return window.NewHeadlessControl(), &window.HeadlessOverlays{}, nil
	}

	control, err := window.NewX11ControlWindow(onClose)
	if err != nil {
		logger.WithComponent("serve").Warn().Err(err).Msg("Control window unavailable, running headless")
		return window.NewHeadlessControl(), &window.HeadlessOverlays{}, nil
	}
	return control, window.X11Overlays{}, control
}

// feedStatus mirrors session status into the control window
func feedStatus(control *window.X11ControlWindow, updates chan recording.Status) {
	for st := range updates {
		control.SetStatus(st.ElapsedText + "  " + st.Status)
	}
}
