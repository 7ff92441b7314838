package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a screen, window or area",
	Long: `Record one source to the save directory until Ctrl+C or --duration.

Without --source, --area or --select the first screen is recorded. SIGUSR1
toggles pause.`,
	Example: `  # Record the primary screen until Ctrl+C
  screenrecorder record

  # Record a window listed by 'screenrecorder sources'
  screenrecorder record --source window:65011714

  # Record a fixed area for 30 seconds
  screenrecorder record --area 1280x720+100+100 --duration 30s

  # Drag-select the area first
  screenrecorder record --select`,
	RunE: runRecord,
}

var (
	recordSource   string
	recordArea     string
	recordSelect   bool
	recordDuration time.Duration
)

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVarP(&recordSource, "source", "s", "", "source id (screen:N or window:ID)")
	recordCmd.Flags().StringVarP(&recordArea, "area", "a", "", "area as WxH+X+Y in desktop coordinates")
	recordCmd.Flags().BoolVar(&recordSelect, "select", false, "drag-select the area before recording")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop after this long (0 records until Ctrl+C)")
	recordCmd.MarkFlagsMutuallyExclusive("source", "area", "select")
}

func runRecord(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("record")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	desk := openDesktop()
	defer desk.Close()

	sources := desk.enumerator()
	target, err := recordTarget(cmd.Context(), desk.displays, sources)
	if err != nil {
		return err
	}

	session := newSession(settings, sources)
	if err := session.Configure(target); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	pause := make(chan os.Signal, 1)
	if len(pauseSignals) > 0 {
		signal.Notify(pause, pauseSignals...)
	}
	defer signal.Stop(pause)

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	log.Info().Str("target", target.String()).Msg("Recording, press Ctrl+C to stop")

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-timeout:
			break wait
		case <-pause:
			togglePause(session)
		}
	}

	path, err := session.Stop(context.Background())
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}

	log.Info().Str("elapsed", session.Status().ElapsedText).Msg("Recording saved")
	fmt.Println(path)
	return nil
}

func togglePause(session *recording.Session) {
	var err error
	if session.State() == recording.StatePaused {
		err = session.Resume()
	} else {
		err = session.Pause()
	}
	if err != nil {
		logger.WithComponent("record").Warn().Err(err).Msg("Pause toggle failed")
		return
	}
	logger.WithComponent("record").Info().Str("state", session.State().String()).Msg("Pause toggled")
}

// recordTarget resolves the flags to a target
func recordTarget(ctx context.Context, displays display.Provider, sources capture.Lister) (recording.Target, error) {
	switch {
	case recordSource != "":
		return recording.Target{SourceID: recordSource}, nil
	case recordArea != "":
		area, err := display.ParseRect(recordArea)
		if err != nil {
			return recording.Target{}, err
		}
		return recording.Target{Area: &area}, nil
	case recordSelect:
		area, err := selectArea(ctx, displays)
		if err != nil {
			return recording.Target{}, err
		}
		return recording.Target{Area: &area}, nil
	}

	list, err := sources.Sources(ctx)
	if err != nil {
		return recording.Target{}, fmt.Errorf("failed to list sources: %w", err)
	}
	src, ok := capture.PreferScreen(list)
	if !ok {
		return recording.Target{}, capture.ErrNoSources
	}
	return recording.Target{SourceID: src.ID}, nil
}
