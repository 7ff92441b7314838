package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// FFmpegBackend records X11 regions with ffmpeg's x11grab input and muxes
// VP8 (plus Opus when audio is requested) into a WebM stream on stdout.
type FFmpegBackend struct {
	Binary      string
	Display     string
	AudioSource string
	// Command builds the process; tests replace it.
	Command      func(name string, args ...string) *exec.Cmd
	StartupGrace time.Duration
}

// NewFFmpegBackend returns a backend for the X display in $DISPLAY
func NewFFmpegBackend(binary string) *FFmpegBackend {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegBackend{
		Binary:      binary,
		Display:     os.Getenv("DISPLAY"),
		AudioSource: "default",
		Command:     exec.Command,
	}
}

// Name returns the backend name
func (b *FFmpegBackend) Name() string {
	return "ffmpeg-x11grab"
}

// Available reports whether an X display and the ffmpeg binary are present
func (b *FFmpegBackend) Available() bool {
	if b.Display == "" {
		return false
	}
	_, err := exec.LookPath(b.Binary)
	return err == nil
}

// Acquire starts ffmpeg for req.Region
func (b *FFmpegBackend) Acquire(ctx context.Context, req Request) (Stream, error) {
	if err := req.Region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}

	args := b.args(req)
	logger.WithComponent("ffmpeg-capture").Debug().
		Str("source", req.Source.ID).
		Str("region", req.Region.String()).
		Bool("audio", req.Audio).
		Msg("Acquiring x11grab stream")

	return StartProcess(ctx, ProcessConfig{
		Component:    "ffmpeg-capture",
		Cmd:          b.Command(b.Binary, args...),
		Audio:        req.Audio,
		Finish:       finishFFmpeg,
		StartupGrace: b.StartupGrace,
	})
}

// finishFFmpeg sends the interactive quit command so the muxer writes its
// trailer, then falls back to SIGINT.
func finishFFmpeg(cmd *exec.Cmd, stdin io.WriteCloser) error {
	if stdin != nil {
		if _, err := io.WriteString(stdin, "q"); err == nil {
			return stdin.Close()
		}
	}
	return interruptProcess(cmd.Process)
}

func (b *FFmpegBackend) args(req Request) []string {
	fps := req.FrameRate
	if fps <= 0 {
		fps = 30
	}
	bitrate := req.Bitrate
	if bitrate <= 0 {
		bitrate = 5_000_000
	}
	dpy := b.Display
	if dpy == "" {
		dpy = ":0"
	}

	r := req.Region
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostats",
		"-f", "x11grab",
		"-framerate", strconv.Itoa(fps),
		"-video_size", fmt.Sprintf("%dx%d", r.Width, r.Height),
		"-draw_mouse", "1",
		"-i", fmt.Sprintf("%s+%d,%d", dpy, r.X, r.Y),
	}
	if req.Audio {
		args = append(args, "-f", "pulse", "-i", b.AudioSource)
	}
	args = append(args,
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", strconv.Itoa(bitrate),
	)
	if req.Audio {
		args = append(args, "-c:a", "libopus")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-f", "webm", "-cluster_time_limit", "500", "pipe:1")
	return args
}
