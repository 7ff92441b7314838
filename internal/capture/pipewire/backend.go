package pipewire

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// Opener negotiates a screen cast session
type Opener interface {
	Available() bool
	Open(windows bool) (*Session, error)
}

// Backend records portal screen casts by running gst-launch-1.0 against
// the granted PipeWire node.
type Backend struct {
	Portal Opener
	Binary string
	// Command builds the process; tests replace it.
	Command      func(name string, args ...string) *exec.Cmd
	StartupGrace time.Duration
}

// NewBackend returns a portal backend using gst-launch-1.0 from $PATH
func NewBackend(portal Opener) *Backend {
	return &Backend{
		Portal:       portal,
		Binary:       "gst-launch-1.0",
		Command:      exec.Command,
		StartupGrace: 3 * time.Second,
	}
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "pipewire-portal"
}

// Available reports whether gst-launch-1.0 and the portal are reachable
func (b *Backend) Available() bool {
	if _, err := exec.LookPath(b.Binary); err != nil {
		return false
	}
	return b.Portal.Available()
}

// Acquire opens a portal session and starts encoding it. If the pipeline
// fails with audio it is started again without audio on the same session,
// so the user is asked for permission once. The session is closed when the
// stream is released.
func (b *Backend) Acquire(ctx context.Context, req capture.Request) (capture.Stream, error) {
	log := logger.WithComponent("pipewire-capture")

	session, err := b.Portal.Open(req.Source.Kind == capture.KindWindow)
	if err != nil {
		if errors.Is(err, ErrDenied) {
			return nil, fmt.Errorf("%w: %v", capture.ErrAcquire, err)
		}
		return nil, fmt.Errorf("%w: portal: %v", capture.ErrAcquire, err)
	}

	stream, err := b.start(ctx, session, req)
	if err != nil && req.Audio {
		log.Warn().Err(err).Msg("Pipeline with audio failed, retrying video only")
		req.Audio = false
		stream, err = b.start(ctx, session, req)
	}
	if err != nil {
		session.Close()
		return nil, err
	}
	return stream, nil
}

// start runs one pipeline against session. The session is handed to the
// stream only once the pipeline is up.
func (b *Backend) start(ctx context.Context, session *Session, req capture.Request) (*capture.ProcessStream, error) {
	log := logger.WithComponent("pipewire-capture")

	args := pipelineArgs(session.Stream, req)
	log.Debug().
		Uint32("node_id", session.Stream.NodeID).
		Str("region", req.Region.String()).
		Bool("audio", req.Audio).
		Strs("pipeline", args).
		Msg("Starting GStreamer pipeline")

	var owned atomic.Bool
	stream, err := capture.StartProcess(ctx, capture.ProcessConfig{
		Component:    "pipewire-capture",
		Cmd:          b.Command(b.Binary, args...),
		Audio:        req.Audio,
		StartupGrace: b.StartupGrace,
		OnRelease: func() {
			if !owned.Load() {
				return
			}
			if err := session.Close(); err != nil {
				log.Debug().Err(err).Msg("Failed to close portal session")
			}
		},
	})
	if err != nil {
		return nil, err
	}
	owned.Store(true)
	return stream, nil
}

// pipelineArgs builds the gst-launch-1.0 arguments. With -e, SIGINT makes
// the pipeline send EOS so webmmux finishes the file before exiting.
func pipelineArgs(info StreamInfo, req capture.Request) []string {
	fps := req.FrameRate
	if fps <= 0 {
		fps = 30
	}
	bitrate := req.Bitrate
	if bitrate <= 0 {
		bitrate = 5_000_000
	}

	args := []string{
		"-q", "-e",
		"pipewiresrc", "path=" + strconv.FormatUint(uint64(info.NodeID), 10), "do-timestamp=true",
		"!", "videoconvert",
		"!", "videorate",
		"!", fmt.Sprintf("video/x-raw,framerate=%d/1", fps),
	}
	if left, top, right, bottom, ok := cropFor(info, req.Region); ok {
		args = append(args,
			"!", "videocrop",
			"left="+strconv.Itoa(left),
			"top="+strconv.Itoa(top),
			"right="+strconv.Itoa(right),
			"bottom="+strconv.Itoa(bottom),
		)
	}
	args = append(args,
		"!", "vp8enc", "target-bitrate="+strconv.Itoa(bitrate), "deadline=1", "cpu-used=8",
		"!", "webmmux", "streamable=true", "name=mux",
		"!", "fdsink", "fd=1",
	)
	if req.Audio {
		args = append(args,
			"pulsesrc",
			"!", "audioconvert",
			"!", "opusenc",
			"!", "mux.",
		)
	}
	return args
}

// cropFor returns the videocrop margins that cut region out of the stream.
// It reports false when the stream geometry is unknown or region covers it.
func cropFor(info StreamInfo, region display.Rect) (left, top, right, bottom int, ok bool) {
	if info.Width <= 0 || info.Height <= 0 || region.Empty() {
		return 0, 0, 0, 0, false
	}
	stream := display.Rect{X: info.X, Y: info.Y, Width: info.Width, Height: info.Height}

	left = max(0, region.X-stream.X)
	top = max(0, region.Y-stream.Y)
	right = max(0, stream.Right()-region.Right())
	bottom = max(0, stream.Bottom()-region.Bottom())

	if left+right >= stream.Width || top+bottom >= stream.Height {
		return 0, 0, 0, 0, false
	}
	if left == 0 && top == 0 && right == 0 && bottom == 0 {
		return 0, 0, 0, 0, false
	}
	return left, top, right, bottom, true
}
