package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// ProcessConfig describes an encoder subprocess that writes a media
// container to stdout.
type ProcessConfig struct {
	// Component names the stream in logs
	Component string
	Cmd       *exec.Cmd
	Audio     bool
	// Finish asks the process to finalize its output and exit on its own.
	Finish func(cmd *exec.Cmd, stdin io.WriteCloser) error
	// OnRelease runs once after the process is gone.
	OnRelease func()
	// StartupGrace bounds how long StartProcess waits for the first output
	// byte or an early exit before declaring the stream acquired.
	StartupGrace time.Duration
	// FinishTimeout bounds Stop before the process is killed.
	FinishTimeout time.Duration
}

// ProcessStream turns an encoder's stdout into timesliced chunks.
type ProcessStream struct {
	cfg   ProcessConfig
	stdin io.WriteCloser

	mu        sync.Mutex
	pending   []byte
	onChunk   func([]byte)
	recording bool
	paused    bool

	deliverMu sync.Mutex
	tracks    []*processTrack

	firstData   chan struct{}
	firstOnce   sync.Once
	readDone    chan struct{}
	exited      chan struct{}
	waitErr     error
	stopTick    chan struct{}
	tickOnce    sync.Once
	releaseOnce sync.Once
	stderr      *tailBuffer
}

// StartProcess launches cfg.Cmd and waits until it either produces output,
// survives the startup grace period, or exits. An early exit is an
// acquisition error carrying the tail of stderr.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*ProcessStream, error) {
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = 2 * time.Second
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 10 * time.Second
	}
	if cfg.Component == "" {
		cfg.Component = "process-stream"
	}

	s := &ProcessStream{
		cfg:       cfg,
		firstData: make(chan struct{}),
		readDone:  make(chan struct{}),
		exited:    make(chan struct{}),
		stopTick:  make(chan struct{}),
		stderr:    newTailBuffer(4096),
	}
	s.tracks = []*processTrack{{kind: "video", stream: s}}
	if cfg.Audio {
		s.tracks = append(s.tracks, &processTrack{kind: "audio", stream: s})
	}

	cmd := cfg.Cmd
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get stdout pipe: %v", ErrAcquire, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get stdin pipe: %v", ErrAcquire, err)
	}
	s.stdin = stdin
	cmd.Stderr = s.stderr

	log := logger.WithComponent(cfg.Component)
	log.Debug().Str("cmd", cmd.Path).Strs("args", cmd.Args[1:]).Msg("Starting encoder")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrAcquire, cmd.Path, err)
	}

	go s.readLoop(stdout)
	go func() {
		<-s.readDone
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	select {
	case <-s.firstData:
	case <-s.exited:
		s.Release()
		return nil, fmt.Errorf("%w: %s exited: %s", ErrAcquire, cmd.Path, s.failureReason())
	case <-ctx.Done():
		s.Release()
		return nil, fmt.Errorf("%w: %v", ErrAcquire, ctx.Err())
	case <-time.After(cfg.StartupGrace):
		log.Debug().Msg("No output yet, assuming encoder is running")
	}

	log.Info().Int("pid", cmd.Process.Pid).Bool("audio", cfg.Audio).Msg("Encoder started")
	return s, nil
}

func (s *ProcessStream) failureReason() string {
	tail := strings.TrimSpace(s.stderr.String())
	if tail == "" && s.waitErr != nil {
		return s.waitErr.Error()
	}
	if i := strings.LastIndex(tail, "\n"); i >= 0 {
		tail = tail[i+1:]
	}
	return tail
}

func (s *ProcessStream) readLoop(r io.Reader) {
	defer close(s.readDone)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
			s.firstOnce.Do(func() { close(s.firstData) })
		}
		if err != nil {
			return
		}
	}
}

// Tracks returns the stream's tracks
func (s *ProcessStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// Record starts delivering buffered output every timeslice.
func (s *ProcessStream) Record(timeslice time.Duration, onChunk func([]byte)) error {
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}

	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return errors.New("stream already recording")
	}
	s.recording = true
	s.onChunk = onChunk
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(timeslice)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopTick:
				return
			case <-ticker.C:
				s.flush()
			}
		}
	}()
	return nil
}

// flush hands pending bytes to the chunk callback. deliverMu keeps chunks
// in order when a tick and RequestData race.
func (s *ProcessStream) flush() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	data := s.pending
	s.pending = nil
	onChunk := s.onChunk
	s.mu.Unlock()

	if len(data) > 0 && onChunk != nil {
		onChunk(data)
	}
}

// Pause suspends the encoder process
func (s *ProcessStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.paused {
		return ErrNotRecording
	}
	if err := pauseProcess(s.cfg.Cmd.Process); err != nil {
		return fmt.Errorf("failed to pause encoder: %w", err)
	}
	s.paused = true
	return nil
}

// Resume continues a paused encoder
func (s *ProcessStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return ErrNotRecording
	}
	if err := resumeProcess(s.cfg.Cmd.Process); err != nil {
		return fmt.Errorf("failed to resume encoder: %w", err)
	}
	s.paused = false
	return nil
}

// RequestData delivers the buffered output immediately
func (s *ProcessStream) RequestData() error {
	s.mu.Lock()
	recording := s.recording
	s.mu.Unlock()
	if !recording {
		return ErrNotRecording
	}
	s.flush()
	return nil
}

// Stop asks the encoder to finish, waits for it and delivers the tail of
// the output. The process is killed if it does not exit in time.
func (s *ProcessStream) Stop(ctx context.Context) error {
	log := logger.WithComponent(s.cfg.Component)

	s.mu.Lock()
	if s.paused {
		if err := resumeProcess(s.cfg.Cmd.Process); err != nil {
			log.Warn().Err(err).Msg("Failed to resume encoder before stop")
		}
		s.paused = false
	}
	s.mu.Unlock()

	var finishErr error
	if s.cfg.Finish != nil {
		finishErr = s.cfg.Finish(s.cfg.Cmd, s.stdin)
	} else {
		finishErr = interruptProcess(s.cfg.Cmd.Process)
	}
	if finishErr != nil {
		log.Warn().Err(finishErr).Msg("Failed to ask encoder to finish, killing it")
		_ = s.cfg.Cmd.Process.Kill()
	}

	timeout := time.NewTimer(s.cfg.FinishTimeout)
	defer timeout.Stop()

	var stopErr error
	select {
	case <-s.exited:
	case <-timeout.C:
		stopErr = errors.New("encoder did not exit in time")
		_ = s.cfg.Cmd.Process.Kill()
		<-s.exited
	case <-ctx.Done():
		stopErr = ctx.Err()
		_ = s.cfg.Cmd.Process.Kill()
		<-s.exited
	}

	s.tickOnce.Do(func() { close(s.stopTick) })
	s.flush()

	if stopErr == nil && s.waitErr != nil && finishErr == nil {
		log.Debug().Err(s.waitErr).Str("stderr", s.failureReason()).Msg("Encoder exited with error")
	}
	return stopErr
}

// Release stops every track and makes sure the process is gone.
func (s *ProcessStream) Release() {
	s.releaseOnce.Do(func() {
		log := logger.WithComponent(s.cfg.Component)

		s.tickOnce.Do(func() { close(s.stopTick) })
		for _, t := range s.tracks {
			t.stopped.Store(true)
		}

		select {
		case <-s.exited:
		default:
			if s.cfg.Cmd.Process != nil {
				_ = resumeProcess(s.cfg.Cmd.Process)
				_ = s.cfg.Cmd.Process.Kill()
			}
			select {
			case <-s.exited:
			case <-time.After(2 * time.Second):
				log.Warn().Msg("Encoder did not exit after kill")
			}
		}
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		if s.cfg.OnRelease != nil {
			s.cfg.OnRelease()
		}
		log.Debug().Msg("Stream released")
	})
}

type processTrack struct {
	kind    string
	stream  *ProcessStream
	stopped atomic.Bool
}

func (t *processTrack) Kind() string  { return t.kind }
func (t *processTrack) Stopped() bool { return t.stopped.Load() }

// Stop ends this track; the process goes away once every track is stopped.
func (t *processTrack) Stop() {
	t.stopped.Store(true)
	for _, other := range t.stream.tracks {
		if !other.stopped.Load() {
			return
		}
	}
	t.stream.Release()
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
