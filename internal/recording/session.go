package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/google/uuid"
)

// Status strings shown to the user
const (
	StatusReady           = "ready"
	StatusRecording       = "recording"
	StatusPaused          = "paused"
	StatusSaving          = "saving"
	StatusSaved           = "saved"
	StatusSaveFailed      = "save failed"
	StatusNoData          = "no data recorded"
	StatusNothingSelected = "nothing selected"
	statusCaptureFailed   = "capture failed: "
)

// DefaultTickInterval is how often status snapshots are published while
// a recording is active.
const DefaultTickInterval = 200 * time.Millisecond

// Store provides settings and persists finished recordings.
type Store interface {
	Get() config.Settings
	SaveVideo(name string, data []byte) (string, error)
}

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Session
type Option func(*Session)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithTickInterval changes how often status is published while recording
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tick = d }
}

// WithTimeslice changes how often the stream delivers chunks
func WithTimeslice(d time.Duration) Option {
	return func(s *Session) { s.timeslice = d }
}

// Session is the recorder state machine:
// Idle → Acquiring → Recording ⇄ Paused → Stopping → Idle.
// Transitions happen under mu; acquisition, stopping and writing happen
// outside it while the state keeps competing commands out.
type Session struct {
	sources   capture.Lister
	backend   capture.Backend
	store     Store
	clock     Clock
	tick      time.Duration
	timeslice time.Duration

	mu           sync.Mutex
	state        State
	target       *Target
	stream       capture.Stream
	chunks       [][]byte
	pendingName  string
	segmentStart time.Time
	accumulated  time.Duration
	status       string
	lastFile     string
	attempt      string
	tickStop     chan struct{}
	subscribers  []chan Status
	// acquiring is closed when the in-flight Start settles
	acquiring chan struct{}
	closed    bool
}

// NewSession creates an idle session
func NewSession(sources capture.Lister, backend capture.Backend, store Store, opts ...Option) *Session {
	s := &Session{
		sources:   sources,
		backend:   backend,
		store:     store,
		clock:     systemClock{},
		tick:      DefaultTickInterval,
		timeslice: capture.DefaultTimeslice,
		status:    StatusReady,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure selects what the next recording captures. Pickers are
// disabled while capturing, so this fails unless idle.
func (s *Session) Configure(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot change target while %s", ErrBusy, s.state)
	}
	s.target = &t
	s.status = StatusReady
	s.mu.Unlock()

	logger.WithComponent("session").Info().Str("target", t.String()).Msg("Target configured")
	s.publish()
	return nil
}

// Target returns the configured target, if any
func (s *Session) Target() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return Target{}, false
	}
	return *s.target, true
}

// Start acquires a stream for the configured target and starts recording.
// Audio is requested first; if that fails the stream is requested again
// without audio.
func (s *Session) Start(ctx context.Context) error {
	log := logger.WithComponent("session")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: already %s", ErrBusy, s.state)
	}
	if s.target == nil {
		s.status = StatusNothingSelected
		s.mu.Unlock()
		s.publish()
		return ErrNothingSelected
	}
	if len(s.chunks) > 0 {
		s.mu.Unlock()
		return ErrUnsaved
	}
	target := *s.target
	s.state = StateAcquiring
	s.attempt = uuid.NewString()
	attempt := s.attempt
	done := make(chan struct{})
	s.acquiring = done
	s.mu.Unlock()
	s.publish()

	defer func() {
		s.mu.Lock()
		s.acquiring = nil
		s.mu.Unlock()
		close(done)
	}()

	log.Info().Str("attempt", attempt).Str("target", target.String()).Msg("Starting recording")

	stream, err := s.acquire(ctx, target)
	if err != nil {
		s.failStart(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Release()
		s.failStart(ErrClosed)
		return ErrClosed
	}
	s.stream = stream
	s.chunks = nil
	s.accumulated = 0
	s.segmentStart = s.clock.Now()
	s.state = StateRecording
	s.status = StatusRecording
	s.mu.Unlock()

	if err := stream.Record(s.timeslice, func(b []byte) { s.appendChunk(stream, b) }); err != nil {
		stream.Release()
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
		err = fmt.Errorf("%w: %v", capture.ErrAcquire, err)
		s.failStart(err)
		return err
	}

	s.startTicker()
	s.publish()
	log.Info().Str("attempt", attempt).Int("tracks", len(stream.Tracks())).Msg("Recording started")
	return nil
}

func (s *Session) failStart(err error) {
	logger.WithComponent("session").Error().Err(err).Msg("Failed to start recording")

	s.mu.Lock()
	s.state = StateIdle
	s.status = statusCaptureFailed + err.Error()
	s.mu.Unlock()
	s.publish()
}

// acquire resolves the target against a fresh enumeration and asks the
// backend for a stream.
func (s *Session) acquire(ctx context.Context, target Target) (capture.Stream, error) {
	sources, err := s.sources.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrAcquire, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %v", capture.ErrAcquire, capture.ErrNoSources)
	}

	var src capture.Source
	var region display.Rect
	if target.Area != nil {
		src = screenFor(sources, *target.Area)
		region = *target.Area
	} else {
		var ok bool
		src, ok = capture.Find(sources, target.SourceID)
		if !ok {
			return nil, fmt.Errorf("%w: %v: %s", capture.ErrAcquire, capture.ErrSourceNotFound, target.SourceID)
		}
		region = src.Bounds
	}

	settings := s.store.Get()
	req := capture.Request{
		Source:    src,
		Region:    region,
		Audio:     true,
		FrameRate: settings.FrameRate,
		Bitrate:   settings.Quality.Bitrate(),
	}

	stream, err := s.backend.Acquire(ctx, req)
	if err == nil {
		return stream, nil
	}
	logger.WithComponent("session").Warn().Err(err).Msg("Capture with audio failed, retrying without audio")

	req.Audio = false
	stream, err = s.backend.Acquire(ctx, req)
	if err != nil {
		if !errors.Is(err, capture.ErrAcquire) {
			err = fmt.Errorf("%w: %v", capture.ErrAcquire, err)
		}
		return nil, err
	}
	return stream, nil
}

// screenFor returns the screen holding the area's top-left corner, or
// the first screen.
func screenFor(sources []capture.Source, area display.Rect) capture.Source {
	for _, src := range sources {
		b := src.Bounds
		if src.IsScreen() && area.X >= b.X && area.X < b.Right() && area.Y >= b.Y && area.Y < b.Bottom() {
			return src
		}
	}
	src, _ := capture.PreferScreen(sources)
	return src
}

func (s *Session) appendChunk(from capture.Stream, b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != from {
		return
	}
	s.chunks = append(s.chunks, append([]byte(nil), b...))
}

// Pause freezes the elapsed time and suspends the stream. It does nothing
// unless recording.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil
	}
	if err := s.stream.Pause(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to pause: %w", err)
	}
	s.accumulated += s.clock.Now().Sub(s.segmentStart)
	s.state = StatePaused
	s.status = StatusPaused
	s.mu.Unlock()

	logger.WithComponent("session").Info().Msg("Recording paused")
	s.publish()
	return nil
}

// Resume continues a paused recording. It does nothing unless paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return nil
	}
	if err := s.stream.Resume(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to resume: %w", err)
	}
	s.segmentStart = s.clock.Now()
	s.state = StateRecording
	s.status = StatusRecording
	s.mu.Unlock()

	logger.WithComponent("session").Info().Msg("Recording resumed")
	s.publish()
	return nil
}

// Stop finishes the recording and writes it to the save directory,
// returning the saved path. Every track is released even when stopping
// fails. If the write fails the chunks are kept for RetrySave.
func (s *Session) Stop(ctx context.Context) (string, error) {
	log := logger.WithComponent("session")

	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return "", ErrNotRecording
	}
	if s.state == StateRecording {
		s.accumulated += s.clock.Now().Sub(s.segmentStart)
	}
	s.state = StateStopping
	s.status = StatusSaving
	stream := s.stream
	s.mu.Unlock()

	s.stopTicker()
	s.publish()

	func() {
		defer stream.Release()
		if err := stream.RequestData(); err != nil {
			log.Debug().Err(err).Msg("Final data request failed")
		}
		if err := stream.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Stream did not stop cleanly")
		}
	}()

	s.mu.Lock()
	s.stream = nil
	s.pendingName = FileName(s.clock.Now())
	s.mu.Unlock()

	return s.save()
}

// RetrySave writes chunks kept from a failed save
func (s *Session) RetrySave(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: cannot save while %s", ErrBusy, s.state)
	}
	if len(s.chunks) == 0 {
		s.mu.Unlock()
		return "", ErrNoData
	}
	s.state = StateStopping
	s.status = StatusSaving
	s.mu.Unlock()
	s.publish()

	return s.save()
}

// Discard drops chunks kept from a failed save
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot discard while %s", ErrBusy, s.state)
	}
	s.chunks = nil
	s.pendingName = ""
	s.status = StatusReady
	return nil
}

// save runs in StateStopping and always leaves the session Idle. Chunks
// are cleared only after a confirmed write.
func (s *Session) save() (string, error) {
	log := logger.WithComponent("session")

	s.mu.Lock()
	name := s.pendingName
	data := bytes.Join(s.chunks, nil)
	s.mu.Unlock()

	if len(data) == 0 {
		s.finish(func() {
			s.chunks = nil
			s.pendingName = ""
			s.status = StatusNoData
		})
		log.Warn().Msg("No data recorded")
		return "", ErrNoData
	}

	path, err := s.store.SaveVideo(name, data)
	if err != nil {
		s.finish(func() { s.status = StatusSaveFailed })
		log.Error().Err(err).Str("file", name).Int("bytes", len(data)).Msg("Failed to save recording")
		return "", fmt.Errorf("failed to save recording: %w", err)
	}

	s.finish(func() {
		s.chunks = nil
		s.pendingName = ""
		s.lastFile = path
		s.status = StatusSaved
	})
	log.Info().Str("path", path).Int("bytes", len(data)).Msg("Recording saved")
	return path, nil
}

func (s *Session) finish(update func()) {
	s.mu.Lock()
	update()
	s.state = StateIdle
	s.mu.Unlock()
	s.publish()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the recorded duration: it grows while recording and is
// frozen while paused.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.state == StateRecording {
		return s.accumulated + s.clock.Now().Sub(s.segmentStart)
	}
	return s.accumulated
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	elapsed := s.elapsedLocked()
	st := Status{
		State:         s.state,
		Status:        s.status,
		ElapsedMS:     elapsed.Milliseconds(),
		ElapsedText:   FormatElapsed(elapsed),
		LastFile:      s.lastFile,
		PendingChunks: len(s.chunks),
		AttemptID:     s.attempt,
	}
	if s.target != nil {
		t := *s.target
		st.Target = &t
	}
	return st
}

// Subscribe returns a channel receiving status snapshots
func (s *Session) Subscribe() chan Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Status, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber
func (s *Session) Unsubscribe(ch chan Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.statusLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- st:
		default:
			// Skip if channel is full
		}
	}
}

func (s *Session) startTicker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	s.tickStop = stop

	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.publish()
			}
		}
	}()
}

func (s *Session) stopTicker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

// Close stops an active recording, saving what was captured. A Start still
// acquiring its stream is waited for and its stream released. Later
// Starts fail with ErrClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pending := s.acquiring
	s.mu.Unlock()

	if pending != nil {
		select {
		case <-pending:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !s.State().Active() {
		s.stopTicker()
		return nil
	}
	_, err := s.Stop(ctx)
	return err
}
