package recording

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 9, 14, 5, 7, 123000000, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLister struct {
	sources []capture.Source
	err     error
}

func (l fakeLister) Sources(ctx context.Context) ([]capture.Source, error) {
	return l.sources, l.err
}

type fakeTrack struct {
	kind    string
	stopped bool
}

func (t *fakeTrack) Kind() string  { return t.kind }
func (t *fakeTrack) Stop()         { t.stopped = true }
func (t *fakeTrack) Stopped() bool { return t.stopped }

type fakeStream struct {
	mu      sync.Mutex
	tracks  []*fakeTrack
	onChunk func([]byte)
	// buffered is delivered by RequestData, final by Stop
	buffered  [][]byte
	final     []byte
	recordErr error
	stopErr   error
	pauses    int
	resumes   int
	released  int
}

func newFakeStream(audio bool) *fakeStream {
	s := &fakeStream{tracks: []*fakeTrack{{kind: "video"}}}
	if audio {
		s.tracks = append(s.tracks, &fakeTrack{kind: "audio"})
	}
	return s
}

func (s *fakeStream) Tracks() []capture.Track {
	out := make([]capture.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *fakeStream) Record(timeslice time.Duration, onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.onChunk = onChunk
	return nil
}

func (s *fakeStream) Pause() error  { s.mu.Lock(); s.pauses++; s.mu.Unlock(); return nil }
func (s *fakeStream) Resume() error { s.mu.Lock(); s.resumes++; s.mu.Unlock(); return nil }

func (s *fakeStream) emit(chunks ...[]byte) {
	s.mu.Lock()
	onChunk := s.onChunk
	s.mu.Unlock()
	for _, c := range chunks {
		onChunk(c)
	}
}

func (s *fakeStream) RequestData() error {
	s.mu.Lock()
	buffered := s.buffered
	s.buffered = nil
	s.mu.Unlock()
	s.emit(buffered...)
	return nil
}

func (s *fakeStream) Stop(ctx context.Context) error {
	if s.final != nil {
		s.emit(s.final)
	}
	return s.stopErr
}

func (s *fakeStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	for _, t := range s.tracks {
		t.stopped = true
	}
}

type fakeBackend struct {
	mu        sync.Mutex
	requests  []capture.Request
	failAudio bool
	err       error
	streams   []*fakeStream
	recordErr error
	// gate, when set, holds Acquire until it is closed
	gate chan struct{}
}

func (b *fakeBackend) Name() string    { return "fake" }
func (b *fakeBackend) Available() bool { return true }

func (b *fakeBackend) Acquire(ctx context.Context, req capture.Request) (capture.Stream, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if req.Audio && b.failAudio {
		return nil, errors.New("no audio device")
	}
	s := newFakeStream(req.Audio)
	s.recordErr = b.recordErr
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) last() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[len(b.streams)-1]
}

type fakeStore struct {
	mu      sync.Mutex
	saveErr error
	saved   map[string][]byte
}

func (s *fakeStore) Get() config.Settings {
	return config.Settings{SaveDirectory: "/videos", Quality: config.QualityUltra, FrameRate: 60}
}

func (s *fakeStore) SaveVideo(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = append([]byte(nil), data...)
	return "/videos/" + name, nil
}

var screens = []capture.Source{
	{ID: "screen:0", Name: "Screen 1", Kind: capture.KindScreen, Bounds: display.Rect{Width: 1920, Height: 1080}},
	{ID: "screen:1", Name: "Screen 2", Kind: capture.KindScreen, Bounds: display.Rect{X: 1920, Width: 1280, Height: 1024}},
	{ID: "window:42", Name: "Editor", Kind: capture.KindWindow, Bounds: display.Rect{X: 100, Y: 100, Width: 640, Height: 480}},
}

type harness struct {
	session *Session
	backend *fakeBackend
	store   *fakeStore
	clock   *fakeClock
}

func newHarness(t *testing.T, sources []capture.Source) *harness {
	t.Helper()
	h := &harness{backend: &fakeBackend{}, store: &fakeStore{}, clock: newFakeClock()}
	h.session = NewSession(fakeLister{sources: sources}, h.backend, h.store,
		WithClock(h.clock), WithTickInterval(10*time.Millisecond))
	t.Cleanup(func() { h.session.stopTicker() })
	return h
}

func (h *harness) start(t *testing.T, target Target) *fakeStream {
	t.Helper()
	if err := h.session.Configure(target); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h.backend.last()
}

func TestStartWithoutTarget(t *testing.T) {
	h := newHarness(t, screens)
	err := h.session.Start(context.Background())
	if !errors.Is(err, ErrNothingSelected) {
		t.Fatalf("got %v, want ErrNothingSelected", err)
	}
	st := h.session.Status()
	if st.State != StateIdle || st.Status != "nothing selected" {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(h.backend.requests) != 0 {
		t.Fatal("backend called without a target")
	}
}

func TestStartWithZeroSourcesStaysIdle(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.Configure(Target{SourceID: "screen:0"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	err := h.session.Start(context.Background())
	if !errors.Is(err, capture.ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
	st := h.session.Status()
	if st.State != StateIdle {
		t.Fatalf("state = %s, want idle", st.State)
	}
	if !strings.HasPrefix(st.Status, "capture failed: ") {
		t.Fatalf("status = %q", st.Status)
	}
	if len(h.backend.requests) != 0 {
		t.Fatal("backend called with no sources")
	}
}

func TestStartUnknownSource(t *testing.T) {
	h := newHarness(t, screens)
	h.session.Configure(Target{SourceID: "window:7"})
	if err := h.session.Start(context.Background()); !errors.Is(err, capture.ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
	if h.session.State() != StateIdle {
		t.Fatal("session left idle after failure")
	}
}

func TestStartRequestsAudioThenFallsBack(t *testing.T) {
	h := newHarness(t, screens)
	h.backend.failAudio = true

	stream := h.start(t, Target{SourceID: "window:42"})

	if len(h.backend.requests) != 2 {
		t.Fatalf("got %d acquire calls, want 2", len(h.backend.requests))
	}
	first, second := h.backend.requests[0], h.backend.requests[1]
	if !first.Audio || second.Audio {
		t.Fatalf("audio flags %v, %v; want true then false", first.Audio, second.Audio)
	}
	if second.Region != screens[2].Bounds || second.Source.ID != "window:42" {
		t.Fatalf("unexpected request %+v", second)
	}
	if second.FrameRate != 60 || second.Bitrate != 8_000_000 {
		t.Fatalf("settings not applied: %+v", second)
	}
	if len(stream.Tracks()) != 1 {
		t.Fatal("fallback stream should be video only")
	}
	if h.session.State() != StateRecording {
		t.Fatalf("state = %s, want recording", h.session.State())
	}
}

func TestStartAreaUsesContainingScreen(t *testing.T) {
	h := newHarness(t, screens)
	area := display.Rect{X: 2000, Y: 10, Width: 300, Height: 200}
	h.start(t, Target{Area: &area})

	req := h.backend.requests[0]
	if req.Source.ID != "screen:1" || req.Region != area {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestStartHardFailure(t *testing.T) {
	h := newHarness(t, screens)
	h.backend.err = errors.New("permission denied")
	h.session.Configure(Target{SourceID: "screen:0"})

	err := h.session.Start(context.Background())
	if !errors.Is(err, capture.ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
	st := h.session.Status()
	if st.State != StateIdle || !strings.Contains(st.Status, "permission denied") {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRecordFailureReleasesStream(t *testing.T) {
	h := newHarness(t, screens)
	h.backend.recordErr = errors.New("recorder broke")
	h.session.Configure(Target{SourceID: "screen:0"})

	if err := h.session.Start(context.Background()); !errors.Is(err, capture.ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
	stream := h.backend.last()
	if stream.released != 1 {
		t.Fatalf("stream released %d times, want 1", stream.released)
	}
	for _, tr := range stream.tracks {
		if !tr.stopped {
			t.Fatalf("%s track still live", tr.kind)
		}
	}
	if h.session.State() != StateIdle {
		t.Fatal("session not idle")
	}
}

func TestStartWhileBusy(t *testing.T) {
	h := newHarness(t, screens)
	h.start(t, Target{SourceID: "screen:0"})

	if err := h.session.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("got %v, want ErrBusy", err)
	}
	if err := h.session.Configure(Target{SourceID: "screen:1"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Configure while recording: got %v, want ErrBusy", err)
	}
}

func TestCloseWaitsForAcquisition(t *testing.T) {
	h := newHarness(t, screens)
	h.backend.gate = make(chan struct{})
	if err := h.session.Configure(Target{SourceID: "screen:0"}); err != nil {
		t.Fatal(err)
	}

	started := make(chan error, 1)
	go func() { started <- h.session.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.session.State() != StateAcquiring {
		if time.Now().After(deadline) {
			t.Fatal("Start never reached Acquiring")
		}
		time.Sleep(time.Millisecond)
	}

	closed := make(chan error, 1)
	go func() { closed <- h.session.Close(context.Background()) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned during acquisition: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(h.backend.gate)
	if err := <-started; !errors.Is(err, ErrClosed) {
		t.Fatalf("Start: got %v, want ErrClosed", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}

	stream := h.backend.last()
	if stream.released != 1 {
		t.Fatalf("released %d times, want 1", stream.released)
	}
	for _, tr := range stream.tracks {
		if !tr.stopped {
			t.Fatalf("%s track left running", tr.kind)
		}
	}
	if h.session.State() != StateIdle {
		t.Fatalf("state = %s", h.session.State())
	}
	if err := h.session.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close: got %v, want ErrClosed", err)
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	h := newHarness(t, screens)

	// Out of state: no-ops.
	if err := h.session.Pause(); err != nil {
		t.Fatalf("Pause while idle: %v", err)
	}
	if err := h.session.Resume(); err != nil {
		t.Fatalf("Resume while idle: %v", err)
	}

	stream := h.start(t, Target{SourceID: "screen:0"})
	h.clock.Advance(3 * time.Second)

	h.session.Pause()
	h.session.Pause()
	if h.session.State() != StatePaused || stream.pauses != 1 {
		t.Fatalf("state %s, pauses %d", h.session.State(), stream.pauses)
	}
	if got := h.session.Elapsed(); got != 3*time.Second {
		t.Fatalf("elapsed = %v, want 3s (counted once)", got)
	}

	h.session.Resume()
	h.session.Resume()
	if h.session.State() != StateRecording || stream.resumes != 1 {
		t.Fatalf("state %s, resumes %d", h.session.State(), stream.resumes)
	}
}

func TestElapsedFrozenWhilePaused(t *testing.T) {
	h := newHarness(t, screens)
	h.start(t, Target{SourceID: "screen:0"})

	h.clock.Advance(1500 * time.Millisecond)
	if got := h.session.Elapsed(); got != 1500*time.Millisecond {
		t.Fatalf("elapsed = %v", got)
	}
	h.clock.Advance(500 * time.Millisecond)
	if got := h.session.Elapsed(); got != 2*time.Second {
		t.Fatalf("elapsed should grow while recording: %v", got)
	}

	h.session.Pause()
	h.clock.Advance(time.Minute)
	if got := h.session.Elapsed(); got != 2*time.Second {
		t.Fatalf("elapsed should be frozen while paused: %v", got)
	}

	h.session.Resume()
	h.clock.Advance(63 * time.Second)
	st := h.session.Status()
	if st.ElapsedMS != 65000 || st.ElapsedText != "01:05" {
		t.Fatalf("unexpected elapsed %d / %q", st.ElapsedMS, st.ElapsedText)
	}
}

func TestStopSavesJoinedChunks(t *testing.T) {
	h := newHarness(t, screens)
	stream := h.start(t, Target{SourceID: "screen:0"})

	stream.emit([]byte("abc"), []byte{})
	stream.buffered = [][]byte{[]byte("de")}
	stream.final = []byte("fgh")

	path, err := h.session.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	wantName := "recording-2024-03-09T14-05-07.webm"
	if path != "/videos/"+wantName {
		t.Fatalf("path = %q", path)
	}
	data := h.store.saved[wantName]
	if string(data) != "abcdefgh" {
		t.Fatalf("saved %q, want abcdefgh", data)
	}

	st := h.session.Status()
	if st.State != StateIdle || st.Status != "saved" || st.LastFile != path || st.PendingChunks != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
	if stream.released != 1 {
		t.Fatalf("stream released %d times", stream.released)
	}
}

func TestStopReleasesTracksWhenStopFails(t *testing.T) {
	h := newHarness(t, screens)
	stream := h.start(t, Target{SourceID: "screen:0"})
	stream.stopErr = errors.New("encoder hung")
	stream.emit([]byte("partial"))

	if _, err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, tr := range stream.tracks {
		if !tr.stopped {
			t.Fatalf("%s track still live", tr.kind)
		}
	}
}

func TestStopWithNoData(t *testing.T) {
	h := newHarness(t, screens)
	h.start(t, Target{SourceID: "screen:0"})

	_, err := h.session.Stop(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("got %v, want ErrNoData", err)
	}
	if len(h.store.saved) != 0 {
		t.Fatal("file written without data")
	}
	if st := h.session.Status(); st.State != StateIdle || st.Status != "no data recorded" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStopWhenIdle(t *testing.T) {
	h := newHarness(t, screens)
	if _, err := h.session.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("got %v, want ErrNotRecording", err)
	}
}

func TestFailedSaveKeepsChunksForRetry(t *testing.T) {
	h := newHarness(t, screens)
	stream := h.start(t, Target{SourceID: "screen:0"})
	stream.emit([]byte("one"), []byte("two"))

	h.store.saveErr = errors.New("disk full")
	if _, err := h.session.Stop(context.Background()); err == nil {
		t.Fatal("Stop should report the write failure")
	}
	st := h.session.Status()
	if st.State != StateIdle || st.Status != "save failed" || st.PendingChunks != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	if err := h.session.Start(context.Background()); !errors.Is(err, ErrUnsaved) {
		t.Fatalf("Start with unsaved chunks: got %v, want ErrUnsaved", err)
	}

	h.clock.Advance(time.Hour)
	h.store.saveErr = nil
	path, err := h.session.RetrySave(context.Background())
	if err != nil {
		t.Fatalf("RetrySave: %v", err)
	}
	if !strings.HasSuffix(path, "recording-2024-03-09T14-05-07.webm") {
		t.Fatalf("retry should keep the original name, got %q", path)
	}
	if got := string(h.store.saved["recording-2024-03-09T14-05-07.webm"]); got != "onetwo" {
		t.Fatalf("saved %q", got)
	}
	if h.session.Status().PendingChunks != 0 {
		t.Fatal("chunks kept after a confirmed write")
	}
	if _, err := h.session.RetrySave(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("second RetrySave: got %v, want ErrNoData", err)
	}
}

func TestDiscardDropsUnsavedChunks(t *testing.T) {
	h := newHarness(t, screens)
	stream := h.start(t, Target{SourceID: "screen:0"})
	stream.emit([]byte("x"))
	h.store.saveErr = errors.New("read-only")
	h.session.Stop(context.Background())

	if err := h.session.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if h.session.Status().PendingChunks != 0 {
		t.Fatal("chunks not discarded")
	}
	h.store.saveErr = nil
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start after discard: %v", err)
	}
}

func TestStatusTickerPublishesWhileRecording(t *testing.T) {
	h := newHarness(t, screens)
	ch := h.session.Subscribe()
	defer h.session.Unsubscribe(ch)

	h.start(t, Target{SourceID: "screen:0"})

	deadline := time.After(2 * time.Second)
	recording := 0
	for recording < 3 {
		select {
		case st := <-ch:
			if st.State == StateRecording {
				recording++
			}
		case <-deadline:
			t.Fatalf("got %d recording snapshots, want at least 3", recording)
		}
	}
}

func TestTargetValidate(t *testing.T) {
	area := display.Rect{Width: 10, Height: 10}
	empty := display.Rect{}
	tests := []struct {
		name    string
		target  Target
		wantErr error
	}{
		{"source", Target{SourceID: "screen:0"}, nil},
		{"area", Target{Area: &area}, nil},
		{"neither", Target{}, ErrInvalidTarget},
		{"both", Target{SourceID: "screen:0", Area: &area}, ErrInvalidTarget},
		{"empty area", Target{Area: &empty}, display.ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatElapsed(0); got != "00:00" {
		t.Errorf("FormatElapsed(0) = %q", got)
	}
	if got := FormatElapsed(59*time.Second + 999*time.Millisecond); got != "00:59" {
		t.Errorf("FormatElapsed(59.999s) = %q", got)
	}
	if got := FormatElapsed(2*time.Hour + 5*time.Second); got != "120:05" {
		t.Errorf("FormatElapsed(2h5s) = %q", got)
	}

	local := time.Date(2024, 12, 31, 23, 59, 59, 0, time.FixedZone("CET", 3600))
	if got := FileName(local); got != "recording-2024-12-31T22-59-59.webm" {
		t.Errorf("FileName = %q", got)
	}
	if s := StateStopping.String(); s != "stopping" {
		t.Errorf("StateStopping = %q", s)
	}
}
