package preview

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestWriteFrameScalesAndBroadcasts(t *testing.T) {
	s := NewStream(nil, WithMaxWidth(320))
	ch := make(chan []byte, 1)
	s.clients[ch] = struct{}{}

	if err := s.WriteFrame(solid(1920, 1080, color.White)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(<-ch))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 180 {
		t.Fatalf("frame size = %v, want 320x180", b)
	}
}

func TestWriteFrameSkipsSlowClients(t *testing.T) {
	s := NewStream(nil)
	ch := make(chan []byte) // never read
	s.clients[ch] = struct{}{}

	done := make(chan error, 1)
	go func() { done <- s.WriteFrame(solid(10, 10, color.Black)) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteFrame blocked on a slow client")
	}
}

func TestDrawBadgeMarksTopLeft(t *testing.T) {
	img := solid(200, 100, color.White).(*image.RGBA)
	DrawBadge(img, "REC 00:05")

	// the box darkens the white background
	if r, _, _, _ := img.At(badgeMargin+1, badgeMargin+1).RGBA(); r>>8 == 0xff {
		t.Fatal("badge background not drawn")
	}
	if r, g, b, _ := img.At(199, 99).RGBA(); r>>8 != 0xff || g>>8 != 0xff || b>>8 != 0xff {
		t.Fatal("badge drawn outside its box")
	}
}

type fakeStatus struct{ status recording.Status }

func (f fakeStatus) Status() recording.Status { return f.status }

func TestSessionBadge(t *testing.T) {
	tests := []struct {
		state recording.State
		want  string
	}{
		{recording.StateIdle, ""},
		{recording.StateRecording, "REC 01:05"},
		{recording.StatePaused, "PAUSED 01:05"},
		{recording.StateStopping, ""},
	}
	for _, tt := range tests {
		badge := SessionBadge(fakeStatus{recording.Status{State: tt.state, ElapsedText: "01:05"}})
		if got := badge(); got != tt.want {
			t.Errorf("%s: badge = %q, want %q", tt.state, got, tt.want)
		}
	}
}

type fakeTargets struct {
	target recording.Target
	ok     bool
}

func (f fakeTargets) Target() (recording.Target, bool) { return f.target, f.ok }

type recordingGrabber struct {
	regions []display.Rect
	windows []uint32
}

func (g *recordingGrabber) GrabRegion(r display.Rect) (image.Image, error) {
	g.regions = append(g.regions, r)
	return solid(r.Width, r.Height, color.Black), nil
}

func (g *recordingGrabber) GrabWindow(id uint32) (image.Image, error) {
	g.windows = append(g.windows, id)
	return solid(4, 4, color.Black), nil
}

func TestTargetFrames(t *testing.T) {
	layout := display.Static{
		{ID: "0", Bounds: display.Rect{Width: 1920, Height: 1080}, Primary: true},
		{ID: "1", Bounds: display.Rect{X: 1920, Width: 1280, Height: 1024}},
	}
	area := display.Rect{X: 10, Y: 20, Width: 300, Height: 200}

	tests := []struct {
		name       string
		targets    fakeTargets
		wantRegion *display.Rect
		wantWindow uint32
		wantErr    error
	}{
		{name: "nothing selected", targets: fakeTargets{}, wantErr: ErrNoTarget},
		{name: "area", targets: fakeTargets{recording.Target{Area: &area}, true}, wantRegion: &area},
		{name: "screen", targets: fakeTargets{recording.Target{SourceID: "screen:1"}, true}, wantRegion: &layout[1].Bounds},
		{name: "window", targets: fakeTargets{recording.Target{SourceID: "window:42"}, true}, wantWindow: 42},
		{name: "unplugged screen", targets: fakeTargets{recording.Target{SourceID: "screen:7"}, true}, wantErr: capture.ErrSourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &recordingGrabber{}
			f := &TargetFrames{Targets: tt.targets, Displays: layout, Screens: g, Windows: g}

			_, err := f.Frame(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if tt.wantRegion != nil && (len(g.regions) != 1 || g.regions[0] != *tt.wantRegion) {
				t.Fatalf("regions = %v", g.regions)
			}
			if tt.wantWindow != 0 && (len(g.windows) != 1 || g.windows[0] != tt.wantWindow) {
				t.Fatalf("windows = %v", g.windows)
			}
		})
	}
}

func TestServeHTTPStreamsJPEGParts(t *testing.T) {
	frames := func(ctx context.Context) (image.Image, error) {
		return solid(64, 48, color.RGBA{R: 0x80, A: 0xff}), nil
	}
	s := NewStream(frames, WithFPS(50))
	defer s.Close()

	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	var length int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Content-Length:") {
			fmt.Sscanf(line, "Content-Length: %d", &length)
		}
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("frame size = %v", b)
	}

	resp.Body.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
