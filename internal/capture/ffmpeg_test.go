package capture

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
)

func TestFFmpegArgs(t *testing.T) {
	b := NewFFmpegBackend("")
	b.Display = ":1"

	req := Request{
		Region:    display.Rect{X: -1280, Y: 40, Width: 800, Height: 600},
		FrameRate: 60,
		Bitrate:   8_000_000,
	}

	got := strings.Join(b.args(req), " ")
	for _, want := range []string{
		"-f x11grab",
		"-framerate 60",
		"-video_size 800x600",
		"-i :1+-1280,40",
		"-c:v libvpx",
		"-b:v 8000000",
		"-an",
		"-f webm",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "pulse") {
		t.Errorf("audio input without audio request: %q", got)
	}
	if !strings.HasSuffix(got, "pipe:1") {
		t.Errorf("output must go to stdout: %q", got)
	}
}

func TestFFmpegArgsWithAudio(t *testing.T) {
	b := NewFFmpegBackend("ffmpeg")
	b.AudioSource = "monitor"

	got := strings.Join(b.args(Request{
		Region: display.Rect{Width: 100, Height: 100},
		Audio:  true,
	}), " ")

	for _, want := range []string{"-f pulse -i monitor", "-c:a libopus", "-framerate 30", "-b:v 5000000"} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "-an") {
		t.Errorf("audio disabled in %q", got)
	}
}

func TestFFmpegAcquireRejectsEmptyRegion(t *testing.T) {
	b := NewFFmpegBackend("ffmpeg")
	_, err := b.Acquire(context.Background(), Request{Region: display.Rect{Width: 0, Height: 10}})
	if !errors.Is(err, ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
}

func TestFFmpegAvailableNeedsDisplay(t *testing.T) {
	b := NewFFmpegBackend("ffmpeg")
	b.Display = ""
	if b.Available() {
		t.Fatal("backend available without an X display")
	}
}
