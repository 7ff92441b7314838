package display

import (
	"strconv"

	"github.com/kbinani/screenshot"
)

// ScreenshotProvider uses the kbinani/screenshot display enumeration. It is
// the fallback when RandR is unavailable (nested servers, Xvfb without RandR).
type ScreenshotProvider struct{}

// Name returns the provider name
func (ScreenshotProvider) Name() string {
	return "screenshot"
}

// Displays returns the active displays; index 0 is reported as primary.
func (ScreenshotProvider) Displays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoDisplays
	}

	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		displays = append(displays, Display{
			ID:      strconv.Itoa(i),
			Name:    "Screen " + strconv.Itoa(i+1),
			Bounds:  Rect{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()},
			Primary: i == 0,
		})
	}
	return displays, nil
}

// Static is a fixed layout, used for headless runs and tests.
type Static []Display

// Name returns the provider name
func (Static) Name() string { return "static" }

// Displays returns a copy of the layout.
func (s Static) Displays() ([]Display, error) {
	if len(s) == 0 {
		return nil, ErrNoDisplays
	}
	out := make([]Display, len(s))
	copy(out, s)
	return out, nil
}

// Detect returns the best available provider: RandR first, then
// kbinani/screenshot.
func Detect() Provider {
	if p, err := NewRandRProvider(); err == nil {
		return p
	}
	return ScreenshotProvider{}
}
