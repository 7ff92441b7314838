package preview

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
)

// ErrNoTarget means no recording target is configured
var ErrNoTarget = errors.New("nothing selected")

// Targeter reports the configured recording target
type Targeter interface {
	Target() (recording.Target, bool)
}

// TargetFrames grabs the picture of the session's current target. Screens
// are resolved against the live display layout, not the source list.
type TargetFrames struct {
	Targets  Targeter
	Displays display.Provider
	Screens  capture.RegionGrabber
	// Windows may be nil, in which case window targets have no preview.
	Windows capture.WindowGrabber
}

// Frame implements FrameFunc
func (f *TargetFrames) Frame(ctx context.Context) (image.Image, error) {
	target, ok := f.Targets.Target()
	if !ok {
		return nil, ErrNoTarget
	}

	if target.Area != nil {
		return f.Screens.GrabRegion(*target.Area)
	}

	if id, ok := capture.ParseWindowID(target.SourceID); ok {
		if f.Windows == nil {
			return nil, fmt.Errorf("no window grabber for %s", target.SourceID)
		}
		return f.Windows.GrabWindow(id)
	}

	displays, err := f.Displays.Displays()
	if err != nil {
		return nil, fmt.Errorf("failed to read displays: %w", err)
	}
	for _, d := range displays {
		if capture.ScreenID(d.ID) == target.SourceID {
			return f.Screens.GrabRegion(d.Bounds)
		}
	}
	return nil, fmt.Errorf("%w: %s", capture.ErrSourceNotFound, target.SourceID)
}
