package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/bryanchriswhite/ScreenRecorder/internal/window"
)

// WindowLister lists top-level application windows
type WindowLister interface {
	ListWindows() ([]window.Info, error)
}

// Enumerator lists screens and windows with thumbnails. Nothing is cached:
// ids from one call may be stale by the next.
type Enumerator struct {
	Displays display.Provider
	// Windows may be nil, in which case only screens are listed.
	Windows WindowLister
	// Screens and WindowShots may be nil, in which case thumbnails are omitted.
	Screens     RegionGrabber
	WindowShots WindowGrabber
}

// Sources returns every capturable screen followed by every window.
func (e *Enumerator) Sources(ctx context.Context) ([]Source, error) {
	log := logger.WithComponent("sources")

	displays, dispErr := e.Displays.Displays()
	if dispErr != nil {
		log.Warn().Err(dispErr).Str("provider", e.Displays.Name()).Msg("Failed to enumerate displays")
	}

	sources := make([]Source, 0, len(displays))
	for i, d := range displays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := "Screen " + strconv.Itoa(i+1)
		if len(displays) == 1 {
			name = "Entire Screen"
		}
		if d.Name != "" {
			name += " (" + d.Name + ")"
		}
		src := Source{
			ID:        ScreenID(d.ID),
			Name:      name,
			Kind:      KindScreen,
			DisplayID: d.ID,
			Bounds:    d.Bounds,
		}
		if e.Screens != nil {
			src.Thumbnail = e.thumbnail(func() (string, error) {
				img, err := e.Screens.GrabRegion(d.Bounds)
				if err != nil {
					return "", err
				}
				return Thumbnail(img, ThumbnailWidth, ThumbnailHeight)
			})
		}
		sources = append(sources, src)
	}

	if e.Windows == nil {
		if dispErr != nil {
			return nil, dispErr
		}
		return sources, nil
	}

	windows, winErr := e.Windows.ListWindows()
	if winErr != nil {
		log.Warn().Err(winErr).Msg("Failed to enumerate windows")
		if dispErr != nil {
			return nil, fmt.Errorf("failed to enumerate sources: %w", dispErr)
		}
	}

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.Geometry.Empty() {
			continue
		}
		name := w.Title
		if name == "" {
			name = w.Class
		}
		src := Source{
			ID:     WindowID(w.ID),
			Name:   name,
			Kind:   KindWindow,
			Bounds: w.Geometry,
		}
		if d, ok := containing(displays, w.Geometry); ok {
			src.DisplayID = d.ID
		}
		if e.WindowShots != nil {
			id := w.ID
			src.Thumbnail = e.thumbnail(func() (string, error) {
				img, err := e.WindowShots.GrabWindow(id)
				if err != nil {
					return "", err
				}
				return Thumbnail(img, ThumbnailWidth, ThumbnailHeight)
			})
		}
		sources = append(sources, src)
	}

	log.Debug().Int("count", len(sources)).Msg("Enumerated sources")
	return sources, nil
}

// thumbnail runs grab and logs failures; a missing thumbnail never fails
// enumeration.
func (e *Enumerator) thumbnail(grab func() (string, error)) string {
	thumb, err := grab()
	if err != nil {
		logger.WithComponent("sources").Debug().Err(err).Msg("Thumbnail unavailable")
		return ""
	}
	return thumb
}

// containing returns the display holding the centre of r
func containing(displays []display.Display, r display.Rect) (display.Display, bool) {
	cx, cy := r.X+r.Width/2, r.Y+r.Height/2
	for _, d := range displays {
		b := d.Bounds
		if cx >= b.X && cx < b.Right() && cy >= b.Y && cy < b.Bottom() {
			return d, true
		}
	}
	return display.Display{}, false
}

// ScreenID builds the source id of a display
func ScreenID(displayID string) string {
	return string(KindScreen) + ":" + displayID
}

// WindowID builds the source id of an X11 window
func WindowID(id uint32) string {
	return string(KindWindow) + ":" + strconv.FormatUint(uint64(id), 10)
}

// ParseWindowID extracts the X11 window id from a window source id
func ParseWindowID(sourceID string) (uint32, bool) {
	rest, ok := strings.CutPrefix(sourceID, string(KindWindow)+":")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// Find returns the source with the given id
func Find(sources []Source, id string) (Source, bool) {
	for _, s := range sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// PreferScreen returns the first screen source, or the first source at all.
func PreferScreen(sources []Source) (Source, bool) {
	for _, s := range sources {
		if s.IsScreen() {
			return s, true
		}
	}
	if len(sources) > 0 {
		return sources[0], true
	}
	return Source{}, false
}
