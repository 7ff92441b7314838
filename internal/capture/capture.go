// Package capture enumerates capturable screens and windows and turns a
// chosen source or region into a live, chunked media stream.
package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
)

var (
	// ErrNoSources means enumeration found nothing to capture.
	ErrNoSources = errors.New("no capture sources available")
	// ErrSourceNotFound means a previously listed source id is gone.
	ErrSourceNotFound = errors.New("capture source not found")
	// ErrAcquire wraps every failure to obtain a stream.
	ErrAcquire = errors.New("capture acquisition failed")
	// ErrNotRecording is returned by stream controls used out of order.
	ErrNotRecording = errors.New("stream is not recording")
)

// DefaultTimeslice is how often buffered media is handed to the recorder.
const DefaultTimeslice = 500 * time.Millisecond

// Kind distinguishes whole screens from single windows
type Kind string

const (
	KindScreen Kind = "screen"
	KindWindow Kind = "window"
)

// Source identifies a capturable screen or window. IDs are only valid for
// the enumeration that produced them.
type Source struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      Kind         `json:"kind"`
	Thumbnail string       `json:"thumbnail,omitempty"`
	DisplayID string       `json:"display_id,omitempty"`
	Bounds    display.Rect `json:"bounds"`
}

// IsScreen reports whether the source is a whole display
func (s Source) IsScreen() bool {
	return s.Kind == KindScreen || strings.HasPrefix(s.ID, string(KindScreen)+":")
}

// Lister enumerates sources. Every call must query live state.
type Lister interface {
	Sources(ctx context.Context) ([]Source, error)
}

// Request describes what to capture
type Request struct {
	Source    Source
	Region    display.Rect
	Audio     bool
	FrameRate int
	Bitrate   int
}

// Track is one media track of a stream
type Track interface {
	Kind() string
	Stop()
	Stopped() bool
}

// Stream is an acquired capture handle. Chunks are delivered to the
// callback passed to Record from a background goroutine, in order.
type Stream interface {
	Tracks() []Track
	Record(timeslice time.Duration, onChunk func([]byte)) error
	Pause() error
	Resume() error
	// RequestData delivers whatever is buffered right now.
	RequestData() error
	// Stop finalizes the container; every chunk has been delivered when it
	// returns.
	Stop(ctx context.Context) error
	// Release stops every track and frees the underlying process. It is
	// safe to call more than once and after a failed Stop.
	Release()
}

// Backend acquires streams
type Backend interface {
	Name() string
	Available() bool
	Acquire(ctx context.Context, req Request) (Stream, error)
}
