// Package recording drives one capture attempt at a time: acquire a stream,
// collect its chunks, track elapsed time and write the finished file.
package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
)

var (
	// ErrNothingSelected means Start was called before Configure.
	ErrNothingSelected = errors.New("nothing selected")
	// ErrBusy means the command is not allowed in the current state.
	ErrBusy = errors.New("recorder is busy")
	// ErrNotRecording means Stop was called with no active recording.
	ErrNotRecording = errors.New("not recording")
	// ErrNoData means the recording produced no bytes.
	ErrNoData = errors.New("no data recorded")
	// ErrUnsaved means a previous recording failed to save and is still held.
	ErrUnsaved = errors.New("previous recording is not saved")
	// ErrClosed means the session was closed during or before Start.
	ErrClosed = errors.New("session closed")
	// ErrInvalidTarget means a target names neither or both of source and area.
	ErrInvalidTarget = errors.New("target must name exactly one of source or area")
)

// State of a session
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a stream is held in this state
func (s State) Active() bool {
	return s == StateRecording || s == StatePaused
}

// Target is what to record: a listed source or a free-form area.
type Target struct {
	SourceID string        `json:"source_id,omitempty"`
	Area     *display.Rect `json:"area,omitempty"`
}

// Validate checks that exactly one of SourceID and Area is set
func (t Target) Validate() error {
	if (t.SourceID == "") == (t.Area == nil) {
		return ErrInvalidTarget
	}
	if t.Area != nil {
		return t.Area.Validate()
	}
	return nil
}

func (t Target) String() string {
	if t.Area != nil {
		return "area " + t.Area.String()
	}
	return t.SourceID
}

// Status is a point-in-time view of a session
type Status struct {
	State         State   `json:"state"`
	Status        string  `json:"status"`
	ElapsedMS     int64   `json:"elapsed_ms"`
	ElapsedText   string  `json:"elapsed_text"`
	Target        *Target `json:"target,omitempty"`
	LastFile      string  `json:"last_file,omitempty"`
	PendingChunks int     `json:"pending_chunks"`
	AttemptID     string  `json:"attempt_id,omitempty"`
}

// FormatElapsed renders d as MM:SS; minutes keep counting past 99.
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// FileName names a recording finished at t:
// recording-YYYY-MM-DDTHH-MM-SS.webm in UTC.
func FileName(t time.Time) string {
	return "recording-" + t.UTC().Format("2006-01-02T15-04-05") + ".webm"
}
