// Package clip trims saved recordings with ffmpeg and probes their length
// with ffprobe.
package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

var (
	// ErrInvalidTimestamp is returned for timestamps that are not
	// SS, M:SS, MM:SS or H:MM:SS.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidRange means the end of a clip is not after its start.
	ErrInvalidRange = errors.New("end time must be after start time")
	// ErrNoInput means the request names no input file.
	ErrNoInput = errors.New("input path is required")
)

// ExitError reports a tool that ran and exited non-zero
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Runner runs a command to completion and returns its stdout. A command
// that exits non-zero yields an *ExitError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run runs name with args
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), &ExitError{
			Name:   filepath.Base(name),
			Code:   exitErr.ExitCode(),
			Stderr: lastLine(stderr.String()),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Request trims InputPath to the span between two timestamps
type Request struct {
	InputPath string `json:"input_path"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Clipper runs the trim and probe tools
type Clipper struct {
	FFmpeg  string
	FFprobe string
	Runner  Runner
}

// NewClipper returns a clipper using the given binaries, defaulting to
// ffmpeg and ffprobe from $PATH.
func NewClipper(ffmpeg, ffprobe string) *Clipper {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Clipper{FFmpeg: ffmpeg, FFprobe: ffprobe, Runner: ExecRunner{}}
}

// OutputPath returns <base>_clip<ext> beside input
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_clip" + ext
}

// Args builds the stream-copy trim arguments
func Args(input, output string, start, duration float64) []string {
	return []string{
		"-i", input,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-y", output,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Clip validates req and writes the trimmed copy, returning its path.
// Nothing is run when the request is invalid.
func (c *Clipper) Clip(ctx context.Context, req Request) (string, error) {
	log := logger.WithComponent("clip")

	if req.InputPath == "" {
		return "", ErrNoInput
	}
	start, err := ParseTimestamp(req.StartTime)
	if err != nil {
		return "", fmt.Errorf("start time: %w", err)
	}
	end, err := ParseTimestamp(req.EndTime)
	if err != nil {
		return "", fmt.Errorf("end time: %w", err)
	}
	if end <= start {
		return "", fmt.Errorf("%w: %s to %s", ErrInvalidRange, req.StartTime, req.EndTime)
	}

	output := OutputPath(req.InputPath)
	args := Args(req.InputPath, output, start, end-start)

	log.Info().
		Str("input", req.InputPath).
		Str("output", output).
		Float64("start", start).
		Float64("duration", end-start).
		Msg("Clipping video")

	if _, err := c.Runner.Run(ctx, c.FFmpeg, args...); err != nil {
		log.Error().Err(err).Str("input", req.InputPath).Msg("Clip failed")
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return "", err
		}
		return "", fmt.Errorf("failed to clip %s: %w", req.InputPath, err)
	}
	return output, nil
}

// DurationArgs builds the ffprobe arguments that print the container
// duration as a bare number.
func DurationArgs(path string) []string {
	return []string{"-v", "error", "-show_entries", "format=duration", "-of", "csv=p=0", path}
}

// Duration returns the length of the video at path in seconds, or 0 when
// it cannot be determined. Callers must treat 0 as unknown.
func (c *Clipper) Duration(ctx context.Context, path string) float64 {
	out, err := c.Runner.Run(ctx, c.FFprobe, DurationArgs(path)...)
	if err != nil {
		logger.WithComponent("clip").Debug().Err(err).Str("path", path).Msg("Duration probe failed")
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
