package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidSetting is returned when an update carries a value outside the
// allowed set. The stored settings are left untouched.
var ErrInvalidSetting = errors.New("invalid setting")

// Quality selects the target video bitrate
type Quality string

const (
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// Valid reports whether q is one of the known presets
func (q Quality) Valid() bool {
	switch q {
	case QualityMedium, QualityHigh, QualityUltra:
		return true
	}
	return false
}

// Bitrate returns the video bitrate in bits per second. Unknown values get
// the "high" rate.
func (q Quality) Bitrate() int {
	switch q {
	case QualityMedium:
		return 2_500_000
	case QualityUltra:
		return 8_000_000
	default:
		return 5_000_000
	}
}

// ValidFrameRate reports whether fps is one of the supported capture rates.
func ValidFrameRate(fps int) bool {
	return fps == 24 || fps == 30 || fps == 60
}

// Settings is the persisted user record. The JSON field names are the
// on-disk format and must not change.
type Settings struct {
	SaveDirectory string  `json:"saveDirectory" yaml:"save_directory"`
	Quality       Quality `json:"quality" yaml:"quality"`
	FrameRate     int     `json:"frameRate" yaml:"frame_rate"`
}

// Update is a partial change; nil fields are left as they are.
type Update struct {
	SaveDirectory *string  `json:"saveDirectory,omitempty"`
	Quality       *Quality `json:"quality,omitempty"`
	FrameRate     *int     `json:"frameRate,omitempty"`
}

// Empty reports whether the update changes nothing
func (u Update) Empty() bool {
	return u.SaveDirectory == nil && u.Quality == nil && u.FrameRate == nil
}

// apply merges u over s, validating every supplied field first.
func (u Update) apply(s Settings) (Settings, error) {
	if u.SaveDirectory != nil {
		dir := strings.TrimSpace(*u.SaveDirectory)
		if dir == "" {
			return s, fmt.Errorf("%w: save directory must not be empty", ErrInvalidSetting)
		}
		s.SaveDirectory = dir
	}
	if u.Quality != nil {
		if !u.Quality.Valid() {
			return s, fmt.Errorf("%w: quality %q (use medium, high or ultra)", ErrInvalidSetting, *u.Quality)
		}
		s.Quality = *u.Quality
	}
	if u.FrameRate != nil {
		if !ValidFrameRate(*u.FrameRate) {
			return s, fmt.Errorf("%w: frame rate %d (use 24, 30 or 60)", ErrInvalidSetting, *u.FrameRate)
		}
		s.FrameRate = *u.FrameRate
	}
	return s, nil
}

// DefaultSettings returns the settings used for any missing or invalid field.
func DefaultSettings() Settings {
	return Settings{
		SaveDirectory: defaultVideosDir(),
		Quality:       QualityHigh,
		FrameRate:     30,
	}
}

// defaultVideosDir follows the XDG user dirs convention, then $HOME/Videos.
func defaultVideosDir() string {
	if dir := os.Getenv("XDG_VIDEOS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "recordings")
	}
	return filepath.Join(home, "Videos")
}

// DefaultPath is the per-user settings file location
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "screenrecorder", "settings.json"), nil
}
