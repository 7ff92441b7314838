package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/spf13/afero"
)

// Manager owns the settings record. It is created once per process and
// passed to every component that needs it.
type Manager struct {
	fs       afero.Fs
	path     string
	defaults Settings
	settings Settings
	mu       sync.RWMutex
	// writeMu orders disk writes the same as in-memory updates
	writeMu sync.Mutex
}

// Option customises a Manager
type Option func(*Manager)

// WithFs replaces the OS filesystem, mainly for tests
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithDefaults replaces DefaultSettings()
func WithDefaults(s Settings) Option {
	return func(m *Manager) { m.defaults = s }
}

// NewManager creates a settings manager for the file at path (DefaultPath()
// when empty) and loads it.
func NewManager(path string, opts ...Option) (*Manager, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{
		fs:       afero.NewOsFs(),
		path:     path,
		defaults: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.Load()

	logger.WithComponent("config").Info().
		Str("path", m.path).
		Str("save_directory", m.settings.SaveDirectory).
		Str("quality", string(m.settings.Quality)).
		Int("frame_rate", m.settings.FrameRate).
		Msg("Settings loaded")

	return m, nil
}

// Load reads the settings file and merges it over the defaults. It never
// fails: a missing or unreadable file yields the defaults, unknown fields are
// ignored and out-of-range values fall back to their default.
func (m *Manager) Load() {
	log := logger.WithComponent("config")
	s := m.defaults

	data, err := afero.ReadFile(m.fs, m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", m.path).Msg("Settings file not found, using defaults")
	case err != nil:
		log.Warn().Err(err).Str("path", m.path).Msg("Failed to read settings, using defaults")
	default:
		s = m.decode(data)
	}

	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

// decode unmarshals data on top of the defaults. encoding/json keeps going
// after a field type mismatch, so a wrong-typed field only loses that field.
func (m *Manager) decode(data []byte) Settings {
	log := logger.WithComponent("config")

	s := m.defaults
	if err := json.Unmarshal(data, &s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			log.Warn().Err(err).Str("path", m.path).Msg("Failed to parse settings, using defaults")
			return m.defaults
		}
		log.Warn().Err(err).Str("field", typeErr.Field).Msg("Ignoring settings field with wrong type")
	}

	if s.SaveDirectory == "" {
		s.SaveDirectory = m.defaults.SaveDirectory
	}
	if !s.Quality.Valid() {
		log.Warn().Str("quality", string(s.Quality)).Msg("Unknown quality in settings, using default")
		s.Quality = m.defaults.Quality
	}
	if !ValidFrameRate(s.FrameRate) {
		log.Warn().Int("frame_rate", s.FrameRate).Msg("Unsupported frame rate in settings, using default")
		s.FrameRate = m.defaults.FrameRate
	}
	return s
}

// Get returns a snapshot of the current settings
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Save merges u into the settings and writes the whole record to disk. An
// invalid update is rejected without changing anything. A write failure is
// returned; the in-memory record keeps the new values.
func (m *Manager) Save(u Update) (Settings, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	next, err := u.apply(m.settings)
	if err != nil {
		m.mu.Unlock()
		return m.Get(), err
	}
	m.settings = next
	m.mu.Unlock()

	if err := m.write(next); err != nil {
		return next, err
	}
	return next, nil
}

// SetSaveDirectory points recordings at dir, which must already exist.
func (m *Manager) SetSaveDirectory(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}

	info, err := m.fs.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: save directory %s: %v", ErrInvalidSetting, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidSetting, abs)
	}

	if _, err := m.Save(Update{SaveDirectory: &abs}); err != nil {
		return abs, err
	}
	return abs, nil
}

// write replaces the settings file atomically: a temp file in the same
// directory is written, synced and renamed over the target.
func (m *Manager) write(s Settings) error {
	log := logger.WithComponent("config")

	dir := filepath.Dir(m.path)
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("config_dir", dir).Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmp, err := afero.TempFile(m.fs, dir, ".settings-*.json")
	if err != nil {
		log.Error().Err(err).Str("config_dir", dir).Msg("Failed to create temp settings file")
		return fmt.Errorf("failed to write settings: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(append(data, '\n'))
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = m.fs.Rename(tmpName, m.path)
	}
	if err != nil {
		_ = m.fs.Remove(tmpName)
		log.Error().Err(err).Str("path", m.path).Msg("Failed to write settings")
		return fmt.Errorf("failed to write settings: %w", err)
	}

	log.Debug().Str("path", m.path).Msg("Settings saved")
	return nil
}

// Path returns the settings file path
func (m *Manager) Path() string {
	return m.path
}

// Fs returns the filesystem the manager writes through
func (m *Manager) Fs() afero.Fs {
	return m.fs
}
