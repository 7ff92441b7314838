package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/spf13/afero"
)

// ErrInvalidFileName is returned for names that would escape the save directory.
var ErrInvalidFileName = errors.New("invalid file name")

// VideoFile describes a recording found in the save directory
type VideoFile struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveVideo writes data as name inside the configured save directory,
// creating the directory tree when needed, and returns the full path.
func (m *Manager) SaveVideo(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}

	dir := m.Get().SaveDirectory
	log := logger.WithComponent("config")

	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to create save directory")
		return "", fmt.Errorf("failed to create save directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := afero.WriteFile(m.fs, path, data, 0644); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to write video")
		return "", fmt.Errorf("failed to write video: %w", err)
	}

	log.Info().Str("path", path).Int("bytes", len(data)).Msg("Video saved")
	return path, nil
}

// Videos lists the .webm files in the save directory, newest first. A
// missing directory is an empty list.
func (m *Manager) Videos() ([]VideoFile, error) {
	dir := m.Get().SaveDirectory

	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []VideoFile{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := make([]VideoFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".webm") {
			continue
		}
		files = append(files, VideoFile{
			Name:      e.Name(),
			Path:      filepath.Join(dir, e.Name()),
			Size:      e.Size(),
			CreatedAt: e.ModTime().UTC(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}
