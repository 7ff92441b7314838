// Package shell hands files to the desktop: reveal in the file manager or
// open with the default application.
package shell

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/godbus/dbus/v5"
)

// ErrNotFound is returned for paths that do not exist.
var ErrNotFound = errors.New("file not found")

const (
	fileManagerService = "org.freedesktop.FileManager1"
	fileManagerPath    = "/org/freedesktop/FileManager1"
	showItemsMethod    = fileManagerService + ".ShowItems"
)

// Revealer asks a file manager to show and select a file
type Revealer interface {
	ShowItems(ctx context.Context, uris []string) error
}

// Launcher starts a detached helper command
type Launcher interface {
	Start(name string, args ...string) error
}

// Opener reveals and opens files
type Opener struct {
	Revealer Revealer
	Launcher Launcher
	// XDGOpen is the opener binary; xdg-open by default
	XDGOpen string
	Stat    func(string) (os.FileInfo, error)
}

// NewOpener returns an opener that reveals through the session bus file
// manager and falls back to xdg-open.
func NewOpener() *Opener {
	return &Opener{
		Revealer: &DBusFileManager{Timeout: 5 * time.Second},
		Launcher: ExecLauncher{},
		XDGOpen:  "xdg-open",
		Stat:     os.Stat,
	}
}

func (o *Opener) check(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := o.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	return abs, nil
}

// Reveal shows path selected in the file manager. Without a FileManager1
// service the containing directory is opened instead.
func (o *Opener) Reveal(ctx context.Context, path string) error {
	log := logger.WithComponent("shell")

	abs, err := o.check(path)
	if err != nil {
		return err
	}

	if o.Revealer != nil {
		err := o.Revealer.ShowItems(ctx, []string{FileURI(abs)})
		if err == nil {
			log.Debug().Str("path", abs).Msg("Revealed in file manager")
			return nil
		}
		log.Debug().Err(err).Msg("FileManager1 unavailable, opening directory")
	}

	return o.launch(filepath.Dir(abs))
}

// Open opens path with the default application
func (o *Opener) Open(ctx context.Context, path string) error {
	abs, err := o.check(path)
	if err != nil {
		return err
	}
	return o.launch(abs)
}

func (o *Opener) launch(target string) error {
	if err := o.Launcher.Start(o.XDGOpen, target); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	logger.WithComponent("shell").Debug().Str("target", target).Msg("Opened with xdg-open")
	return nil
}

// FileURI converts an absolute path to a file:// URI
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}

// DBusFileManager calls org.freedesktop.FileManager1 on the session bus
type DBusFileManager struct {
	Timeout time.Duration
}

// ShowItems asks the file manager to show uris
func (d *DBusFileManager) ShowItems(ctx context.Context, uris []string) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	obj := conn.Object(fileManagerService, fileManagerPath)
	if err := obj.CallWithContext(ctx, showItemsMethod, 0, uris, "").Err; err != nil {
		return fmt.Errorf("ShowItems failed: %w", err)
	}
	return nil
}

// ExecLauncher starts commands without waiting for them
type ExecLauncher struct{}

// Start runs name detached and reaps it in the background
func (ExecLauncher) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
