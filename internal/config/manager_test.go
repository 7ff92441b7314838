package config

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const testPath = "/home/test/.config/screenrecorder/settings.json"

func testDefaults() Settings {
	return Settings{SaveDirectory: "/home/test/Videos", Quality: QualityHigh, FrameRate: 30}
}

func newTestManager(t *testing.T, fs afero.Fs) *Manager {
	t.Helper()
	m, err := NewManager(testPath, WithFs(fs), WithDefaults(testDefaults()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func writeFile(t *testing.T, fs afero.Fs, content string) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(testPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, testPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	if got := m.Get(); got != testDefaults() {
		t.Fatalf("got %+v, want defaults", got)
	}
}

func TestLoadPartialFileMergesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, `{"quality":"ultra"}`)

	got := newTestManager(t, fs).Get()
	want := testDefaults()
	want.Quality = QualityUltra
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLoadIgnoresUnknownAndInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Settings
	}{
		{
			name:    "unknown fields",
			content: `{"frameRate":60,"defaultFormat":"mp4","theme":"dark"}`,
			want:    Settings{SaveDirectory: "/home/test/Videos", Quality: QualityHigh, FrameRate: 60},
		},
		{
			name:    "out of range values",
			content: `{"quality":"low","frameRate":15,"saveDirectory":"/data/rec"}`,
			want:    Settings{SaveDirectory: "/data/rec", Quality: QualityHigh, FrameRate: 30},
		},
		{
			name:    "wrong type keeps other fields",
			content: `{"frameRate":"sixty","quality":"medium"}`,
			want:    Settings{SaveDirectory: "/home/test/Videos", Quality: QualityMedium, FrameRate: 30},
		},
		{
			name:    "corrupt json",
			content: `{"quality":`,
			want:    testDefaults(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, tt.content)
			if got := newTestManager(t, fs).Get(); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSaveWritesWholeRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newTestManager(t, fs)

	fps := 60
	if _, err := m.Save(Update{FrameRate: &fps}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := afero.ReadFile(fs, testPath)
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("settings file is not JSON: %v", err)
	}
	if onDisk["saveDirectory"] != "/home/test/Videos" || onDisk["quality"] != "high" || onDisk["frameRate"] != float64(60) {
		t.Fatalf("unexpected file content: %s", data)
	}

	// No temp files left behind.
	entries, _ := afero.ReadDir(fs, filepath.Dir(testPath))
	if len(entries) != 1 {
		t.Fatalf("expected only settings.json, found %d entries", len(entries))
	}

	// A fresh manager sees the persisted value.
	if got := newTestManager(t, fs).Get().FrameRate; got != 60 {
		t.Fatalf("reloaded frame rate = %d", got)
	}
}

// slowRenameFs delays the first Rename so a later write can overtake it
type slowRenameFs struct {
	afero.Fs
	delay time.Duration
	once  sync.Once
}

func (f *slowRenameFs) Rename(oldname, newname string) error {
	f.once.Do(func() { time.Sleep(f.delay) })
	return f.Fs.Rename(oldname, newname)
}

func TestConcurrentSavesReachDiskInOrder(t *testing.T) {
	fs := &slowRenameFs{Fs: afero.NewMemMapFs(), delay: 100 * time.Millisecond}
	m := newTestManager(t, fs)

	ultra, medium := QualityUltra, QualityMedium
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := m.Save(Update{Quality: &ultra}); err != nil {
			t.Errorf("Save(ultra): %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	if _, err := m.Save(Update{Quality: &medium}); err != nil {
		t.Fatalf("Save(medium): %v", err)
	}
	wg.Wait()

	data, err := afero.ReadFile(fs, testPath)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk Settings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk != m.Get() {
		t.Fatalf("disk %+v diverges from memory %+v", onDisk, m.Get())
	}
}

func TestSaveRejectsInvalidValues(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())

	bad := Quality("extreme")
	fps := 60
	if _, err := m.Save(Update{Quality: &bad, FrameRate: &fps}); !errors.Is(err, ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
	if got := m.Get(); got != testDefaults() {
		t.Fatalf("invalid update mutated settings: %+v", got)
	}
}

func TestSaveReportsWriteFailure(t *testing.T) {
	m := newTestManager(t, afero.NewReadOnlyFs(afero.NewMemMapFs()))

	q := QualityUltra
	got, err := m.Save(Update{Quality: &q})
	if err == nil {
		t.Fatal("expected write error on read-only filesystem")
	}
	if got.Quality != QualityUltra || m.Get().Quality != QualityUltra {
		t.Fatal("in-memory settings should hold the new value after a failed write")
	}
}

func TestSetSaveDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/srv/videos", 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/srv/file.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, fs)

	if _, err := m.SetSaveDirectory("/srv/missing"); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("missing dir: expected ErrInvalidSetting, got %v", err)
	}
	if _, err := m.SetSaveDirectory("/srv/file.txt"); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("file: expected ErrInvalidSetting, got %v", err)
	}
	dir, err := m.SetSaveDirectory("/srv/videos")
	if err != nil {
		t.Fatalf("SetSaveDirectory: %v", err)
	}
	if dir != "/srv/videos" || m.Get().SaveDirectory != "/srv/videos" {
		t.Fatalf("save directory = %q / %q", dir, m.Get().SaveDirectory)
	}
}

func TestQualityBitrate(t *testing.T) {
	tests := map[Quality]int{
		QualityMedium: 2_500_000,
		QualityHigh:   5_000_000,
		QualityUltra:  8_000_000,
		"unknown":     5_000_000,
	}
	for q, want := range tests {
		if got := q.Bitrate(); got != want {
			t.Errorf("%s.Bitrate() = %d, want %d", q, got, want)
		}
	}
}
