package commands

import (
	"testing"

	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
)

func TestUpdateFor(t *testing.T) {
	u, err := updateFor("frame_rate", "60")
	if err != nil || u.FrameRate == nil || *u.FrameRate != 60 {
		t.Fatalf("frame_rate: %+v, %v", u, err)
	}

	u, err = updateFor("quality", "ultra")
	if err != nil || u.Quality == nil || *u.Quality != config.QualityUltra {
		t.Fatalf("quality: %+v, %v", u, err)
	}

	u, err = updateFor("save_directory", "/tmp/rec")
	if err != nil || u.SaveDirectory == nil || *u.SaveDirectory != "/tmp/rec" {
		t.Fatalf("save_directory: %+v, %v", u, err)
	}

	if _, err := updateFor("frame_rate", "fast"); err == nil {
		t.Fatal("non-numeric frame rate accepted")
	}
	if _, err := updateFor("server_port", "9090"); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestSettingsMapUsesYAMLKeys(t *testing.T) {
	m, err := settingsMap(config.Settings{SaveDirectory: "/v", Quality: config.QualityHigh, FrameRate: 30})
	if err != nil {
		t.Fatal(err)
	}
	if m["save_directory"] != "/v" || m["quality"] != "high" || m["frame_rate"] != 30 {
		t.Fatalf("map = %v", m)
	}
}
