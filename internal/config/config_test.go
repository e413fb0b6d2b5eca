package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.PushEvery() != 250*time.Millisecond {
		t.Errorf("PushEvery = %v", cfg.PushEvery())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vodscrub.yaml")
	content := "frame_rate: 5\nwidth: 640\nheight: 360\nheroes_file: ow.yaml\njpeg_quality: 500\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VODSCRUB_LISTEN", ":9999")
	t.Setenv("VODSCRUB_WORKERS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FrameRate != 5 || cfg.Width != 640 || cfg.Height != 360 || cfg.HeroesFile != "ow.yaml" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Listen != ":9999" || cfg.Workers != 3 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.JPEGQuality != DefaultConfig().JPEGQuality {
		t.Errorf("out-of-range quality should fall back, got %d", cfg.JPEGQuality)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("VODSCRUB_WIDTH", "wide")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric width")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in     string
		w, h   int
		hasErr bool
	}{
		{"1280x720", 1280, 720, false},
		{"640X360", 640, 360, false},
		{"1280", 0, 0, true},
		{"axb", 0, 0, true},
		{"0x10", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := ParseSize(tt.in)
			if (err != nil) != tt.hasErr {
				t.Fatalf("err = %v", err)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("got %dx%d", w, h)
			}
		})
	}
}
