package tessera

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"after-spawn", "after-spawn"},
		{"frame.01", "frame.01"},
		{"has spaces", "has_spaces"},
		{"path/to/thing", "path_to_thing"},
		{"back\\slash", "back_slash"},
		{"special!@#$%", "special_____"},
		{"", "unlabeled"},
		{"   ", "unlabeled"},
		{"MixedCase123", "MixedCase123"},
	}
	for _, tt := range tests {
		got := sanitizeLabel(tt.in)
		if got != tt.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScreenshotQueue(t *testing.T) {
	l := NewLoop(newLevel(t, StageConfig{}), NewScriptedInput())
	l.Screenshot("a")
	l.Screenshot("b")
	l.Screenshot("c")
	if len(l.shots) != 3 {
		t.Fatalf("queue len = %d, want 3", len(l.shots))
	}
	if l.shots[0] != "a" || l.shots[1] != "b" || l.shots[2] != "c" {
		t.Errorf("queue = %v, want [a b c]", l.shots)
	}
}

func TestScreenshotEmptyQueueWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	l := NewLoop(newLevel(t, StageConfig{ScreenWidth: 32, ScreenHeight: 32}), NewScriptedInput())
	l.ScreenshotDir = dir
	l.flushScreenshots(nil)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory should not be created without queued shots")
	}
}

func TestWritePNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "out.png")
	if err := writePNG(path, img); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("png not written: %v", err)
	}
	if err := writePNG(filepath.Join(t.TempDir(), "missing", "out.png"), img); err == nil {
		t.Error("expected error for a missing directory")
	}
}
