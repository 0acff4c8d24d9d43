package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err := New(level, false)
		if err != nil {
			t.Fatalf("New(%q): %v", level, err)
		}
		if !l.Core().Enabled(mustLevel(t, level)) {
			t.Errorf("level %s not enabled", level)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("chatty", true); err == nil {
		t.Error("expected error for unknown level")
	}
	if l := Must("chatty", false); l == nil {
		t.Error("Must returned nil")
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flip.log")
	l, err := NewFile("info", path)
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("hidden")
	l.Info("play settled")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "play settled") || strings.Contains(string(data), "hidden") {
		t.Errorf("unexpected log file contents: %s", data)
	}
}

func mustLevel(t *testing.T, s string) zapcore.Level {
	t.Helper()
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		t.Fatal(err)
	}
	return lvl
}
