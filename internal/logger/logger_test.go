package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")

	rot := DefaultRotation(path)
	rot.Compress = false

	l, err := New("debug", rot, false)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	l.Debug("assembled volume")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "assembled volume") {
		t.Errorf("log file does not contain the message: %q", string(data))
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")

	l, err := New("loud", RotationConfig{Path: path}, false)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	l.Debug("hidden")
	l.Info("shown")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("info entry missing")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
