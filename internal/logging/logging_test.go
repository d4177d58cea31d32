package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if filepath.Base(cfg.FilePath) != "trenton.log" {
		t.Errorf("expected trenton.log, got: %s", cfg.FilePath)
	}
	if !strings.Contains(cfg.FilePath, ".trenton") {
		t.Errorf("expected path under .trenton, got: %s", cfg.FilePath)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trenton.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("indexed", slog.String("path", "/music/a.mp3"))
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if rec["msg"] != "indexed" || rec["path"] != "/music/a.mp3" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestSetup_RespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trenton.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn record missing")
	}
}

func TestSetup_NoOutputs(t *testing.T) {
	if _, _, err := Setup(Config{}); err == nil {
		t.Error("expected error with no outputs")
	}
}

func TestTeeHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := teeHandler{
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}
	slog.New(h).With(slog.String("job_id", "j1")).Info("job completed")

	if !strings.Contains(a.String(), "job_id=j1") {
		t.Errorf("text handler missing attr: %s", a.String())
	}
	if !strings.Contains(b.String(), `"job_id":"j1"`) {
		t.Errorf("json handler missing attr: %s", b.String())
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trenton.log")

	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 4; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for _, name := range []string{"trenton.log", "trenton.log.1", "trenton.log.2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "trenton.log.3")); !os.IsNotExist(err) {
		t.Errorf("trenton.log.3 should not exist")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), 1, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	_ = w.Close()

	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}
