package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInit_FileLogging(t *testing.T) {
	dir := t.TempDir()

	if err := Init(Options{DebugDir: dir, Stderr: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("proxied request", "target", "svc1")
	Close()

	content, err := os.ReadFile(filepath.Join(dir, time.Now().Format(dayLayout)+".jsonl"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &rec); err != nil {
		t.Fatalf("debug file line is not JSON: %v (%s)", err, content)
	}
	if rec["msg"] != "proxied request" || rec["target"] != "svc1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestInit_StderrLevels(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := stderr.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("debug/info should not reach stderr without verbose: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("warn/error should reach stderr: %s", out)
	}
}

func TestInit_Verbose(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{Verbose: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debug("debug message")
	if !strings.Contains(stderr.String(), "debug message") {
		t.Errorf("debug should reach stderr in verbose mode: %s", stderr.String())
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{JSONFormat: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	With("target", "svc1").Warn("token fetch failed")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &rec); err != nil {
		t.Fatalf("stderr is not JSON: %v (%s)", err, stderr.String())
	}
	if rec["target"] != "svc1" {
		t.Errorf("target attr = %v, want svc1", rec["target"])
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Logger().Debug("captured")
	if !strings.Contains(buf.String(), "captured") {
		t.Errorf("SetOutput did not capture: %q", buf.String())
	}
}
