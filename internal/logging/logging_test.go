package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("gateway")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("connected", "endpoint", "ws://127.0.0.1:47615/ipc")

	out := buf.String()
	if !strings.Contains(out, "msg=connected") {
		t.Fatalf("expected plain connected message, got: %s", out)
	}
	if !strings.Contains(out, "component=gateway") {
		t.Fatalf("expected component field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("update")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestRotatingWriterRotatesAtMaxSize(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "agent.log")

	rw, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer rw.Close()

	// Force written past the 1MB threshold, then write again.
	rw.written = 1024*1024 - 1
	if _, err := rw.Write([]byte("overflow line\n")); err != nil {
		t.Fatalf("write after rotation: %v", err)
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Fatalf("expected rotated backup: %v", err)
	}
}

func TestInfoAndClear(t *testing.T) {
	tmpDir := t.TempDir()
	base := "agent.log"

	os.WriteFile(filepath.Join(tmpDir, base), []byte("active"), 0600)
	os.WriteFile(filepath.Join(tmpDir, base+".1"), []byte("backup one"), 0600)
	os.WriteFile(filepath.Join(tmpDir, "unrelated.txt"), []byte("skip"), 0600)

	info, err := Info(tmpDir, base)
	if err != nil {
		t.Fatal(err)
	}
	if info.FileCount != 2 {
		t.Fatalf("expected 2 log files, got %d", info.FileCount)
	}
	if info.TotalBytes != int64(len("active")+len("backup one")) {
		t.Fatalf("wrong total size: %d", info.TotalBytes)
	}

	if err := Clear(tmpDir, base); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, base+".1")); !os.IsNotExist(err) {
		t.Fatal("rotated backup should be removed")
	}
	data, err := os.ReadFile(filepath.Join(tmpDir, base))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("active log should be truncated, got %d bytes", len(data))
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "unrelated.txt")); err != nil {
		t.Fatal("unrelated files must be untouched")
	}
}
