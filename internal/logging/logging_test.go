package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Warn entry should be written")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrapedeck.log")
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", File: path, Console: &buf})
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}

	logger.Debug("written to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written to file"`) {
		t.Errorf("Expected JSON entry in file, got %s", data)
	}
}
