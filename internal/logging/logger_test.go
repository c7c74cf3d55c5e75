package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := NewLogger("worker", dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	// Directory should exist
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	log.Info("test_message_from_logging_test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(dir, "worker.log")); err != nil {
		t.Logf("log file not flushed yet (ok; lumberjack opens lazily): %v", err)
	}
}

func TestNewLogger_StderrOnly(t *testing.T) {
	log, err := NewLogger("producer", "", "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Debug("suppressed_at_info")
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger("api", "", "loud"); err == nil {
		t.Fatalf("want error for unknown level")
	}
}
