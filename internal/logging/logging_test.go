package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.log")
	log := New(Options{File: path, MaxSizeMB: 1})
	log.Info("setup started", zap.Int("match_id", 9))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"match_id":9`) {
		t.Fatalf("log line missing field: %s", data)
	}
}

func TestNew_DebugLevel(t *testing.T) {
	if New(Options{}).Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be off by default")
	}
	if !New(Options{Debug: true}).Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be on")
	}
}
