package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabled(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{Debug: false}); err != nil {
		t.Fatalf("Initialize with debug off should not fail: %v", err)
	}
	if IsDebugMode() {
		t.Error("debug mode should be off")
	}
	// Writing through a disabled logger must not create any files.
	Store("this should go nowhere")
	if _, err := os.Stat(filepath.Join(ws, ".thor", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}
}

func TestCategoryFiltering(t *testing.T) {
	ws := t.TempDir()
	defer CloseAll()

	err := Initialize(ws, Options{
		Debug: true,
		Level: "debug",
		Categories: map[string]bool{
			"store":     true,
			"scheduler": false,
		},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store category should be enabled")
	}
	if IsCategoryEnabled(CategoryScheduler) {
		t.Error("scheduler category should be disabled")
	}
	// Unlisted categories default to enabled.
	if !IsCategoryEnabled(CategoryWorker) {
		t.Error("unlisted category should default to enabled")
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	ws := t.TempDir()
	defer CloseAll()

	if err := Initialize(ws, Options{Debug: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Worker("crawled topic %q", "quantum computing")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".thor", "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "worker") {
			data, _ := os.ReadFile(filepath.Join(ws, ".thor", "logs", e.Name()))
			if strings.Contains(string(data), "quantum computing") {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected worker log file with message")
	}
}

func TestLevelGating(t *testing.T) {
	ws := t.TempDir()
	defer CloseAll()

	if err := Initialize(ws, Options{Debug: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryStore)
	l.Debug("debug msg")
	l.Info("info msg")
	l.Warn("warn msg")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(ws, ".thor", "logs"))
	for _, e := range entries {
		data, _ := os.ReadFile(filepath.Join(ws, ".thor", "logs", e.Name()))
		if strings.Contains(string(data), "debug msg") || strings.Contains(string(data), "info msg") {
			t.Error("level gating failed: debug/info written at warn level")
		}
		if !strings.Contains(string(data), "warn msg") {
			t.Error("warn message missing")
		}
	}
}
