package logger

import (
	"path/filepath"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := New()
	entry := log.WithComponent("stream")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "stream" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := New()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := New()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureEnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	log := New()
	if err := log.Configure("info", "text", "stderr", 0); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if log.GetLevel().String() != "debug" {
		t.Fatalf("level = %s, want debug", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "scalper.log")
	log := New()
	if err := log.Configure("info", "json", path, 0); err != nil {
		t.Fatalf("configure with file output failed: %v", err)
	}
	log.WithComponent("test").Info("hello")
}

func TestEntryChaining(t *testing.T) {
	log := New()
	entry := log.WithComponent("risk").WithFields(Fields{"side": "CALL"})
	if entry.Entry.Data["component"] != "risk" {
		t.Fatalf("component lost in chain: %v", entry.Entry.Data)
	}
	if entry.Entry.Data["side"] != "CALL" {
		t.Fatalf("field lost in chain: %v", entry.Entry.Data)
	}
}
