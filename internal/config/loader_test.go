package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestNewLoader_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	writeConfigFile(t, path, "version: v1\nsafeguards:\n  confidence_floor: 7\n")
	if _, err := NewLoader(path); err == nil {
		t.Fatal("invalid config must fail the initial load")
	}
}

func TestReload_InvalidFileKeepsOldConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	writeConfigFile(t, path, "version: v1\nsafeguards:\n  confidence_floor: 0.7\n")

	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	changes := 0
	l.OnChange(func(*Config) { changes++ })

	writeConfigFile(t, path, "version: v1\nsafeguards:\n  confidence_floor: 7\n")
	if _, err := l.Reload(); err == nil {
		t.Fatal("invalid reload must return an error")
	}
	if got := l.Config().Safeguards.ConfidenceFloor; got != 0.7 {
		t.Errorf("served floor = %v, want the pre-reload 0.7", got)
	}
	if changes != 0 {
		t.Errorf("invalid reload fired %d change callbacks", changes)
	}
}

func TestReload_ValidFileSwaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	writeConfigFile(t, path, "version: v1\nsafeguards:\n  confidence_floor: 0.7\n")

	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}

	writeConfigFile(t, path, "version: v1\nsafeguards:\n  confidence_floor: 0.8\n")
	cfg, err := l.Reload()
	if err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if cfg.Safeguards.ConfidenceFloor != 0.8 || l.Config().Safeguards.ConfidenceFloor != 0.8 {
		t.Errorf("reloaded floor = %v / %v, want 0.8", cfg.Safeguards.ConfidenceFloor, l.Config().Safeguards.ConfidenceFloor)
	}
}
