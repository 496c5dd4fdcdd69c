package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORAGE_BACKEND", "MAX_STARTUP_ROOMS", "SWEEP_INTERVAL"} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.Port != "3001" {
		t.Errorf("Port = %q, want 3001", cfg.Port)
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("StorageBackend = %q, want memory", cfg.StorageBackend)
	}
	if cfg.MaxStartupRooms != 100 {
		t.Errorf("MaxStartupRooms = %d, want 100", cfg.MaxStartupRooms)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Errorf("SweepInterval = %v, want 15m", cfg.SweepInterval)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_STARTUP_ROOMS", "5")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.MaxStartupRooms != 5 {
		t.Errorf("MaxStartupRooms = %d", cfg.MaxStartupRooms)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_STARTUP_ROOMS", "lots")
	t.Setenv("SWEEP_INTERVAL", "soon")

	cfg := Load()
	if cfg.MaxStartupRooms != 100 {
		t.Errorf("Invalid int should fall back to default, got %d", cfg.MaxStartupRooms)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Errorf("Invalid duration should fall back to default, got %v", cfg.SweepInterval)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `restrictedToEmailDomains:
  - " a.com "
  - b.com
guideEmails:
  - guide@a.com
membershipRulesDisallowedResponse: "not allowed: {{email}}"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if len(cfg.RestrictedDomains) != 2 || cfg.RestrictedDomains[0] != "a.com" {
		t.Errorf("Domains should be trimmed, got %v", cfg.RestrictedDomains)
	}
	if len(cfg.Guides) != 1 || cfg.Guides[0] != "guide@a.com" {
		t.Errorf("Guides = %v", cfg.Guides)
	}
	if cfg.DisallowedNotice != "not allowed: {{email}}" {
		t.Errorf("DisallowedNotice = %q", cfg.DisallowedNotice)
	}
	if !cfg.Enabled() {
		t.Error("Config with rules should report enabled")
	}
}

func TestLoadRules_EmptyPath(t *testing.T) {
	cfg, err := LoadRules("")
	if err != nil {
		t.Fatalf("Empty path should not error: %v", err)
	}
	if cfg.Enabled() {
		t.Error("Zero config should permit everything")
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	if _, err := LoadRules("/does/not/exist.yaml"); err == nil {
		t.Error("Missing file should error")
	}
}
