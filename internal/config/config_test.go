package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	defaults := Default()
	if cfg.StoragePrefix != defaults.StoragePrefix {
		t.Errorf("StoragePrefix = %q, want %q", cfg.StoragePrefix, defaults.StoragePrefix)
	}
	if len(cfg.DefaultDirs) == 0 {
		t.Error("DefaultDirs is empty")
	}
	if len(cfg.IgnorePatterns) == 0 {
		t.Error("IgnorePatterns is empty")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `storage_prefix: /srv/overlays
ignore_patterns:
  - "*.tmp"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StoragePrefix != "/srv/overlays" {
		t.Errorf("StoragePrefix = %q, want /srv/overlays", cfg.StoragePrefix)
	}
	if len(cfg.IgnorePatterns) != 1 || cfg.IgnorePatterns[0] != "*.tmp" {
		t.Errorf("IgnorePatterns = %v, want [*.tmp]", cfg.IgnorePatterns)
	}
	// Keys absent from the file keep their defaults.
	if len(cfg.DefaultDirs) != len(Default().DefaultDirs) {
		t.Errorf("DefaultDirs = %v, want defaults", cfg.DefaultDirs)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage_prefix: [broken"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
