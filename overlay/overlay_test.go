package overlay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewResolvesSymlinks(t *testing.T) {
	tempDir := t.TempDir()

	target := filepath.Join(tempDir, "target")
	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatalf("Failed to create target: %v", err)
	}

	link := filepath.Join(tempDir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	ov, err := New("/prefix", link)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if ov.RequestedPath != link {
		t.Errorf("RequestedPath = %q, want %q", ov.RequestedPath, link)
	}

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	if ov.ResolvedPath != resolved {
		t.Errorf("ResolvedPath = %q, want %q", ov.ResolvedPath, resolved)
	}
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	if _, err := New("/prefix", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestNewFailsForRegularFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	if _, err := New("/prefix", file); err == nil {
		t.Error("Expected error for regular file")
	}
}

func TestStoragePathsAreDeterministic(t *testing.T) {
	dir := t.TempDir()

	first, err := New("/var/lib/test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	second, err := New("/var/lib/test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if first.UpperDir() != second.UpperDir() ||
		first.WorkDir() != second.WorkDir() ||
		first.MirrorDir() != second.MirrorDir() {
		t.Error("Storage paths differ between constructions of the same directory")
	}

	escaped := Escape(first.ResolvedPath)
	want := filepath.Join("/var/lib/test", "upper", escaped)
	if first.UpperDir() != want {
		t.Errorf("UpperDir = %q, want %q", first.UpperDir(), want)
	}
	want = filepath.Join("/var/lib/test", "workdir", escaped)
	if first.WorkDir() != want {
		t.Errorf("WorkDir = %q, want %q", first.WorkDir(), want)
	}
	want = filepath.Join("/var/lib/test", "original", escaped)
	if first.MirrorDir() != want {
		t.Errorf("MirrorDir = %q, want %q", first.MirrorDir(), want)
	}
}
