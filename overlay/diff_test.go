package overlay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeOverlayFixture populates the upper and mirror trees for an overlay
// as if a live overlay had received the given changes.
func writeOverlayFixture(t *testing.T, ov *Overlay, upper, mirror map[string]string) {
	t.Helper()

	write := func(base string, files map[string]string) {
		for rel, content := range files {
			path := filepath.Join(base, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				t.Fatalf("Failed to create directory: %v", err)
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("Failed to write file: %v", err)
			}
		}
	}

	write(ov.UpperDir(), upper)
	write(ov.MirrorDir(), mirror)
}

func TestDiffModifiedFile(t *testing.T) {
	manager, _ := newTestManager(t.TempDir())
	target := t.TempDir()

	ov, err := New(manager.prefix, target)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	writeOverlayFixture(t, ov,
		map[string]string{"conf/settings.yml": "timeout: 60\nretries: 5\n"},
		map[string]string{"conf/settings.yml": "timeout: 30\nretries: 5\n"},
	)

	var out strings.Builder
	if err := manager.Diff(ov, &out); err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	diff := out.String()
	systemPath := filepath.Join(ov.ResolvedPath, "conf/settings.yml")

	if !strings.Contains(diff, "--- a"+systemPath) {
		t.Errorf("Diff is missing the original file header:\n%s", diff)
	}
	if !strings.Contains(diff, "+++ b"+systemPath) {
		t.Errorf("Diff is missing the changed file header:\n%s", diff)
	}
	if !strings.Contains(diff, "-timeout: 30") {
		t.Errorf("Diff is missing the removed line:\n%s", diff)
	}
	if !strings.Contains(diff, "+timeout: 60") {
		t.Errorf("Diff is missing the added line:\n%s", diff)
	}
}

func TestDiffNewFile(t *testing.T) {
	manager, _ := newTestManager(t.TempDir())
	target := t.TempDir()

	ov, err := New(manager.prefix, target)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	writeOverlayFixture(t, ov,
		map[string]string{"added.txt": "fresh content\n"},
		nil,
	)

	var out strings.Builder
	if err := manager.Diff(ov, &out); err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	want := "New file: " + filepath.Join(ov.ResolvedPath, "added.txt")
	if !strings.Contains(out.String(), want) {
		t.Errorf("Diff output %q is missing %q", out.String(), want)
	}
}
