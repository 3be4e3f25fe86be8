package overlay

import (
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "_"},
		{"/usr/lib/YaST2", "_usr_lib_YaST2"},
		{"/usr/share/autoinstall", "_usr_share_autoinstall"},
		{"/opt/my_app", "_opt_my__app"},
		{"/opt/my__app", "_opt_my____app"},
		{"/a/b.c/d", "_a_b.c_d"},
	}

	for _, tt := range tests {
		if got := Escape(tt.path); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"_", "/"},
		{"_usr_lib_YaST2", "/usr/lib/YaST2"},
		{"_opt_my__app", "/opt/my_app"},
		{"_opt_my____app", "/opt/my__app"},
		{"_a_b.c_d", "/a/b.c/d"},
	}

	for _, tt := range tests {
		if got := Unescape(tt.name); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEscapeProducesFlatSegment(t *testing.T) {
	paths := []string{"/", "/usr/lib/YaST2", "/opt/my_app/data", "/a/_b"}
	for _, path := range paths {
		if name := Escape(path); strings.Contains(name, "/") {
			t.Errorf("Escape(%q) = %q contains a path separator", path, name)
		}
	}
}

// TestEscapeRoundTrip checks the round-trip property over generated
// absolute paths. Underscores directly adjacent to a separator are
// ambiguous after escaping (a documented limitation of the scheme), so the
// generator keeps underscores in segment interiors.
func TestEscapeRoundTrip(t *testing.T) {
	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	t.Logf("seed: %d", seed)

	for i := 0; i < 2000; i++ {
		path := randomPath(rng)
		if got := Unescape(Escape(path)); got != path {
			t.Fatalf("round trip failed: path %q escaped to %q unescaped to %q", path, Escape(path), got)
		}
	}
}

const segmentEdgeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789."
const segmentInnerChars = segmentEdgeChars + "___" // triple weight keeps underscores frequent

func randomPath(rng *rand.Rand) string {
	segments := 1 + rng.Intn(6)

	var b strings.Builder
	for i := 0; i < segments; i++ {
		b.WriteByte('/')
		b.WriteString(randomSegment(rng))
	}
	return b.String()
}

func randomSegment(rng *rand.Rand) string {
	length := 1 + rng.Intn(10)

	var b strings.Builder
	for i := 0; i < length; i++ {
		if i == 0 || i == length-1 {
			b.WriteByte(segmentEdgeChars[rng.Intn(len(segmentEdgeChars))])
		} else {
			b.WriteByte(segmentInnerChars[rng.Intn(len(segmentInnerChars))])
		}
	}
	return b.String()
}
