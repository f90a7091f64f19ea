package semver

import "testing"

func TestIsNewer(t *testing.T) {
	cases := []struct {
		latest, current string
		want            bool
	}{
		{"1.1.0", "1.0.0", true},
		{"2.0.0", "1.9.9", true},
		{"0.2.0", "0.1.0", true},
		{"0.1.1", "0.1.0", true},
		{"1.0.0", "1.0.0", false},
		{"0.9.0", "1.0.0", false},
		{"0.1.0", "0.2.0", false},
		{"0.0.0", "0.0.0", false},
		{"0.0.1", "0.0.0", true},
		{"10.0.0", "9.9.9", true},
	}
	for _, tt := range cases {
		if got := IsNewer(tt.latest, tt.current); got != tt.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}

func TestIsNewer_MalformedVersionsAreNotNewer(t *testing.T) {
	if IsNewer("not-a-version", "1.0.0") {
		t.Error("expected malformed latest version to report not-newer")
	}
	if IsNewer("1.0.0", "also-bad") {
		t.Error("expected malformed current version to report not-newer")
	}
}
