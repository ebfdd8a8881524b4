package domain

import "testing"

func TestParseTag(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want Version
		ok   bool
	}{
		{"v2.9.1", Version{2, 9, 1}, true},
		{"2.9.1", Version{2, 9, 1}, true},
		{"  v2.10.0 ", Version{2, 10, 0}, true},
		{"caddy-2.9.1", Version{2, 9, 1}, true},
		{"not-a-version", Version{}, false},
		{"", Version{}, false},
		{"v2.9", Version{}, false},
		{"v2.9.1.4", Version{}, false},
		{"v2.9.1-beta.3", Version{}, false},
		{"latest", Version{}, false},
	}

	for _, tc := range cases {
		got, ok := ParseTag(tc.raw)
		if ok != tc.ok {
			t.Fatalf("ParseTag(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseTag(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseTagNormalizesPrefix(t *testing.T) {
	t.Parallel()

	a, ok := ParseTag("v2.9.1")
	if !ok {
		t.Fatalf("parse v2.9.1 failed")
	}
	b, ok := ParseTag("2.9.1")
	if !ok {
		t.Fatalf("parse 2.9.1 failed")
	}
	if a != b {
		t.Fatalf("prefixed and bare tags must normalize equal: %v vs %v", a, b)
	}
}

func TestVersionCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b Version
		want int
	}{
		{Version{2, 9, 1}, Version{2, 9, 1}, 0},
		{Version{2, 9, 1}, Version{2, 9, 0}, 1},
		{Version{2, 9, 0}, Version{2, 9, 1}, -1},
		{Version{2, 10, 0}, Version{2, 9, 9}, 1},
		{Version{3, 0, 0}, Version{2, 99, 99}, 1},
		{Version{2, 9, 10}, Version{2, 9, 9}, 1},
	}

	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Fatalf("%v.Compare(%v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		// antisymmetry
		if got := tc.b.Compare(tc.a); got != -tc.want {
			t.Fatalf("%v.Compare(%v) = %d, want %d", tc.b, tc.a, got, -tc.want)
		}
	}
}

func TestVersionCompareTransitive(t *testing.T) {
	t.Parallel()

	a := Version{2, 8, 4}
	b := Version{2, 9, 0}
	c := Version{2, 9, 1}

	if a.Compare(b) >= 0 || b.Compare(c) >= 0 || a.Compare(c) >= 0 {
		t.Fatalf("expected %v < %v < %v", a, b, c)
	}
}

func TestVersionString(t *testing.T) {
	t.Parallel()

	if got := (Version{2, 9, 1}).String(); got != "2.9.1" {
		t.Fatalf("String() = %q, want %q", got, "2.9.1")
	}
}

func TestHasPlatforms(t *testing.T) {
	t.Parallel()

	tag := PublishedTag{
		Raw:       "2.9.1",
		Version:   Version{2, 9, 1},
		Platforms: []string{"linux/amd64", "linux/arm64"},
	}

	if !tag.HasPlatforms([]string{"linux/amd64", "linux/arm64"}) {
		t.Fatalf("expected full platform coverage")
	}
	if tag.HasPlatforms([]string{"linux/amd64", "linux/arm/v7"}) {
		t.Fatalf("missing platform must fail the check")
	}
	if !tag.HasPlatforms(nil) {
		t.Fatalf("empty requirement always passes")
	}

	empty := PublishedTag{Raw: "2.9.1", Version: Version{2, 9, 1}}
	if empty.HasPlatforms([]string{"linux/amd64"}) {
		t.Fatalf("tag with unknown platforms cannot satisfy a requirement")
	}
}
