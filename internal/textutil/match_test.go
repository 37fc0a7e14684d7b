package textutil_test

import (
	"testing"

	"dlq/internal/textutil"
)

func TestMatcherModes(t *testing.T) {
	cases := []struct {
		mode      textutil.MatchMode
		pattern   string
		candidate string
		want      bool
	}{
		{textutil.MatchExact, "movie.rar", "movie.rar", true},
		{textutil.MatchExact, "Movie.rar", "movie.rar", false},
		{textutil.MatchContains, "PART1", "movie.part1.rar", true},
		{textutil.MatchStartsWith, "https://", "https://example.com/a", true},
		{textutil.MatchStartsWith, "ftp://", "https://example.com/a", false},
		{textutil.MatchEndsWith, ".RAR", "movie.part2.rar", true},
		{textutil.MatchWildcard, "movie.part?.rar", "movie.part7.rar", true},
		{textutil.MatchWildcard, "*.zip", "https://example.com/a.zip", true},
		{textutil.MatchWildcard, "*.zip", "a.zip.txt", false},
		{textutil.MatchRegexp, `part\d+`, "movie.PART12.rar", true},
	}
	for _, tc := range cases {
		m, err := textutil.NewMatcher(tc.mode, tc.pattern)
		if err != nil {
			t.Fatalf("NewMatcher(%s, %q) failed: %v", tc.mode, tc.pattern, err)
		}
		if got := m.Match(tc.candidate); got != tc.want {
			t.Fatalf("%s %q vs %q = %v, want %v", tc.mode, tc.pattern, tc.candidate, got, tc.want)
		}
	}
}

func TestParseMatchMode(t *testing.T) {
	if mode, err := textutil.ParseMatchMode(""); err != nil || mode != textutil.MatchExact {
		t.Fatalf("expected empty mode to default to exact, got %q %v", mode, err)
	}
	if _, err := textutil.ParseMatchMode("fuzzy"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if _, err := textutil.NewMatcher(textutil.MatchRegexp, "("); err == nil {
		t.Fatal("expected compile error for bad regexp")
	}
}

func TestSanitizeFileName(t *testing.T) {
	got := textutil.SanitizeFileName("  a/b:c*?\x07.txt ")
	if got != "a_b_c__.txt" {
		t.Fatalf("SanitizeFileName = %q", got)
	}
}
