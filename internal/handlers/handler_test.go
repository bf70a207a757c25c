package handlers

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"  alice  ":    "alice",
		"bob\x00smith": "bobsmith",
		"eve\nnewline": "evenewline",
		"plain":        "plain",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeNameTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ü", 150)
	got := sanitizeName(long)

	if !utf8.ValidString(got) {
		t.Fatal("truncated name must remain valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Fatalf("expected 100 runes, got %d", n)
	}
}
