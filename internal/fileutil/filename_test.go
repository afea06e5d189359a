package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Weekly Sync", "Weekly-Sync"},
		{"a/b\\c:d", "a_b_c_d"},
		{"  spaced   out  ", "spaced-out"},
		{"..hidden", "hidden"},
		{"", DefaultBasename},
		{"///", DefaultBasename},
		{"team_sync  notes", "team_sync-notes"},
		{"tab\there", "tab_here"},
		{"_draft_", "draft"},
	}
	for _, tt := range tests {
		got := SanitizeForFilename(tt.input)
		if got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeForFilename_Truncates(t *testing.T) {
	got := SanitizeForFilename(strings.Repeat("x", 80))
	if len(got) != 50 {
		t.Errorf("len = %d, want 50", len(got))
	}
}

func TestSanitizeForFilename_TruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes: 50 is not a multiple of 3.
	got := SanitizeForFilename(strings.Repeat("会", 30))
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("会", 16) {
		t.Errorf("got %q (%d bytes), want 16 runes", got, len(got))
	}

	got = SanitizeForFilename("x" + strings.Repeat("é", 40))
	if !utf8.ValidString(got) || len(got) > 50 {
		t.Errorf("got %q (%d bytes)", got, len(got))
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first, err := UniquePath(dir, "meeting", ".webm")
	if err != nil {
		t.Fatal(err)
	}
	if first != filepath.Join(dir, "meeting.webm") {
		t.Errorf("first = %q", first)
	}
	if err := os.WriteFile(first, nil, 0644); err != nil {
		t.Fatal(err)
	}

	second, err := UniquePath(dir, "meeting", "webm")
	if err != nil {
		t.Fatal(err)
	}
	if second != filepath.Join(dir, "meeting_2.webm") {
		t.Errorf("second = %q", second)
	}
	if err := os.WriteFile(second, nil, 0644); err != nil {
		t.Fatal(err)
	}

	third, _ := UniquePath(dir, "meeting", "webm")
	if third != filepath.Join(dir, "meeting_3.webm") {
		t.Errorf("third = %q", third)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	if err := WriteFileAtomic(path, []byte("one"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}
