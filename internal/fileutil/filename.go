package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultBasename replaces names that sanitize to nothing.
const DefaultBasename = "Recording"

// maxNameBytes caps a sanitized name, in bytes.
const maxNameBytes = 50

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|\x00-\x1f]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeForFilename sanitizes a string for safe use in filenames
func SanitizeForFilename(input string) string {
	// Illegal chars: / \ : * ? " < > | and control characters
	sanitized := illegalChars.ReplaceAllString(input, "_")

	// Replace runs of whitespace with a single hyphen
	sanitized = whitespace.ReplaceAllString(sanitized, "-")

	// Leading dots would hide the file
	sanitized = strings.Trim(sanitized, "-._")

	if len(sanitized) > maxNameBytes {
		sanitized = strings.TrimRight(truncateRunes(sanitized, maxNameBytes), "-._")
	}

	if sanitized == "" {
		return DefaultBasename
	}
	return sanitized
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	for len(s) > n {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// UniquePath returns dir/base.ext, or dir/base_N.ext for the first N >= 2
// that does not exist yet.
func UniquePath(dir, base, ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	name := func(suffix string) string {
		if ext == "" {
			return filepath.Join(dir, base+suffix)
		}
		return filepath.Join(dir, base+suffix+"."+ext)
	}

	path := name("")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	for i := 2; i < 1000; i++ {
		try := name("_" + strconv.Itoa(i))
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try, nil
		}
	}
	return "", fmt.Errorf("no free filename for %s in %s", base, dir)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".write-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
