package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func seedLogFile(t *testing.T, n int) string {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "seed.ndjson")
	f, err := os.Create(tmp)
	if err != nil {
		t.Fatalf("create seed: %v", err)
	}
	defer func() { _ = f.Close() }()
	for i := 0; i < n; i++ {
		component := ComponentCapture
		if i%2 == 1 {
			component = ComponentPlayback
		}
		_, _ = fmt.Fprintf(f, "{\"ts\":\"2026-01-01T00:00:00Z\",\"component\":%q,\"event\":\"e%d\"}\n", component, i)
	}
	return tmp
}

func TestExportWritesBundleHeader(t *testing.T) {
	src := seedLogFile(t, 10)
	dest := t.TempDir()

	path, lines, err := Export(src, dest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines != 10 {
		t.Errorf("lines: want 10, got %d", lines)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("no first line in output")
	}
	var bundle DiagBundle
	if err := json.Unmarshal(scanner.Bytes(), &bundle); err != nil {
		t.Fatalf("unmarshal bundle header: %v", err)
	}
	if bundle.EntryCount != 10 {
		t.Errorf("entry_count: want 10, got %d", bundle.EntryCount)
	}
	if bundle.GoVersion == "" || bundle.OS == "" {
		t.Error("runtime fields missing")
	}
	if bundle.Components[ComponentCapture] != 5 || bundle.Components[ComponentPlayback] != 5 {
		t.Errorf("component counts: %v", bundle.Components)
	}
}

func TestExportContainsAllLines(t *testing.T) {
	src := seedLogFile(t, 5)

	outPath, _, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	read := func(p string, skip int) []string {
		f, err := os.Open(p)
		if err != nil {
			t.Fatalf("open %s: %v", p, err)
		}
		defer f.Close()
		var ls []string
		s := bufio.NewScanner(f)
		for s.Scan() {
			if skip > 0 {
				skip--
				continue
			}
			ls = append(ls, s.Text())
		}
		return ls
	}

	srcLines := read(src, 0)
	outLines := read(outPath, 1)
	if len(outLines) != len(srcLines) {
		t.Fatalf("want %d lines, got %d", len(srcLines), len(outLines))
	}
	for i := range srcLines {
		if outLines[i] != srcLines[i] {
			t.Errorf("line %d mismatch", i)
		}
	}
}

func TestExportMissingFile(t *testing.T) {
	_, _, err := Export("/nonexistent/path/meetaudio-debug.log", t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want os.ErrNotExist, got %v", err)
	}
}

func TestExportIncludesPreviousGeneration(t *testing.T) {
	src := seedLogFile(t, 4)
	prev := "{\"ts\":\"2025-12-31T23:59:59Z\",\"component\":\"playback\",\"event\":\"older\"}\n"
	if err := os.WriteFile(src+PreviousSuffix, []byte(prev), 0o644); err != nil {
		t.Fatalf("write previous generation: %v", err)
	}

	outPath, lines, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines != 5 {
		t.Errorf("lines: want 5, got %d", lines)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	if !s.Scan() {
		t.Fatal("no header line")
	}
	var bundle DiagBundle
	if err := json.Unmarshal(s.Bytes(), &bundle); err != nil {
		t.Fatalf("unmarshal bundle header: %v", err)
	}
	if bundle.Components[ComponentPlayback] != 3 {
		t.Errorf("playback count should include the older entry: %v", bundle.Components)
	}
	if !s.Scan() {
		t.Fatal("no log lines")
	}
	var first struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(s.Bytes(), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first.Event != "older" {
		t.Errorf("previous generation should come first, got event %q", first.Event)
	}
}
