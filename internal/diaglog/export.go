package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the first line written to the export file (valid NDJSON).
type DiagBundle struct {
	ExportedAt string         `json:"exported_at"`
	Version    string         `json:"meetaudio_version"`
	GoVersion  string         `json:"go_version"`
	OS         string         `json:"os"`
	Arch       string         `json:"arch"`
	LogFile    string         `json:"log_file"`
	EntryCount int            `json:"entry_count"`
	Components map[string]int `json:"components"`
}

// Export copies the NDJSON log at logPath, preceded by its previous
// generation (<logPath>.1) when one exists, into
// dest/meetaudio-diag-<ts>.ndjson, prefixed with a DiagBundle header line.
// Returns the written path and the number of log lines copied. A missing
// current log wraps os.ErrNotExist.
func Export(logPath, dest string) (path string, lines int, err error) {
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}

	// Each generation is capped at maxLogSize, so buffering both is bounded.
	var rawLines [][]byte
	components := make(map[string]int)
	prev := logPath + PreviousSuffix
	if _, err := os.Stat(prev); err == nil {
		if rawLines, err = readLogLines(prev, rawLines, components); err != nil {
			return "", 0, err
		}
	}
	if rawLines, err = readLogLines(logPath, rawLines, components); err != nil {
		return "", 0, err
	}

	now := time.Now().UTC()
	outPath := filepath.Join(dest, "meetaudio-diag-"+now.Format("20060102T150405")+".ndjson")

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	header, err := json.Marshal(DiagBundle{
		ExportedAt: now.Format(time.RFC3339),
		Version:    Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFile:    logPath,
		EntryCount: len(rawLines),
		Components: components,
	})
	if err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	if _, err := w.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range rawLines {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, len(rawLines), nil
}

// readLogLines appends the lines of path to lines and counts components.
func readLogLines(path string, lines [][]byte, components map[string]int) ([][]byte, error) {
	src, err := os.Open(path)
	if err != nil {
		return lines, fmt.Errorf("log file unreadable: %w", err)
	}
	defer func() { _ = src.Close() }()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLogSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lines = append(lines, line)

		var head struct {
			Component string `json:"component"`
		}
		if json.Unmarshal(line, &head) == nil && head.Component != "" {
			components[head.Component]++
		}
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("log file unreadable: %w", err)
	}
	return lines, nil
}
