package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v -> %s", err, scanner.Text())
		}
		lines = append(lines, m)
	}
	return lines
}

func TestLogWritesNDJSON(t *testing.T) {
	t.Setenv(EnvDebug, "true")

	tmp := filepath.Join(t.TempDir(), "test.ndjson")
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Enabled() {
		t.Fatal("logger should be enabled")
	}

	entries := []LogEntry{
		{Component: ComponentCapture, Event: EventCaptureStart},
		{Component: ComponentCapture, Event: EventCaptureStop, Reason: "user", SessionID: "abc123"},
		{Component: ComponentPlayback, Event: EventPlaybackLoad, Payload: map[string]interface{}{"artifact_id": "42"}},
	}
	for _, e := range entries {
		l.Log(e)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, tmp)
	if len(lines) != len(entries) {
		t.Fatalf("want %d lines, got %d", len(entries), len(lines))
	}
	if lines[0]["component"] != ComponentCapture {
		t.Errorf("component mismatch: %v", lines[0]["component"])
	}
	if lines[1]["session_id"] != "abc123" {
		t.Errorf("session_id mismatch: %v", lines[1]["session_id"])
	}
	if lines[0]["ts"] == nil {
		t.Error("ts field missing")
	}
	payload := lines[2]["payload"].(map[string]interface{})
	if payload["artifact_id"] != "42" {
		t.Errorf("payload mismatch: %v", payload)
	}
}

func TestLogRedactsAuthorization(t *testing.T) {
	t.Setenv(EnvDebug, "true")

	tmp := filepath.Join(t.TempDir(), "redact.ndjson")
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(LogEntry{
		Component: ComponentRemote,
		Event:     EventHTTPRequest,
		Payload:   map[string]string{"Authorization": "Bearer abc", "url": "/api/recordings/1/download"},
	})
	_ = l.Close()

	data, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "Bearer abc") {
		t.Errorf("token leaked into log: %s", data)
	}
	if !strings.Contains(string(data), "/api/recordings/1/download") {
		t.Errorf("non-sensitive field missing: %s", data)
	}
}

func TestRollingRotatesAtMaxSize(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "roll.ndjson")
	const maxSize = 1024
	rw, err := newRollingWriter(tmp, maxSize)
	if err != nil {
		t.Fatalf("newRollingWriter: %v", err)
	}
	defer rw.close()

	for _, c := range []string{"a", "b", "c"} {
		chunk := []byte(strings.Repeat(c, 512) + "\n")
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("write %s: %v", c, err)
		}
	}

	cur, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if len(cur) > maxSize {
		t.Errorf("file size %d exceeds maxSize %d", len(cur), maxSize)
	}
	if !strings.HasPrefix(string(cur), "ccc") || strings.Contains(string(cur), "a") {
		t.Errorf("current generation should hold only the newest write, got %d bytes", len(cur))
	}

	prev, err := os.ReadFile(tmp + PreviousSuffix)
	if err != nil {
		t.Fatalf("read previous generation: %v", err)
	}
	if !strings.HasPrefix(string(prev), "aaa") || !strings.Contains(string(prev), "bbb") {
		t.Errorf("previous generation should hold the rotated writes")
	}
}

func TestRollingReplacesOlderGeneration(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "roll.ndjson")
	rw, err := newRollingWriter(tmp, 600)
	if err != nil {
		t.Fatalf("newRollingWriter: %v", err)
	}
	defer rw.close()

	for _, c := range []string{"a", "b", "c"} {
		if _, err := rw.Write([]byte(strings.Repeat(c, 511) + "\n")); err != nil {
			t.Fatalf("write %s: %v", c, err)
		}
	}

	prev, err := os.ReadFile(tmp + PreviousSuffix)
	if err != nil {
		t.Fatalf("read previous generation: %v", err)
	}
	if !strings.HasPrefix(string(prev), "bbb") {
		t.Errorf("previous generation should be the second write")
	}
	if _, err := os.Stat(tmp + PreviousSuffix + PreviousSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("only one older generation should be kept, stat err = %v", err)
	}
}

func TestRedactSensitiveFields(t *testing.T) {
	input := map[string]interface{}{
		"Authorization": "Bearer secret-token",
		"token":         "xyz",
		"access_token":  "abc",
		"password":      "hunter2",
		"safe_field":    "keep-me",
		"nested": map[string]interface{}{
			"secret": "nested-secret",
			"ok":     "value",
		},
		"list": []interface{}{map[string]interface{}{"cookie": "c"}},
	}

	out := Redact(input).(map[string]interface{})
	for _, k := range []string{"Authorization", "token", "access_token", "password"} {
		if out[k] != redactedValue {
			t.Errorf("key %q: want %s, got %v", k, redactedValue, out[k])
		}
	}
	if out["safe_field"] != "keep-me" {
		t.Errorf("safe_field should be preserved")
	}
	nested := out["nested"].(map[string]interface{})
	if nested["secret"] != redactedValue {
		t.Error("nested secret not redacted")
	}
	if nested["ok"] != "value" {
		t.Error("nested ok field should be preserved")
	}
	item := out["list"].([]interface{})[0].(map[string]interface{})
	if item["cookie"] != redactedValue {
		t.Error("cookie inside list not redacted")
	}
	if input["password"] != "hunter2" {
		t.Error("input must not be mutated")
	}
}

func TestNoOpWhenDisabled(t *testing.T) {
	t.Setenv(EnvDebug, "")

	tmp := filepath.Join(t.TempDir(), "noop.ndjson")
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(LogEntry{Component: ComponentCapture, Event: EventCaptureStart})
	_ = l.Close()

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("log file should not exist when debug disabled")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Log(LogEntry{Component: ComponentCapture, Event: EventCaptureStart})
	if l.Enabled() {
		t.Error("nil logger reports enabled")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}

func TestLogPathOverride(t *testing.T) {
	t.Setenv(EnvLogPath, "")
	if LogPath() != DefaultLogPath {
		t.Errorf("default path: got %s", LogPath())
	}
	t.Setenv(EnvLogPath, "/var/tmp/x.log")
	if LogPath() != "/var/tmp/x.log" {
		t.Errorf("override path: got %s", LogPath())
	}
}
