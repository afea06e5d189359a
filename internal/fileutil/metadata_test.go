package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteMetadata_Basic(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "2026-03-02_1000_Standup.webm")
	if err := os.WriteFile(recPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	meta := &RecordingMetadata{
		Origin:          OriginCapture,
		SessionID:       "abc123",
		CreatedAt:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		DurationSeconds: 1800,
		MimeType:        "audio/webm;codecs=opus",
		Bytes:           4,
		OutputFile:      recPath,
	}

	if err := WriteMetadata(recPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	metaPath := filepath.Join(dir, "2026-03-02_1000_Standup.meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("metadata file not found at %s: %v", metaPath, err)
	}

	var got RecordingMetadata
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Version != MetadataVersion {
		t.Errorf("version = %q, want %q", got.Version, MetadataVersion)
	}
	if got.SessionID != "abc123" {
		t.Errorf("session_id = %q, want %q", got.SessionID, "abc123")
	}
	if got.DurationSeconds != 1800 {
		t.Errorf("duration_seconds = %d, want 1800", got.DurationSeconds)
	}
	if got.MimeType != "audio/webm;codecs=opus" {
		t.Errorf("mime_type = %q", got.MimeType)
	}
	if got.Origin != OriginCapture {
		t.Errorf("origin = %q, want %q", got.Origin, OriginCapture)
	}
}

func TestWriteMetadata_WithUpload(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recording.webm")

	meta := &RecordingMetadata{
		Origin:     OriginCapture,
		OutputFile: recPath,
		Upload: &UploadMeta{
			MeetingID:   "m-7",
			RecordingID: "rec-99",
			Success:     true,
			UploadedAt:  time.Date(2026, 3, 2, 10, 31, 0, 0, time.UTC),
		},
	}

	if err := WriteMetadata(recPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	got, err := ReadMetadata(recPath)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.Upload == nil {
		t.Fatal("Upload is nil, expected non-nil")
	}
	if got.Upload.RecordingID != "rec-99" {
		t.Errorf("upload.recording_id = %q, want %q", got.Upload.RecordingID, "rec-99")
	}
	if !got.Upload.Success {
		t.Error("upload.success = false, want true")
	}
}

func TestWriteMetadata_NilUpload(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recording.ogg")

	if err := WriteMetadata(recPath, &RecordingMetadata{Origin: OriginDownload}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "recording.meta.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["upload"]; ok {
		t.Error("expected no 'upload' field in JSON when Upload is nil")
	}
}

func TestMetadataPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"recording.webm", "recording.meta.json"},
		{"/path/to/file.m4a", "/path/to/file.meta.json"},
		{"no-ext", "no-ext.meta.json"},
	}
	for _, tt := range tests {
		got := MetadataPath(tt.input)
		if got != tt.want {
			t.Errorf("MetadataPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWriteMetadata_AtomicNoPartialFile(t *testing.T) {
	badPath := filepath.Join(t.TempDir(), "nonexistent", "sub", "recording.webm")
	err := WriteMetadata(badPath, &RecordingMetadata{})
	if err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}
