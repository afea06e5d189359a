// Package fileutil provides recording file utilities: safe names, atomic
// writes and the sidecar metadata JSON.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataVersion is the sidecar schema version.
const MetadataVersion = "1"

// Recording origins.
const (
	OriginCapture  = "capture"
	OriginDownload = "download"
)

// RecordingMetadata is the sidecar metadata written alongside each saved
// recording.
type RecordingMetadata struct {
	Version         string      `json:"version"`
	Origin          string      `json:"origin"`
	SessionID       string      `json:"session_id,omitempty"`
	ArtifactID      string      `json:"artifact_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	DurationSeconds int         `json:"duration_seconds"`
	MimeType        string      `json:"mime_type"`
	Bytes           int         `json:"bytes"`
	OutputFile      string      `json:"output_file"`
	Upload          *UploadMeta `json:"upload,omitempty"`
}

// UploadMeta records the outcome of sending the recording to the server.
type UploadMeta struct {
	MeetingID   string    `json:"meeting_id"`
	RecordingID string    `json:"recording_id,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// WriteMetadata writes a <basepath>.meta.json sidecar file alongside the
// recording, atomically.
func WriteMetadata(recordingPath string, meta *RecordingMetadata) error {
	if meta.Version == "" {
		meta.Version = MetadataVersion
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	data = append(data, '\n')
	if err := WriteFileAtomic(MetadataPath(recordingPath), data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar for recordingPath.
func ReadMetadata(recordingPath string) (*RecordingMetadata, error) {
	data, err := os.ReadFile(MetadataPath(recordingPath))
	if err != nil {
		return nil, err
	}
	var meta RecordingMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// MetadataPath returns <basepath>.meta.json for a given recording file path.
func MetadataPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	base := recordingPath[:len(recordingPath)-len(ext)]
	return base + ".meta.json"
}
