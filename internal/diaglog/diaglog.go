// Package diaglog provides structured NDJSON diagnostic logging for the
// capture and playback engines. Activated by MEETAUDIO_DEBUG=true. When the
// env var is absent, all Log calls are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// EnvDebug enables diagnostic logging when set to "true".
const EnvDebug = "MEETAUDIO_DEBUG"

// EnvLogPath overrides DefaultLogPath.
const EnvLogPath = "MEETAUDIO_LOG_PATH"

// DefaultLogPath is used when EnvLogPath is unset.
const DefaultLogPath = "/tmp/meetaudio-debug.log"

// maxLogSize caps the rolling file.
const maxLogSize = 10 * 1024 * 1024

// ── Component labels ────────────────────────────────────────────────────────

const (
	ComponentCapture   = "capture"
	ComponentEncoder   = "encoder"
	ComponentPlayback  = "playback"
	ComponentMedia     = "media-bridge"
	ComponentDownload  = "download"
	ComponentRemote    = "remote"
	ComponentObjectURL = "object-url"
	ComponentDaemon    = "daemon"
	ComponentExport    = "diag-export"
)

// ── Event names ─────────────────────────────────────────────────────────────

const (
	EventCaptureStart     = "capture_start"
	EventCaptureStarted   = "capture_started"
	EventCaptureFailed    = "capture_failed"
	EventCapturePause     = "capture_pause"
	EventCaptureResume    = "capture_resume"
	EventCaptureStop      = "capture_stop"
	EventCaptureClear     = "capture_clear"
	EventCaptureRejected  = "capture_rejected"
	EventChunk            = "chunk"
	EventEncoderCaps      = "encoder_caps"
	EventRecorderCreated  = "recorder_created"
	EventMicReleased      = "mic_released"
	EventPlaybackLoad     = "playback_load"
	EventPlaybackBind     = "playback_bind"
	EventPlaybackEvent    = "playback_event"
	EventPlaybackClose    = "playback_close"
	EventDurationProbe    = "duration_probe_failed"
	EventDownloadStart    = "download_start"
	EventDownloadDone     = "download_done"
	EventDownloadFailed   = "download_failed"
	EventHTTPRequest      = "http_request"
	EventHTTPResponse     = "http_response"
	EventUpload           = "upload"
	EventObjectURLCreate  = "object_url_create"
	EventObjectURLRevoke  = "object_url_revoke"
	EventCommand          = "command"
	EventWSConnect        = "ws_connect"
	EventWSDisconnect     = "ws_disconnect"
	EventProtocolMismatch = "protocol_mismatch"

	// EventCaptureInterrupted: the encoder ended a session nobody stopped.
	EventCaptureInterrupted = "capture_interrupted"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`                   // RFC3339Nano
	Component string      `json:"component"`            // see Component* constants
	Event     string      `json:"event"`                // see Event* constants
	SessionID string      `json:"session_id,omitempty"` // capture or playback session
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op. A nil *Logger is valid and disabled.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
	now     func() time.Time
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return NewNoOp(), nil
	}
	rw, err := newRollingWriter(path, maxLogSize)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true, now: time.Now}, nil
}

// Log serialises entry to JSON and appends it as one line. Sensitive payload
// fields are redacted before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Enabled reports whether entries are written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether MEETAUDIO_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv(EnvDebug) == "true"
}

// LogPath returns the configured log path.
func LogPath() string {
	if p := os.Getenv(EnvLogPath); p != "" {
		return p
	}
	return DefaultLogPath
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
