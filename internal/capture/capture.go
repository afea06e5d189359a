// Package capture owns the microphone and drives a recording session
// through idle → recording ⇄ paused → stopped, producing an artifact.
package capture

import (
	"context"
	"time"
)

// State is the capture session state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// Constraints are the processing options requested from the platform.
type Constraints struct {
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	SampleRate       int  `json:"sample_rate"`
	ChannelCount     int  `json:"channel_count"`
}

// DefaultConstraints: echo cancellation and noise suppression on, 44.1 kHz
// mono.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		SampleRate:       44100,
		ChannelCount:     1,
	}
}

// DefaultBitsPerSecond is the recommended encoder bitrate.
const DefaultBitsPerSecond = 128_000

// DefaultTimeslice is how often the encoder delivers a chunk.
const DefaultTimeslice = time.Second

// MediaDevices acquires microphone streams. Errors should wrap
// ErrPermissionDenied or ErrDeviceNotFound where the cause is known; any
// other error is reported as ErrAcquisitionFailed.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired microphone handle. Close releases the hardware and
// must be safe to call more than once.
type Stream interface {
	ID() string
	Close() error
}

// RecorderOptions configure a new encoder instance. An empty MimeType lets
// the encoder pick its default.
type RecorderOptions struct {
	MimeType      string
	BitsPerSecond int
}

// RecorderEvents are the callbacks an encoder delivers, possibly from its
// own goroutines. OnData calls arrive in capture order; after Stop the
// encoder delivers any final data and then exactly one OnStop.
type RecorderEvents struct {
	OnData  func(chunk []byte)
	OnStop  func()
	OnError func(err error)
}

// Recorder is one encoder instance bound to a stream. Its methods must not
// invoke RecorderEvents callbacks synchronously.
type Recorder interface {
	MimeType() string
	Start(timeslice time.Duration, ev RecorderEvents) error
	Pause() error
	Resume() error
	Stop() error
}

// Encoder creates recorders and reports supported encoded types.
type Encoder interface {
	IsTypeSupported(mimeType string) bool
	NewRecorder(s Stream, opts RecorderOptions) (Recorder, error)
}

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID       string `json:"session_id,omitempty"`
	State           State  `json:"state"`
	DurationSeconds int    `json:"duration_seconds"`
	MimeType        string `json:"mime_type,omitempty"`
	PreviewURL      string `json:"preview_url,omitempty"`
	Chunks          int    `json:"chunks"`
	Bytes           int    `json:"bytes"`
	HasArtifact     bool   `json:"has_artifact"`
	LastError       string `json:"last_error,omitempty"`
}
