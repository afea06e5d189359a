package capture

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceNotFound    = errors.New("no capture device found")
	ErrAcquisitionFailed = errors.New("microphone acquisition failed")

	// ErrSessionActive is returned by Start when a session already holds,
	// or is acquiring, the microphone.
	ErrSessionActive = errors.New("capture session already active")

	// ErrCleared is returned by Stop when Clear discarded the session while
	// the final flush was pending.
	ErrCleared = errors.New("capture session cleared")
)

// classify maps a backend acquisition error onto the taxonomy. Unknown
// causes, context errors included, become ErrAcquisitionFailed.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrAcquisitionFailed):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
	}
}

// UserMessage turns a capture error into text fit for display.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone access and try again."
	case errors.Is(err, ErrDeviceNotFound):
		return "No microphone was found. Connect an input device and try again."
	case errors.Is(err, ErrSessionActive):
		return "A recording is already in progress."
	default:
		return "Could not access the microphone. Please try again."
	}
}
