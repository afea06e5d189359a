// Package ffmpeg is the production capture backend: the microphone is
// opened by an ffmpeg subprocess that encodes to the negotiated container
// and streams it on stdout.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/diaglog"
)

// Config selects the ffmpeg binary and the platform input.
type Config struct {
	BinaryPath  string // default "ffmpeg" resolved through PATH
	InputFormat string // avfoundation, pulse, alsa, dshow
	InputDevice string // device name understood by InputFormat
}

// DefaultConfig returns the default input for the running platform.
func DefaultConfig() Config {
	cfg := Config{BinaryPath: "ffmpeg"}
	switch runtime.GOOS {
	case "darwin":
		cfg.InputFormat, cfg.InputDevice = "avfoundation", ":default"
	case "windows":
		cfg.InputFormat, cfg.InputDevice = "dshow", "audio=default"
	default:
		cfg.InputFormat, cfg.InputDevice = "pulse", "default"
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BinaryPath == "" {
		c.BinaryPath = d.BinaryPath
	}
	if c.InputFormat == "" {
		c.InputFormat = d.InputFormat
	}
	if c.InputDevice == "" {
		c.InputDevice = d.InputDevice
	}
	return c
}

func (c Config) inputArgs(cons capture.Constraints) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", c.InputFormat, "-i", c.InputDevice}
	if cons.ChannelCount > 0 {
		args = append(args, "-ac", strconv.Itoa(cons.ChannelCount))
	}
	if cons.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(cons.SampleRate))
	}
	// ffmpeg has no echo canceller; noise suppression maps to the FFT denoiser.
	if cons.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	return args
}

// Devices acquires the microphone by running a short probe capture.
type Devices struct {
	cfg    Config
	logger *diaglog.Logger
}

// NewDevices creates a Devices for cfg.
func NewDevices(cfg Config) *Devices {
	return &Devices{cfg: cfg.withDefaults()}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (d *Devices) SetLogger(l *diaglog.Logger) { d.logger = l }

// GetUserMedia probes the input and returns a stream handle. The device is
// actually held by the recorder process started on the returned stream.
func (d *Devices) GetUserMedia(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	args := append(d.cfg.inputArgs(c), "-t", "0.1", "-f", "null", "-")
	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg: probe cancelled: %w", ctx.Err())
		}
		var execErr *exec.Error
		var pathErr *fs.PathError
		if errors.As(err, &execErr) || errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: ffmpeg not runnable at %q: %w", capture.ErrAcquisitionFailed, d.cfg.BinaryPath, err)
		}
		cerr := classifyProbe(stderr.String(), err)
		d.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentEncoder,
			Event:     diaglog.EventCaptureFailed,
			Reason:    cerr.Error(),
			Payload:   map[string]interface{}{"format": d.cfg.InputFormat, "device": d.cfg.InputDevice},
		})
		return nil, cerr
	}

	return &stream{id: "mic-" + uuid.NewString(), cfg: d.cfg, constraints: c}, nil
}

var (
	permissionMarkers = []string{"permission denied", "operation not permitted", "not authorized", "access denied"}
	deviceMarkers     = []string{"no such device", "no such file or directory", "no such process", "could not find audio", "connection refused", "audio device not found", "cannot open audio device"}
)

// classifyProbe maps ffmpeg's probe stderr onto the capture error taxonomy.
func classifyProbe(stderr string, cause error) error {
	msg := strings.TrimSpace(lastLine(stderr))
	lower := strings.ToLower(stderr)
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: %s", capture.ErrPermissionDenied, msg)
		}
	}
	for _, m := range deviceMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: %s", capture.ErrDeviceNotFound, msg)
		}
	}
	if msg == "" {
		return fmt.Errorf("%w: %w", capture.ErrAcquisitionFailed, cause)
	}
	return fmt.Errorf("%w: %s", capture.ErrAcquisitionFailed, msg)
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// stream is the logical microphone handle. Closing it kills the recorder
// process attached to it, which releases the device.
type stream struct {
	id          string
	cfg         Config
	constraints capture.Constraints

	mu     sync.Mutex
	rec    *Recorder
	closed bool
}

func (s *stream) ID() string { return s.id }

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()

	if rec != nil {
		rec.kill()
	}
	return nil
}

func (s *stream) attach(r *Recorder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("ffmpeg: stream already closed")
	}
	if s.rec != nil {
		return errors.New("ffmpeg: stream already has a recorder")
	}
	s.rec = r
	return nil
}

func (s *stream) detach(r *Recorder) {
	s.mu.Lock()
	if s.rec == r {
		s.rec = nil
	}
	s.mu.Unlock()
}
