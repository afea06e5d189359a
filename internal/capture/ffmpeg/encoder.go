package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/codec"
	"github.com/tiroq/meetaudio/internal/diaglog"
)

// format is how one encoded MIME type is produced by ffmpeg.
type format struct {
	muxer   string
	encoder string
	extra   []string
}

var formats = map[string]format{
	"audio/webm;codecs=opus": {muxer: "webm", encoder: "libopus"},
	"audio/webm":             {muxer: "webm", encoder: "libopus"},
	"audio/ogg;codecs=opus":  {muxer: "ogg", encoder: "libopus"},
	"audio/ogg":              {muxer: "ogg", encoder: "libopus"},
	// mp4 needs a fragmented layout to be written to a pipe.
	"audio/mp4": {muxer: "mp4", encoder: "aac", extra: []string{"-movflags", "frag_keyframe+empty_moov"}},
}

// DefaultMimeType is used when the caller leaves the type to the encoder.
const DefaultMimeType = "audio/webm"

func lookupFormat(mimeType string) (format, bool) {
	f, ok := formats[strings.ReplaceAll(strings.ToLower(mimeType), " ", "")]
	return f, ok
}

// Encoder creates ffmpeg recorders and reports which MIME types the
// installed ffmpeg can produce.
type Encoder struct {
	cfg    Config
	logger *diaglog.Logger

	capsOnce sync.Once
	muxers   map[string]bool
	encoders map[string]bool
	capsErr  error
}

// NewEncoder creates an Encoder for cfg.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg.withDefaults()}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (e *Encoder) SetLogger(l *diaglog.Logger) { e.logger = l }

// IsTypeSupported reports whether both the container and the audio codec of
// mimeType are available. Capabilities are queried once.
func (e *Encoder) IsTypeSupported(mimeType string) bool {
	f, ok := lookupFormat(mimeType)
	if !ok {
		return false
	}
	if err := e.loadCaps(); err != nil {
		return false
	}
	return e.muxers[f.muxer] && e.encoders[f.encoder]
}

// Check reports why capability discovery failed, if it did.
func (e *Encoder) Check() error {
	return e.loadCaps()
}

func (e *Encoder) loadCaps() error {
	e.capsOnce.Do(func() {
		out, err := e.query("-muxers")
		if err != nil {
			e.capsErr = err
			return
		}
		e.muxers = parseMuxers(out)
		out, err = e.query("-encoders")
		if err != nil {
			e.capsErr = err
			return
		}
		e.encoders = parseEncoders(out)
		e.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentEncoder,
			Event:     diaglog.EventEncoderCaps,
			Payload:   map[string]interface{}{"muxers": len(e.muxers), "encoders": len(e.encoders)},
		})
	})
	return e.capsErr
}

func (e *Encoder) query(flag string) (string, error) {
	out, err := exec.CommandContext(context.Background(), e.cfg.BinaryPath, "-hide_banner", flag).Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg: %s query failed: %w", flag, err)
	}
	return string(out), nil
}

// parseMuxers reads `ffmpeg -muxers` output. Rows after the "--" separator
// look like " E webm            WebM"; names may be comma separated.
func parseMuxers(out string) map[string]bool {
	return parseTable(out, func(flags string) bool { return strings.Contains(flags, "E") })
}

// parseEncoders reads `ffmpeg -encoders` output. Rows after the "------"
// separator look like " A....D libopus   libopus Opus".
func parseEncoders(out string) map[string]bool {
	return parseTable(out, func(flags string) bool { return strings.HasPrefix(flags, "A") })
}

func parseTable(out string, keep func(flags string) bool) map[string]bool {
	names := make(map[string]bool)
	inRows := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inRows {
			if line != "" && strings.Trim(line, "-") == "" {
				inRows = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !keep(fields[0]) {
			continue
		}
		for _, n := range strings.Split(fields[1], ",") {
			names[n] = true
		}
	}
	return names
}

// NewRecorder builds a recorder for s. An empty MimeType selects
// DefaultMimeType.
func (e *Encoder) NewRecorder(s capture.Stream, opts capture.RecorderOptions) (capture.Recorder, error) {
	st, ok := s.(*stream)
	if !ok {
		return nil, errors.New("ffmpeg: stream was not acquired by this backend")
	}
	mime := opts.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}
	f, ok := lookupFormat(mime)
	if !ok {
		return nil, fmt.Errorf("ffmpeg: unsupported mime type %q", mime)
	}

	args := st.cfg.inputArgs(st.constraints)
	args = append(args, "-c:a", f.encoder)
	if opts.BitsPerSecond > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%d", opts.BitsPerSecond))
	}
	args = append(args, f.extra...)
	args = append(args, "-f", f.muxer, "pipe:1")

	r := &Recorder{
		binary:   st.cfg.BinaryPath,
		args:     args,
		mimeType: mime,
		stream:   st,
		logger:   e.logger,
	}
	if err := st.attach(r); err != nil {
		return nil, err
	}
	e.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEncoder,
		Event:     diaglog.EventRecorderCreated,
		Payload:   map[string]interface{}{"mime_type": mime, "extension": codec.CaptureExtension(mime), "args": strings.Join(args, " ")},
	})
	return r, nil
}
