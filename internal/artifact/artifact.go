// Package artifact assembles captured chunks into the immutable result of a
// finished recording session.
package artifact

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/tiroq/meetaudio/internal/codec"
)

// Artifact is the finalized binary result of a completed capture session.
type Artifact struct {
	Data            []byte
	MimeType        string
	Extension       string
	DurationSeconds int
	CreatedAt       time.Time
}

// Assemble concatenates chunks in order and derives the extension from
// mimeType. Pure: the result shares no memory with chunks.
func Assemble(chunks [][]byte, mimeType string, durationSeconds int) Artifact {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return Artifact{
		Data:            data,
		MimeType:        mimeType,
		Extension:       codec.CaptureExtension(mimeType),
		DurationSeconds: durationSeconds,
	}
}

// Size returns the artifact length in bytes.
func (a Artifact) Size() int { return len(a.Data) }

// Empty reports whether no audio data was collected.
func (a Artifact) Empty() bool { return len(a.Data) == 0 }

// Reader returns a fresh reader over the artifact bytes.
func (a Artifact) Reader() io.Reader { return bytes.NewReader(a.Data) }

// ContentType returns MimeType, or the canonical type for Extension when the
// encoder chose its own default.
func (a Artifact) ContentType() string {
	if a.MimeType != "" {
		return a.MimeType
	}
	return codec.ContentTypeFor(a.Extension)
}

// UploadFilename returns recording-<unix_ms>.<ext>.
func UploadFilename(a Artifact, now time.Time) string {
	ext := a.Extension
	if ext == "" {
		ext = codec.DefaultCaptureExtension
	}
	return fmt.Sprintf("recording-%d.%s", now.UnixMilli(), ext)
}
