package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/tiroq/meetaudio/internal/artifact"
	"github.com/tiroq/meetaudio/internal/diaglog"
)

// RecordingType tells the server how the recording was produced.
type RecordingType string

const (
	RecordingDirect RecordingType = "direct" // captured in this client
	RecordingUpload RecordingType = "upload" // an existing file
)

// UploadRequest describes one upload. Filename defaults to
// artifact.UploadFilename.
type UploadRequest struct {
	MeetingID     string
	Title         string
	RecordingType RecordingType
	Artifact      *artifact.Artifact
	Filename      string
}

// UploadResult is the server's answer to a successful upload.
type UploadResult struct {
	ID         string `json:"id"`
	StatusCode int    `json:"-"`
}

// Uploader stores finished recordings on the server.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// Upload posts the artifact as multipart/form-data with the fields audioFile,
// title, recordingType and, when known, duration. Single attempt.
func (c *Client) Upload(ctx context.Context, up UploadRequest) (*UploadResult, error) {
	if up.MeetingID == "" {
		return nil, fmt.Errorf("%w: empty meeting id", ErrUploadFailed)
	}
	if up.Artifact == nil || up.Artifact.Empty() {
		return nil, fmt.Errorf("%w: nothing recorded", ErrUploadFailed)
	}
	if up.RecordingType == "" {
		up.RecordingType = RecordingDirect
	}
	if up.Filename == "" {
		up.Filename = artifact.UploadFilename(*up.Artifact, time.Now())
	}

	// Write multipart in a goroutine so the pipe feeds the request body.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(writer, up))
	}()

	target := c.endpoint("api", "meetings", up.MeetingID, "recordings")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: create request: %w", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.log(diaglog.LogEntry{
		Event: diaglog.EventUpload,
		Payload: map[string]interface{}{
			"url":      target,
			"filename": up.Filename,
			"bytes":    up.Artifact.Size(),
			"type":     string(up.RecordingType),
		},
	})

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	c.log(diaglog.LogEntry{Event: diaglog.EventHTTPResponse, Payload: map[string]interface{}{"url": target, "status": resp.StatusCode}})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "upload recording", StatusCode: resp.StatusCode, Body: truncate(body, 200), kind: ErrUploadFailed}
	}

	result := &UploadResult{StatusCode: resp.StatusCode}
	// The id is informational; servers that answer without JSON still succeed.
	_ = json.Unmarshal(body, result)
	return result, nil
}

func writeUploadForm(w *multipart.Writer, up UploadRequest) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audioFile"; filename=%q`, up.Filename))
	h.Set("Content-Type", up.Artifact.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, up.Artifact.Reader()); err != nil {
		return fmt.Errorf("copy audio data: %w", err)
	}
	if err := w.WriteField("title", up.Title); err != nil {
		return err
	}
	if err := w.WriteField("recordingType", string(up.RecordingType)); err != nil {
		return err
	}
	if up.Artifact.DurationSeconds > 0 {
		if err := w.WriteField("duration", strconv.Itoa(up.Artifact.DurationSeconds)); err != nil {
			return err
		}
	}
	return w.Close()
}
