// Package download re-fetches a stored recording and saves it locally with
// an extension derived from the served content type.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tiroq/meetaudio/internal/codec"
	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/fileutil"
	"github.com/tiroq/meetaudio/internal/remote"
)

// ErrNoData is returned when the server answers with an empty body.
var ErrNoData = errors.New("download returned no data")

// Saver persists downloaded bytes under a name and extension and returns
// where they ended up.
type Saver interface {
	Save(name, ext string, data []byte) (string, error)
}

// Manager downloads recordings. It holds no per-download state, so a failed
// download leaves nothing behind.
type Manager struct {
	fetcher remote.Fetcher
	saver   Saver

	loggerMu sync.RWMutex
	logger   *diaglog.Logger
}

// NewManager creates a Manager.
func NewManager(fetcher remote.Fetcher, saver Saver) *Manager {
	return &Manager{fetcher: fetcher, saver: saver}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (m *Manager) SetLogger(l *diaglog.Logger) {
	m.loggerMu.Lock()
	m.logger = l
	m.loggerMu.Unlock()
}

func (m *Manager) log(entry diaglog.LogEntry) {
	m.loggerMu.RLock()
	l := m.logger
	m.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentDownload
	}
	l.Log(entry)
}

// Download fetches artifactID and saves it as suggestedName.<ext>. A missing
// recording surfaces remote.ErrNotFound.
func (m *Manager) Download(ctx context.Context, artifactID, suggestedName string) (string, error) {
	m.log(diaglog.LogEntry{
		Event:   diaglog.EventDownloadStart,
		Payload: map[string]interface{}{"artifact_id": artifactID},
	})

	payload, err := m.fetcher.FetchRecording(ctx, artifactID)
	if err != nil {
		m.fail(artifactID, err)
		return "", err
	}
	if len(payload.Data) == 0 {
		m.fail(artifactID, ErrNoData)
		return "", fmt.Errorf("recording %s: %w", artifactID, ErrNoData)
	}

	if suggestedName == "" {
		suggestedName = "recording-" + artifactID
	}
	ext := codec.DownloadExtension(payload.ContentType)

	path, err := m.saver.Save(suggestedName, ext, payload.Data)
	if err != nil {
		m.fail(artifactID, err)
		return "", fmt.Errorf("save recording %s: %w", artifactID, err)
	}

	m.log(diaglog.LogEntry{
		Event: diaglog.EventDownloadDone,
		Payload: map[string]interface{}{
			"artifact_id":  artifactID,
			"content_type": payload.ContentType,
			"ext":          ext,
			"bytes":        len(payload.Data),
			"path":         path,
		},
	})
	return path, nil
}

func (m *Manager) fail(artifactID string, err error) {
	m.log(diaglog.LogEntry{
		Event:   diaglog.EventDownloadFailed,
		Reason:  err.Error(),
		Payload: map[string]interface{}{"artifact_id": artifactID},
	})
}

// FileSaver writes downloads into Dir. Names are sanitised and never
// overwrite an existing file.
type FileSaver struct {
	Dir string
	// WriteSidecar also writes a .meta.json next to the saved file.
	WriteSidecar bool

	mu  sync.Mutex
	now func() time.Time
}

// NewFileSaver creates a FileSaver rooted at dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir, now: time.Now}
}

// Save implements Saver.
func (s *FileSaver) Save(name, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	// mu spans pick and write.
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := fileutil.UniquePath(s.Dir, fileutil.SanitizeForFilename(name), ext)
	if err != nil {
		return "", err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0644); err != nil {
		return "", err
	}

	if s.WriteSidecar {
		now := time.Now
		if s.now != nil {
			now = s.now
		}
		meta := &fileutil.RecordingMetadata{
			Origin:     fileutil.OriginDownload,
			CreatedAt:  now().UTC(),
			MimeType:   codec.ContentTypeFor(ext),
			Bytes:      len(data),
			OutputFile: path,
		}
		if err := fileutil.WriteMetadata(path, meta); err != nil {
			return path, fmt.Errorf("write sidecar: %w", err)
		}
	}
	return path, nil
}
