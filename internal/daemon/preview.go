package daemon

import (
	"context"
	"fmt"

	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/remote"
)

// ArtifactFetcher serves the finished capture artifact as a recording whose
// id is the capture session id, so the preview page goes through the same
// playback path as remote recordings.
type ArtifactFetcher struct {
	Capture *capture.Controller
}

var _ remote.Fetcher = ArtifactFetcher{}

// FetchRecording implements remote.Fetcher.
func (f ArtifactFetcher) FetchRecording(ctx context.Context, id string) (*remote.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", remote.ErrFetchFailed, err)
	}
	st := f.Capture.Status()
	a := f.Capture.Artifact()
	if a == nil || st.SessionID != id {
		return nil, fmt.Errorf("recording %s: %w", id, remote.ErrNotFound)
	}
	return &remote.Payload{Data: a.Data, ContentType: a.ContentType()}, nil
}
