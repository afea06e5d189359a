package ipc

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/fileutil"
)

// StatusSnapshot is the daemon state published for the CLI.
type StatusSnapshot struct {
	capture.Status

	PID        int       `json:"pid"`
	PlayerURL  string    `json:"player_url,omitempty"`  // page for previewing the last artifact
	SavedPath  string    `json:"saved_path,omitempty"`  // local copy of the last artifact
	UploadID   string    `json:"upload_id,omitempty"`   // server id of the last upload
	LastAction string    `json:"last_action,omitempty"` // last command handled
	ActionAt   time.Time `json:"action_at"`             // when LastAction finished
	// CommandError is why LastAction failed; capture errors stay in
	// Status.LastError.
	CommandError string    `json:"command_error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// WriteStatus persists the snapshot to status.json using atomic write
func (d Dir) WriteStatus(status *StatusSnapshot) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(d.StatusPath(), append(data, '\n'), 0644)
}

// ReadStatus loads the last published snapshot.
func (d Dir) ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(d.StatusPath())
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
