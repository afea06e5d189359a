package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetaudio/internal/capture"
)

func TestCommandRoundTrip(t *testing.T) {
	d := Dir(t.TempDir())

	require.NoError(t, d.WriteCommand(Request{Cmd: CmdUpload, Arg: "m-42"}))
	req, err := d.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, Request{Cmd: CmdUpload, Arg: "m-42"}, req)

	// Consumed on read.
	req, err = d.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, Request{}, req)
}

func TestReadCommandMissingFile(t *testing.T) {
	d := Dir(filepath.Join(t.TempDir(), "never-created"))
	req, err := d.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, Request{}, req)
}

func TestReadCommandIgnoresUnknown(t *testing.T) {
	d := Dir(t.TempDir())
	require.NoError(t, os.WriteFile(d.CommandPath(), []byte("toggle\n"), 0644))

	req, err := d.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, Request{}, req)
}

func TestWriteCommandRejectsUnknown(t *testing.T) {
	d := Dir(t.TempDir())
	assert.Error(t, d.WriteCommand(Request{Cmd: "toggle"}))
	_, err := os.Stat(d.CommandPath())
	assert.True(t, os.IsNotExist(err))
}

func TestCommandsValid(t *testing.T) {
	for _, c := range []Command{CmdStart, CmdPause, CmdResume, CmdStop, CmdClear, CmdUpload, CmdQuit} {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Command("").Valid())
}

func TestStatusRoundTrip(t *testing.T) {
	d := Dir(filepath.Join(t.TempDir(), "nested"))
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	snap := &StatusSnapshot{
		Status: capture.Status{
			SessionID:       "s-1",
			State:           capture.StatePaused,
			DurationSeconds: 12,
			MimeType:        "audio/webm;codecs=opus",
		},
		PID:        1234,
		LastAction: "pause",
		Timestamp:  ts,
	}

	require.NoError(t, d.WriteStatus(snap))
	got, err := d.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	entries, err := os.ReadDir(string(d))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/xdg-cache")
	assert.Equal(t, Dir(filepath.Join("/xdg-cache", "meetaudio")), DefaultDir())
}
