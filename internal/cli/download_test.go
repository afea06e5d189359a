package cli

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetaudio/internal/remote"
)

func recordingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/recordings/rec-7/download" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mp4")
		_, _ = w.Write([]byte("m4a-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadCommand(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.Server.APIURL = recordingServer(t).URL
	deps.Config.Storage.WriteSidecar = false
	dir := t.TempDir()

	out, err := execute(t, deps, "download", "rec-7", "--name", "Team Sync", "--dir", dir)
	require.NoError(t, err)

	want := filepath.Join(dir, "Team-Sync.m4a")
	assert.Equal(t, "Saved: "+want+"\n", out)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "m4a-bytes", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "sidecar disabled")
}

func TestDownloadUsesConfiguredDir(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.Server.APIURL = recordingServer(t).URL
	deps.Config.Storage.DownloadDir = t.TempDir()

	_, err := execute(t, deps, "download", "rec-7")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(deps.Config.Storage.DownloadDir, "recording-rec-7.m4a"))
	assert.FileExists(t, filepath.Join(deps.Config.Storage.DownloadDir, "recording-rec-7.meta.json"))
}

func TestDownloadNotFound(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.Server.APIURL = recordingServer(t).URL
	dir := t.TempDir()

	_, err := execute(t, deps, "download", "missing", "--dir", dir)
	require.ErrorIs(t, err, remote.ErrNotFound)
	assert.Contains(t, err.Error(), "download missing")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadWithoutServer(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.Server.APIURL = ""
	_, err := execute(t, deps, "download", "rec-7")
	require.ErrorIs(t, err, ErrNoServer)
}
