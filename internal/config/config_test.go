package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIURL, EnvToken, EnvDownloadDir, EnvFFmpeg, EnvConfigFile} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Capture, cfg.Capture)
	assert.Equal(t, "127.0.0.1:7391", cfg.Daemon.ListenAddr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
api_url = "https://meet.example.com"
token = "secret"

[capture]
input_format = "alsa"
input_device = "hw:1"
timeslice_ms = 250
mime_types = ["audio/ogg;codecs=opus"]

[daemon]
auto_upload = true
meeting_id = "m-1"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://meet.example.com", cfg.Server.APIURL)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, "alsa", cfg.Capture.InputFormat)
	assert.Equal(t, "hw:1", cfg.Capture.InputDevice)
	assert.Equal(t, 250, cfg.Capture.TimesliceMs)
	assert.Equal(t, []string{"audio/ogg;codecs=opus"}, cfg.Capture.MimeTypes)
	// Unset keys keep their defaults.
	assert.Equal(t, 44100, cfg.Capture.SampleRate)
	assert.True(t, cfg.Daemon.AutoUpload)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
api_url = "https://file.example.com"
`)
	t.Setenv(EnvAPIURL, "http://env.example.com:8080")
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvDownloadDir, "/tmp/dl")
	t.Setenv(EnvFFmpeg, "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com:8080", cfg.Server.APIURL)
	assert.Equal(t, "env-token", cfg.Server.Token)
	assert.Equal(t, "/tmp/dl", cfg.Storage.DownloadDir)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Capture.FFmpegPath)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[capture]
bitrate = 64000
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture.bitrate")
}

func TestLoadFileRejectsMalformed(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(writeConfig(t, "[server\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad url", func(c *Config) { c.Server.APIURL = "ftp://x" }, "server.api_url"},
		{"sample rate", func(c *Config) { c.Capture.SampleRate = 100 }, "capture.sample_rate"},
		{"channels", func(c *Config) { c.Capture.Channels = 6 }, "capture.channels"},
		{"bitrate", func(c *Config) { c.Capture.BitsPerSecond = 1 }, "capture.bits_per_second"},
		{"timeslice", func(c *Config) { c.Capture.TimesliceMs = 120000 }, "capture.timeslice_ms"},
		{"zero timeslice", func(c *Config) { c.Capture.TimesliceMs = 0 }, "capture.timeslice_ms"},
		{"poll", func(c *Config) { c.Daemon.PollIntervalMs = 1 }, "daemon.poll_interval_ms"},
		{"auto upload without url", func(c *Config) {
			c.Daemon.AutoUpload = true
			c.Daemon.MeetingID = "m"
		}, "server.api_url"},
		{"auto upload without meeting", func(c *Config) {
			c.Daemon.AutoUpload = true
			c.Server.APIURL = "https://x.example"
		}, "daemon.meeting_id"},
		{"save without dir", func(c *Config) { c.Storage.RecordingsDir = "" }, "storage.recordings_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Server.APIURL = "https://meet.example.com"
	cfg.Daemon.MeetingID = "m-9"
	cfg.Capture.MimeTypes = []string{"audio/webm"}

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "meetaudio", "config.toml"), Path())

	t.Setenv(EnvConfigFile, "/etc/meetaudio.toml")
	assert.Equal(t, "/etc/meetaudio.toml", Path())
}
