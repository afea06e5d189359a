// Package config loads meetaudio settings from a TOML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment overrides.
const (
	EnvAPIURL      = "MEETAUDIO_API_URL"
	EnvToken       = "MEETAUDIO_TOKEN"
	EnvDownloadDir = "MEETAUDIO_DOWNLOAD_DIR"
	EnvFFmpeg      = "MEETAUDIO_FFMPEG"
	EnvConfigFile  = "MEETAUDIO_CONFIG"
)

// Config is the full meetaudio configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Capture CaptureConfig `toml:"capture"`
	Storage StorageConfig `toml:"storage"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// ServerConfig points at the meeting service that stores recordings.
type ServerConfig struct {
	APIURL         string `toml:"api_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CaptureConfig selects the input device and encoder settings.
type CaptureConfig struct {
	FFmpegPath       string   `toml:"ffmpeg_path"`
	InputFormat      string   `toml:"input_format"`
	InputDevice      string   `toml:"input_device"`
	SampleRate       int      `toml:"sample_rate"`
	Channels         int      `toml:"channels"`
	EchoCancellation bool     `toml:"echo_cancellation"`
	NoiseSuppression bool     `toml:"noise_suppression"`
	BitsPerSecond    int      `toml:"bits_per_second"`
	TimesliceMs      int      `toml:"timeslice_ms"`
	MimeTypes        []string `toml:"mime_types"`
}

// StorageConfig says where recordings land on disk.
type StorageConfig struct {
	RecordingsDir string `toml:"recordings_dir"`
	DownloadDir   string `toml:"download_dir"`
	WriteSidecar  bool   `toml:"write_sidecar"`
}

// DaemonConfig controls the background recorder.
type DaemonConfig struct {
	ListenAddr     string `toml:"listen_addr"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
	// AutoUpload sends every stopped recording to MeetingID.
	AutoUpload bool   `toml:"auto_upload"`
	MeetingID  string `toml:"meeting_id"`
	Title      string `toml:"title"`
	SaveLocal  bool   `toml:"save_local"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home := homeDir()
	return &Config{
		Server: ServerConfig{
			TimeoutSeconds: 120,
		},
		Capture: CaptureConfig{
			SampleRate:       44100,
			Channels:         1,
			EchoCancellation: true,
			NoiseSuppression: true,
			BitsPerSecond:    128000,
			TimesliceMs:      1000,
		},
		Storage: StorageConfig{
			RecordingsDir: filepath.Join(home, "Music", "meetaudio"),
			DownloadDir:   filepath.Join(home, "Downloads"),
			WriteSidecar:  true,
		},
		Daemon: DaemonConfig{
			ListenAddr:     "127.0.0.1:7391",
			PollIntervalMs: 500,
			SaveLocal:      true,
		},
	}
}

// Path returns the config file location: $MEETAUDIO_CONFIG, else
// $XDG_CONFIG_HOME/meetaudio/config.toml, else ~/.config/meetaudio/config.toml.
func Path() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "meetaudio", "config.toml")
	}
	return filepath.Join(homeDir(), ".config", "meetaudio", "config.toml")
}

// Load reads Path(). A missing file yields the defaults; env overrides apply
// either way.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads path over the defaults, applies env overrides and validates.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Storage.RecordingsDir = expandTilde(cfg.Storage.RecordingsDir)
	cfg.Storage.DownloadDir = expandTilde(cfg.Storage.DownloadDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Server.APIURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv(EnvDownloadDir); v != "" {
		cfg.Storage.DownloadDir = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.Capture.FFmpegPath = v
	}
}

// Validate checks Config for validity
func (c *Config) Validate() error {
	if c.Server.APIURL != "" {
		u, err := url.Parse(c.Server.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("server.api_url must be an http(s) URL, got %q", c.Server.APIURL)
		}
	}
	if c.Server.TimeoutSeconds < 0 || c.Server.TimeoutSeconds > 3600 {
		return fmt.Errorf("server.timeout_seconds must be between 0 and 3600, got %d", c.Server.TimeoutSeconds)
	}

	if c.Capture.SampleRate < 8000 || c.Capture.SampleRate > 192000 {
		return fmt.Errorf("capture.sample_rate must be between 8000 and 192000, got %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels < 1 || c.Capture.Channels > 2 {
		return fmt.Errorf("capture.channels must be 1 or 2, got %d", c.Capture.Channels)
	}
	if c.Capture.BitsPerSecond < 8000 || c.Capture.BitsPerSecond > 512000 {
		return fmt.Errorf("capture.bits_per_second must be between 8000 and 512000, got %d", c.Capture.BitsPerSecond)
	}
	if c.Capture.TimesliceMs < 100 || c.Capture.TimesliceMs > 60000 {
		return fmt.Errorf("capture.timeslice_ms must be between 100 and 60000, got %d", c.Capture.TimesliceMs)
	}

	if c.Daemon.PollIntervalMs < 50 || c.Daemon.PollIntervalMs > 10000 {
		return fmt.Errorf("daemon.poll_interval_ms must be between 50 and 10000, got %d", c.Daemon.PollIntervalMs)
	}
	if c.Daemon.AutoUpload {
		if c.Server.APIURL == "" {
			return errors.New("daemon.auto_upload requires server.api_url")
		}
		if c.Daemon.MeetingID == "" {
			return errors.New("daemon.auto_upload requires daemon.meeting_id")
		}
	}
	if c.Daemon.SaveLocal && c.Storage.RecordingsDir == "" {
		return errors.New("daemon.save_local requires storage.recordings_dir")
	}
	return nil
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
