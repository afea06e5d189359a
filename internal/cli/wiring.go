package cli

import (
	"time"

	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/capture/ffmpeg"
	"github.com/tiroq/meetaudio/internal/config"
	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/remote"
)

// newRemoteClient returns nil when no server is configured.
func newRemoteClient(cfg *config.Config, diag *diaglog.Logger) (*remote.Client, error) {
	if cfg.Server.APIURL == "" {
		return nil, nil
	}
	client, err := remote.NewClient(remote.Config{
		BaseURL:        cfg.Server.APIURL,
		Token:          cfg.Server.Token,
		TimeoutSeconds: cfg.Server.TimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}
	client.SetLogger(diag)
	return client, nil
}

func ffmpegConfig(cfg *config.Config) ffmpeg.Config {
	return ffmpeg.Config{
		BinaryPath:  cfg.Capture.FFmpegPath,
		InputFormat: cfg.Capture.InputFormat,
		InputDevice: cfg.Capture.InputDevice,
	}
}

// newCaptureController builds the ffmpeg-backed capture controller.
func newCaptureController(cfg *config.Config, objects *objecturl.Registry, diag *diaglog.Logger) (*capture.Controller, *ffmpeg.Encoder) {
	fc := ffmpegConfig(cfg)
	devices := ffmpeg.NewDevices(fc)
	devices.SetLogger(diag)
	encoder := ffmpeg.NewEncoder(fc)
	encoder.SetLogger(diag)

	ctrl := capture.NewController(capture.Options{
		Devices: devices,
		Encoder: encoder,
		Objects: objects,
		Constraints: capture.Constraints{
			EchoCancellation: cfg.Capture.EchoCancellation,
			NoiseSuppression: cfg.Capture.NoiseSuppression,
			SampleRate:       cfg.Capture.SampleRate,
			ChannelCount:     cfg.Capture.Channels,
		},
		MimeTypes:     cfg.Capture.MimeTypes,
		BitsPerSecond: cfg.Capture.BitsPerSecond,
		Timeslice:     time.Duration(cfg.Capture.TimesliceMs) * time.Millisecond,
	})
	ctrl.SetLogger(diag)
	return ctrl, encoder
}
