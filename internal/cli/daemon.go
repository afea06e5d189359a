package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/daemon"
	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/pidfile"
	"github.com/tiroq/meetaudio/internal/player"
)

func NewDaemonCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the background recorder",
		Long:  "Run the recorder that owns the microphone. Other commands talk to it through the runtime directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := NewLogger(cmd.ErrOrStderr())
			cfg := deps.Config

			logger.Info("===========================================")
			logger.Info("Starting meetaudio daemon", "version", deps.Version, "pid", os.Getpid())

			pf, err := pidfile.New(deps.PIDPath())
			if err != nil {
				if errors.Is(err, pidfile.ErrAlreadyRunning) {
					logger.Error("Another meetaudio daemon may already be running.", "pidfile", deps.PIDPath())
				}
				return err
			}
			defer func() {
				if err := pf.Remove(); err != nil {
					logger.Warn("Failed to remove PID file", "err", err)
				}
			}()

			objects := objecturl.NewRegistry()
			objects.SetLogger(deps.Diag)

			logger.Info("[STARTUP] Probing ffmpeg encoder...")
			ctrl, encoder := newCaptureController(cfg, objects, deps.Diag)
			if err := encoder.Check(); err != nil {
				// Start reports the failure to the user; the daemon stays up.
				logger.Warn("[STARTUP] ffmpeg not usable", "err", err)
			}

			opts := daemon.Options{
				Config:  cfg,
				Dir:     deps.Dir,
				Capture: ctrl,
				Logger:  logger,
				Diag:    deps.Diag,
			}
			client, err := newRemoteClient(cfg, deps.Diag)
			if err != nil {
				return fmt.Errorf("configure server: %w", err)
			}
			if client != nil {
				opts.Uploader = client
				logger.Info("[STARTUP] Uploads enabled", "server", cfg.Server.APIURL, "auto", cfg.Daemon.AutoUpload)
			}
			p := player.New(daemon.ArtifactFetcher{Capture: ctrl}, objects)
			p.SetLogger(deps.Diag)
			opts.Player = p

			d := daemon.New(opts)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("[RUNNING] meetaudio daemon is running", "dir", string(deps.Dir))
			return d.Run(ctx)
		},
	}
	return cmd
}
