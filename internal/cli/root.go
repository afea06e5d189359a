// Package cli implements the meetaudio command tree.
package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/config"
	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/ipc"
	"github.com/tiroq/meetaudio/internal/pidfile"
)

// AppName names the pid file and log prefix.
const AppName = "meetaudio"

// Dependencies are shared by every command.
type Dependencies struct {
	Config  *config.Config
	Dir     ipc.Dir
	Version string
	// Diag is the NDJSON diagnostic logger; nil disables it.
	Diag *diaglog.Logger
	// DaemonPID reports the running daemon, if any.
	DaemonPID func() (int, bool)
}

// PIDPath is the daemon pid file.
func (d *Dependencies) PIDPath() string {
	return pidfile.Path(string(d.Dir), AppName)
}

func (d *Dependencies) daemonPID() (int, bool) {
	if d.DaemonPID != nil {
		return d.DaemonPID()
	}
	return pidfile.Running(d.PIDPath())
}

// NewLogger returns the console logger used by long-running commands.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, Prefix: AppName})
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "Record meeting audio, upload it and play it back",
		Long:          "meetaudio captures the microphone through ffmpeg with pause/resume-aware duration accounting, uploads finished recordings to the meeting service and plays stored recordings back in the browser.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = deps.Version

	rootCmd.AddCommand(NewDaemonCmd(deps))
	for _, c := range NewControlCmds(deps) {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewDownloadCmd(deps))
	rootCmd.AddCommand(NewPlayCmd(deps))
	rootCmd.AddCommand(NewDiagCmd(deps))

	return rootCmd
}
