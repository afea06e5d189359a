package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/ipc"
)

// ErrDaemonNotRunning is returned by control commands when no daemon owns
// the runtime directory.
var ErrDaemonNotRunning = errors.New("meetaudio daemon is not running (start it with `meetaudio daemon`)")

// statusPoll is how often --wait re-reads status.json.
const statusPoll = 100 * time.Millisecond

var controlSpecs = []struct {
	cmd   ipc.Command
	short string
	wait  time.Duration
}{
	{ipc.CmdStart, "Start recording", 15 * time.Second},
	{ipc.CmdPause, "Pause the recording", 5 * time.Second},
	{ipc.CmdResume, "Resume a paused recording", 5 * time.Second},
	{ipc.CmdStop, "Stop recording and keep the result", 30 * time.Second},
	{ipc.CmdClear, "Discard the recording and release the microphone", 5 * time.Second},
	{ipc.CmdQuit, "Stop the daemon", 0},
}

// NewControlCmds returns one command per daemon verb plus upload.
func NewControlCmds(deps *Dependencies) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(controlSpecs)+1)
	for _, spec := range controlSpecs {
		cmds = append(cmds, newControlCmd(deps, spec.cmd, spec.short, spec.wait))
	}
	return append(cmds, newUploadCmd(deps))
}

func newControlCmd(deps *Dependencies, c ipc.Command, short string, defaultWait time.Duration) *cobra.Command {
	wait := defaultWait
	cmd := &cobra.Command{
		Use:   string(c),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := send(cmd.Context(), deps, ipc.Request{Cmd: c}, wait)
			if err != nil || snap == nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), snap)
			if snap.CommandError != "" {
				return fmt.Errorf("%s failed: %s", c, snap.CommandError)
			}
			return nil
		},
	}
	if defaultWait > 0 {
		cmd.Flags().DurationVar(&wait, "wait", defaultWait, "wait up to this long for the daemon to apply the command (0 to return immediately)")
	}
	return cmd
}

func newUploadCmd(deps *Dependencies) *cobra.Command {
	wait := 2 * time.Minute
	cmd := &cobra.Command{
		Use:   "upload [meeting-id]",
		Short: "Upload the finished recording to a meeting",
		Long:  "Upload the finished recording. Without a meeting id the configured daemon.meeting_id is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.Request{Cmd: ipc.CmdUpload}
			if len(args) == 1 {
				req.Arg = args[0]
			}
			snap, err := send(cmd.Context(), deps, req, wait)
			if err != nil || snap == nil {
				return err
			}
			if snap.CommandError != "" {
				return fmt.Errorf("upload failed: %s", snap.CommandError)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded: %s\n", snap.UploadID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", wait, "wait up to this long for the upload to finish (0 to return immediately)")
	return cmd
}

// send drops req for the daemon and, when wait > 0, polls status.json until
// the daemon reports having handled it. A nil snapshot means the command was
// not waited for.
func send(ctx context.Context, deps *Dependencies, req ipc.Request, wait time.Duration) (*ipc.StatusSnapshot, error) {
	if _, ok := deps.daemonPID(); !ok {
		return nil, ErrDaemonNotRunning
	}
	sentAt := time.Now()
	if err := deps.Dir.WriteCommand(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Cmd, err)
	}
	if wait <= 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(statusPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("daemon did not confirm %s: %w", req.Cmd, ctx.Err())
		case <-ticker.C:
			snap, err := deps.Dir.ReadStatus()
			if err != nil {
				continue
			}
			if snap.LastAction == string(req.Cmd) && snap.ActionAt.After(sentAt) {
				return snap, nil
			}
		}
	}
}
