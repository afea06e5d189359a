package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/ipc"
)

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorder state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			pid, running := deps.daemonPID()

			snap, err := deps.Dir.ReadStatus()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					if asJSON {
						return json.NewEncoder(out).Encode(map[string]interface{}{"running": running})
					}
					fmt.Fprintln(out, "No status yet (daemon never ran).")
					return nil
				}
				return fmt.Errorf("read status: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Running bool `json:"running"`
					*ipc.StatusSnapshot
				}{running, snap})
			}

			if running {
				fmt.Fprintf(out, "Daemon:   running (PID %d)\n", pid)
			} else {
				fmt.Fprintln(out, "Daemon:   not running (last known state below)")
			}
			printStatus(out, snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status snapshot")
	return cmd
}

func printStatus(w io.Writer, s *ipc.StatusSnapshot) {
	fmt.Fprintf(w, "State:    %s\n", s.State)
	if s.SessionID != "" {
		fmt.Fprintf(w, "Session:  %s\n", s.SessionID)
	}
	fmt.Fprintf(w, "Duration: %s\n", formatSeconds(s.DurationSeconds))
	if s.MimeType != "" {
		fmt.Fprintf(w, "Format:   %s\n", s.MimeType)
	}
	if s.Bytes > 0 {
		fmt.Fprintf(w, "Size:     %d bytes in %d chunks\n", s.Bytes, s.Chunks)
	}
	if s.SavedPath != "" {
		fmt.Fprintf(w, "Saved:    %s\n", s.SavedPath)
	}
	if s.UploadID != "" {
		fmt.Fprintf(w, "Uploaded: %s\n", s.UploadID)
	}
	if s.PlayerURL != "" && s.HasArtifact {
		fmt.Fprintf(w, "Preview:  %s\n", s.PlayerURL)
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", s.LastError)
	}
	if s.CommandError != "" {
		fmt.Fprintf(w, "Command:  %s failed: %s\n", s.LastAction, s.CommandError)
	}
}

// formatSeconds renders whole seconds as m:ss or h:mm:ss.
func formatSeconds(n int) string {
	d := time.Duration(n) * time.Second
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := n % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
