package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/download"
)

// ErrNoServer is returned by commands that need server.api_url.
var ErrNoServer = errors.New("no server configured (set server.api_url or MEETAUDIO_API_URL)")

func NewDownloadCmd(deps *Dependencies) *cobra.Command {
	var (
		name string
		dir  string
	)
	cmd := &cobra.Command{
		Use:   "download <recording-id>",
		Short: "Download a stored recording",
		Long:  "Fetch a recording from the server and save it locally. The extension follows the content type the server reports.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRemoteClient(deps.Config, deps.Diag)
			if err != nil {
				return err
			}
			if client == nil {
				return ErrNoServer
			}
			if dir == "" {
				dir = deps.Config.Storage.DownloadDir
			}

			saver := download.NewFileSaver(dir)
			saver.WriteSidecar = deps.Config.Storage.WriteSidecar
			m := download.NewManager(client, saver)
			m.SetLogger(deps.Diag)

			path, err := m.Download(cmd.Context(), args[0], name)
			if err != nil {
				return fmt.Errorf("download %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "file name without extension (default recording-<id>)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "target directory (default storage.download_dir)")
	return cmd
}
