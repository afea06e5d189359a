package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/diaglog"
)

func NewDiagCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Diagnostic log tools",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Bundle the diagnostic log for a bug report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			diaglog.Version = deps.Version
			path, n, err := diaglog.Export(diaglog.LogPath(), out)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("%w (hint: run with %s=true to enable logging)", err, diaglog.EnvDebug)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote: %s (%d lines)\n", path, n)
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", ".", "directory for the bundle")
	cmd.AddCommand(export)
	return cmd
}
