package command

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/zowe/internal/appconfig"
	"pkt.systems/zowe/internal/version"
)

func (e *Engine) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI settings",
	}
	var path string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" && e.cfg.Home != "" {
				target = filepath.Join(e.cfg.Home, appconfig.SettingsFile)
			}
			written, err := appconfig.WriteDefault(target, overwrite)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", written)
			return err
		},
	}
	initCmd.Flags().StringVarP(&path, "path", "p", "", "settings file to write")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing settings file")
	cmd.AddCommand(initCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !long {
				_, err := fmt.Fprintf(out, "%s %s\n", version.Module(), version.Current())
				return err
			}
			return printVersionDetails(out, version.Read())
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "include the dirty marker, Go version and vcs revision")
	return cmd
}

func printVersionDetails(w io.Writer, d version.Details) error {
	if _, err := fmt.Fprintf(w, "%s %s\ngo: %s\n", d.Module, d.Version, d.GoVersion); err != nil {
		return err
	}
	if d.Revision != "" {
		if _, err := fmt.Fprintf(w, "revision: %s\n", d.Revision); err != nil {
			return err
		}
	}
	if !d.Built.IsZero() {
		if _, err := fmt.Fprintf(w, "built: %s\n", d.Built.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}
