package command

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/zowe/internal/daemon"
)

// ErrNestedClient indicates the daemon was asked to run the daemon client.
var ErrNestedClient = errors.New("the daemon client cannot run inside the Zowe daemon")

func (e *Engine) newDaemonCmd(inv *Invocation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect and control the Zowe daemon",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.PIDFile == nil {
				return errors.New("daemon directory is not configured")
			}
			out := cmd.OutOrStdout()
			record, ok, err := e.cfg.PIDFile.Read(e.cfg.Owner)
			if err != nil {
				return err
			}
			if !ok || !e.cfg.Alive(record.PID) {
				_, err = fmt.Fprintln(out, "The Zowe daemon is not running.")
				return err
			}
			_, err = fmt.Fprintf(out, "The Zowe daemon is running with pid %d on port %d.\n", record.PID, e.port(inv))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := daemon.NewClient(e.port(inv), e.cfg.Owner, daemon.WithStreams(nil, cmd.OutOrStdout(), cmd.ErrOrStderr()))
			code, err := client.Shutdown(cmd.Context())
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code, err: fmt.Errorf("daemon stop exited with %d", code)}
			}
			return nil
		},
	})
	return cmd
}

// newClientCmd forwards its arguments to the running daemon.
func (e *Engine) newClientCmd(inv *Invocation) *cobra.Command {
	return &cobra.Command{
		Use:                daemon.ClientCommand + " [args...]",
		Short:              "Run a command through the Zowe daemon",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.InDaemon {
				return ErrNestedClient
			}
			payload, err := readPayload(inv.Stdin)
			if err != nil {
				return err
			}
			client := daemon.NewClient(e.port(inv), e.cfg.Owner, daemon.WithStreams(inv.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr()))
			code, err := client.Run(cmd.Context(), args, inv.Cwd, inv.Env, payload)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code, err: fmt.Errorf("daemon command exited with %d", code)}
			}
			return nil
		},
	}
}

func (e *Engine) port(inv *Invocation) int {
	return daemon.PortFromEnv(func(key string) string {
		return inv.Env[key]
	})
}

func readPayload(r io.Reader) ([]byte, error) {
	switch in := r.(type) {
	case nil:
		return nil, nil
	case *os.File:
		return daemon.ReadPayload(in)
	default:
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
}
