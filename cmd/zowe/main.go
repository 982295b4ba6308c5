package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"pkt.systems/psi"
	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/appconfig"
	"pkt.systems/zowe/internal/command"
	"pkt.systems/zowe/internal/daemon"
	"pkt.systems/zowe/internal/pidfile"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	args := applyArgv0Alias(os.Args)
	mode := daemon.Decide(args, os.Getenv)
	code, err := runOrDispatch(ctx, mode, args)
	if err != nil {
		pslog.Ctx(ctx).With("err", err).Error("zowe command failed")
		return 1
	}
	return code
}

// runOrDispatch serves daemon clients when mode asks for the daemon and
// otherwise runs the command line of this process once.
func runOrDispatch(ctx context.Context, mode daemon.Mode, args []string) (int, error) {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load("")
	if err != nil {
		return 1, err
	}
	home, err := appconfig.CLIHome()
	if err != nil {
		return 1, err
	}
	owner, err := daemon.CurrentUser()
	if err != nil {
		return 1, err
	}
	store, err := pidfile.NewWithLogger(cfg.Daemon.Dir, logger)
	if err != nil {
		return 1, err
	}
	engine := command.New(command.Config{
		Settings: cfg,
		Home:     home,
		Owner:    owner,
		InDaemon: mode.Daemon,
		PIDFile:  store,
	})

	if mode.Daemon {
		srv := daemon.NewServer(mode, daemon.ServerConfig{
			Owner:      owner,
			PIDFile:    store,
			Dispatcher: engine,
		})
		if err := srv.Listen(ctx); err != nil {
			return 1, err
		}
		return 0, srv.Serve(ctx)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return 1, err
	}
	inv := command.Invocation{
		Args:   args[1:],
		Cwd:    cwd,
		Env:    daemon.ZoweEnv(os.Environ()),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if prompter := command.NewTerminalPrompter(os.Stdin, os.Stderr); prompter != nil {
		inv.Prompter = prompter
	}
	return engine.Run(ctx, inv), nil
}

func argv0Alias(base string) string {
	switch base {
	case "zowex", "zowex.exe":
		return daemon.ClientCommand
	default:
		return ""
	}
}

func applyArgv0Alias(args []string) []string {
	if len(args) == 0 {
		return args
	}
	alias := argv0Alias(filepath.Base(args[0]))
	if alias == "" {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], alias)
	out = append(out, args[1:]...)
	return out
}
