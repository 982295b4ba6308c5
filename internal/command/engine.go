package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/appconfig"
	"pkt.systems/zowe/internal/daemon"
	"pkt.systems/zowe/internal/jobs"
	"pkt.systems/zowe/internal/logx"
	"pkt.systems/zowe/internal/pidfile"
	"pkt.systems/zowe/internal/zosmf"
	"pkt.systems/zowe/schema"
)

// Prompter asks the user for input on behalf of a running command.
type Prompter interface {
	Prompt(ctx context.Context, message string, secure bool) (string, error)
}

// JobsAPI is the part of the z/OSMF jobs REST API the commands use.
type JobsAPI interface {
	jobs.StatusFetcher
	GetStatusByID(ctx context.Context, jobid string) (schema.Job, error)
	SubmitJCL(ctx context.Context, jcl []byte, opts jobs.SubmitOptions) (schema.Job, error)
}

// JobsFactory opens the jobs API for a resolved session.
type JobsFactory func(session zosmf.Session) (JobsAPI, error)

// PIDReader reads the daemon pid file.
type PIDReader interface {
	Path() string
	Read(user string) (schema.DaemonPID, bool, error)
}

// Config configures the command engine.
type Config struct {
	Settings appconfig.Config
	// Home holds the global team configuration.
	Home string
	// Owner is the identity of the user running commands.
	Owner string
	// InDaemon is set when commands run inside the daemon process.
	InDaemon bool
	PIDFile  PIDReader
	// Alive reports whether a recorded daemon pid is running.
	Alive func(pid int) bool
	Jobs  JobsFactory
	// Sleeper replaces the pause between job status polls.
	Sleeper jobs.Sleeper
}

// Invocation is one command line together with the streams it runs against.
type Invocation struct {
	// Args excludes the program name.
	Args   []string
	Cwd    string
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Prompter is nil when the user cannot be asked for input.
	Prompter Prompter
}

// Engine runs zowe command lines. One engine serves every daemon request.
type Engine struct {
	cfg Config
}

// New constructs a command engine.
func New(cfg Config) *Engine {
	if cfg.Jobs == nil {
		cfg.Jobs = OpenJobs
	}
	if cfg.Alive == nil {
		cfg.Alive = pidfile.Alive
	}
	return &Engine{cfg: cfg}
}

// OpenJobs returns a REST jobs client for session.
func OpenJobs(session zosmf.Session) (JobsAPI, error) {
	rest, err := zosmf.NewClient(session)
	if err != nil {
		return nil, err
	}
	return jobs.NewClient(rest), nil
}

// exitError carries an exit code for a failure the command already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Run executes one command line and returns its exit code.
func (e *Engine) Run(ctx context.Context, inv Invocation) int {
	if inv.Stdout == nil {
		inv.Stdout = io.Discard
	}
	if inv.Stderr == nil {
		inv.Stderr = io.Discard
	}
	commandLine := strings.Join(inv.Args, " ")
	log := logx.WithCommand(ctx, commandLine)
	ctx = logx.ContextWithCommandLogger(ctx, log, commandLine)
	if !e.cfg.Settings.Logging.DisableAuditTrails {
		log.Debug("audit command", "command_type", "zowe", "cwd", inv.Cwd)
	}

	root := e.newRoot(&inv)
	root.SetArgs(inv.Args)
	if inv.Stdin != nil {
		root.SetIn(inv.Stdin)
	}
	root.SetOut(inv.Stdout)
	root.SetErr(inv.Stderr)

	started := time.Now()
	if err := root.ExecuteContext(ctx); err != nil {
		code := 1
		var exit *exitError
		if errors.As(err, &exit) {
			code = exit.code
		} else {
			_, _ = fmt.Fprintf(inv.Stderr, "Error: %v\n", err)
		}
		log.Info("zowe command failed", "err", err, "exit_code", code, "duration", time.Since(started))
		return code
	}
	log.Info("zowe command finished", "duration", time.Since(started))
	return 0
}

// Dispatch runs a command received by the daemon and reports its exit code
// to the client.
func (e *Engine) Dispatch(ctx context.Context, req daemon.Request) {
	inv := Invocation{
		Args:     req.Frame.Argv,
		Cwd:      req.Frame.Cwd,
		Env:      req.Frame.Env,
		Stdin:    req.Stdin,
		Stdout:   req.Out.Stdout(),
		Stderr:   req.Out.Stderr(),
		Prompter: req.Out,
	}
	code := e.Run(ctx, inv)
	if err := req.Out.Exit(code); err != nil {
		pslog.Ctx(ctx).Debug("daemon exit write failed", "err", err)
	}
}

func (e *Engine) newRoot(inv *Invocation) *cobra.Command {
	root := &cobra.Command{
		Use:           "zowe",
		Short:         "Zowe CLI for z/OSMF",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(e.newJobsCmd(inv))
	root.AddCommand(e.newDaemonCmd(inv))
	root.AddCommand(e.newConfigCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(e.newClientCmd(inv))
	return root
}
