package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/jobs"
	"pkt.systems/zowe/internal/logx"
	"pkt.systems/zowe/internal/teamconfig"
	"pkt.systems/zowe/internal/zosmf"
	"pkt.systems/zowe/schema"
)

var (
	// ErrNoStdin indicates a command needed piped input and got none.
	ErrNoStdin = errors.New("no JCL was provided on stdin")
	// ErrWaitConflict rejects asking for two target statuses at once.
	ErrWaitConflict = errors.New("--wait-for-active and --wait-for-output are mutually exclusive")
)

type connFlags struct {
	host               string
	port               int
	user               string
	password           string
	protocol           string
	basePath           string
	rejectUnauthorized bool
	zosmfProfile       string
	baseProfile        string
}

func (f *connFlags) register(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVarP(&f.host, "host", "H", "", "z/OSMF host name")
	fs.IntVarP(&f.port, "port", "P", 0, "z/OSMF port")
	fs.StringVarP(&f.user, "user", "u", "", "mainframe user name")
	fs.StringVar(&f.password, "password", "", "mainframe password")
	fs.StringVar(&f.protocol, "protocol", "", "http or https")
	fs.StringVar(&f.basePath, "base-path", "", "path prefix of the z/OSMF REST API")
	fs.BoolVar(&f.rejectUnauthorized, "reject-unauthorized", true, "reject self-signed certificates")
	fs.StringVar(&f.zosmfProfile, "zosmf-profile", "", "zosmf profile to connect with")
	fs.StringVar(&f.baseProfile, "base-profile", "", "base profile to connect with")
}

func (f *connFlags) overrides(cmd *cobra.Command) teamconfig.Overrides {
	o := teamconfig.Overrides{
		Host:     f.host,
		Port:     f.port,
		User:     f.user,
		Password: f.password,
		Protocol: f.protocol,
		BasePath: f.basePath,
	}
	if cmd.Flags().Changed("reject-unauthorized") {
		reject := f.rejectUnauthorized
		o.RejectUnauthorized = &reject
	}
	return o
}

type outputFlags struct {
	rfj bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&f.rfj, "rfj", false, "produce JSON formatted output")
}

func (e *Engine) newJobsCmd(inv *Invocation) *cobra.Command {
	conn := &connFlags{}
	out := &outputFlags{}
	cmd := &cobra.Command{
		Use:     "zos-jobs",
		Aliases: []string{"jobs"},
		Short:   "Manage z/OS jobs",
	}
	conn.register(cmd)
	out.register(cmd)
	cmd.AddCommand(e.newSubmitCmd(inv, conn, out))
	cmd.AddCommand(e.newViewCmd(inv, conn, out))
	return cmd
}

type submitFlags struct {
	waitForActive bool
	waitForOutput bool
	recordFormat  string
	recordLength  int
}

func (e *Engine) newSubmitCmd(inv *Invocation, conn *connFlags, out *outputFlags) *cobra.Command {
	flags := &submitFlags{}
	cmd := &cobra.Command{
		Use:     "submit",
		Aliases: []string{"sub"},
		Short:   "Submit a job",
	}
	fs := cmd.PersistentFlags()
	fs.BoolVar(&flags.waitForActive, "wait-for-active", false, "wait for the job to enter ACTIVE status")
	fs.BoolVar(&flags.waitForOutput, "wait-for-output", false, "wait for the job to enter OUTPUT status")
	fs.StringVar(&flags.recordFormat, "record-format", "", "record format of the JCL (F or V)")
	fs.IntVar(&flags.recordLength, "record-length", 0, "logical record length of the JCL")

	cmd.AddCommand(&cobra.Command{
		Use:     "stdin",
		Aliases: []string{"in"},
		Short:   "Submit JCL read from stdin",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inv.Stdin == nil {
				return out.fail(cmd, ErrNoStdin)
			}
			jcl, err := io.ReadAll(inv.Stdin)
			if err != nil {
				return out.fail(cmd, fmt.Errorf("read stdin: %w", err))
			}
			return e.submit(cmd, inv, conn, out, flags, jcl)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "local-file <file>",
		Aliases: []string{"lf"},
		Short:   "Submit JCL from a local file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jcl, err := os.ReadFile(resolvePath(inv.Cwd, args[0]))
			if err != nil {
				return out.fail(cmd, err)
			}
			return e.submit(cmd, inv, conn, out, flags, jcl)
		},
	})
	return cmd
}

func (e *Engine) submit(cmd *cobra.Command, inv *Invocation, conn *connFlags, out *outputFlags, flags *submitFlags, jcl []byte) error {
	if flags.waitForActive && flags.waitForOutput {
		return out.fail(cmd, ErrWaitConflict)
	}
	ctx := cmd.Context()
	api, err := e.openJobs(ctx, cmd, inv, conn)
	if err != nil {
		return out.fail(cmd, err)
	}
	job, err := api.SubmitJCL(ctx, jcl, jobs.SubmitOptions{
		Recfm: flags.recordFormat,
		Lrecl: flags.recordLength,
	})
	if err != nil {
		return out.fail(cmd, err)
	}
	log := logx.WithJob(pslog.Ctx(ctx), job.JobName, job.JobID)
	log.Info("zos-jobs submitted")

	target := schema.JobStatus("")
	switch {
	case flags.waitForActive:
		target = schema.JobStatusActive
	case flags.waitForOutput:
		target = schema.JobStatusOutput
	}
	if target != "" {
		job, err = jobs.WaitForStatus(ctx, api, job.JobName, job.JobID, e.waitOptions(target)...)
		if err != nil {
			return out.fail(cmd, err)
		}
	}
	return out.job(cmd, job, fmt.Sprintf("Submitted job %s", job.JobID))
}

func (e *Engine) waitOptions(target schema.JobStatus) []jobs.WaitOption {
	settings := e.cfg.Settings.Jobs
	opts := []jobs.WaitOption{
		jobs.WithStatus(target),
		jobs.WithDelay(settings.WatchDelay()),
	}
	if settings.MaxAttempts > 0 {
		opts = append(opts, jobs.WithMaxAttempts(settings.MaxAttempts))
	} else {
		opts = append(opts, jobs.WithUnboundedAttempts())
	}
	if e.cfg.Sleeper != nil {
		opts = append(opts, jobs.WithSleeper(e.cfg.Sleeper))
	}
	return opts
}

func (e *Engine) newViewCmd(inv *Invocation, conn *connFlags, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "view",
		Aliases: []string{"vw"},
		Short:   "View details of a z/OS job",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "job-status-by-jobid <jobid>",
		Aliases: []string{"js"},
		Short:   "View the status of a job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api, err := e.openJobs(ctx, cmd, inv, conn)
			if err != nil {
				return out.fail(cmd, err)
			}
			job, err := api.GetStatusByID(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return out.fail(cmd, err)
			}
			return out.job(cmd, job, fmt.Sprintf("Details obtained for job ID %s", job.JobID))
		},
	})
	return cmd
}

func (e *Engine) openJobs(ctx context.Context, cmd *cobra.Command, inv *Invocation, conn *connFlags) (JobsAPI, error) {
	session, err := e.session(ctx, cmd, inv, conn)
	if err != nil {
		return nil, err
	}
	return e.cfg.Jobs(session)
}

func (e *Engine) session(ctx context.Context, cmd *cobra.Command, inv *Invocation, conn *connFlags) (zosmf.Session, error) {
	profiles, err := teamconfig.Load(inv.Cwd, e.cfg.Home)
	if err != nil {
		return zosmf.Session{}, err
	}
	opts := teamconfig.SessionOptions{
		ZOSMFProfile: conn.zosmfProfile,
		BaseProfile:  conn.baseProfile,
		Env:          inv.Env,
		Overrides:    conn.overrides(cmd),
		Timeout:      e.cfg.Settings.ZOSMF.Timeout(),
	}
	if inv.Prompter != nil {
		opts.Complete = func(s *zosmf.Session) error {
			return promptCredentials(ctx, inv.Prompter, s)
		}
	}
	return profiles.Session(opts)
}

func promptCredentials(ctx context.Context, p Prompter, s *zosmf.Session) error {
	if strings.TrimSpace(s.User) == "" {
		user, err := p.Prompt(ctx, fmt.Sprintf("Enter the user name for %s: ", s.Host), false)
		if err != nil {
			return fmt.Errorf("prompt for user: %w", err)
		}
		s.User = strings.TrimSpace(user)
	}
	if s.Password == "" {
		password, err := p.Prompt(ctx, fmt.Sprintf("Enter the password for %s: ", s.User), true)
		if err != nil {
			return fmt.Errorf("prompt for password: %w", err)
		}
		s.Password = password
	}
	return nil
}

func resolvePath(cwd, path string) string {
	if filepath.IsAbs(path) || cwd == "" {
		return path
	}
	return filepath.Join(cwd, path)
}
