package logx

import (
	"context"
	"strconv"
	"strings"

	"pkt.systems/pslog"
)

type contextKey int

const (
	connKey contextKey = iota
	commandKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConn annotates the logger with a daemon connection id.
func WithConn(ctx context.Context, connID string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if connID != "" {
		if current, ok := ctx.Value(connKey).(string); ok && current == connID {
			return log
		}
		log = log.With("conn", connID)
	}
	return log
}

// WithCommand annotates the logger with the command line being executed.
func WithCommand(ctx context.Context, commandLine string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if commandLine != "" {
		if current, ok := ctx.Value(commandKey).(string); ok && current == commandLine {
			return log
		}
		log = log.With("command", commandLine)
	}
	return log
}

// WithJob annotates the logger with job identifiers when available.
func WithJob(log pslog.Logger, jobname, jobid string) pslog.Logger {
	if jobname != "" {
		log = log.With("jobname", jobname)
	}
	if jobid != "" {
		log = log.With("jobid", jobid)
	}
	return log
}

// ContextWithConnLogger attaches the logger and connection marker to the context.
func ContextWithConnLogger(ctx context.Context, log pslog.Logger, connID string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if connID == "" {
		return ctx
	}
	return context.WithValue(ctx, connKey, connID)
}

// ContextWithCommandLogger attaches the logger and command line marker to the context.
func ContextWithCommandLogger(ctx context.Context, log pslog.Logger, commandLine string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if commandLine == "" {
		return ctx
	}
	return context.WithValue(ctx, commandKey, commandLine)
}

// CommandLine returns the command line stored on the context, if any.
func CommandLine(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(commandKey).(string)
	return value
}

// Printable escapes control and non-UTF-8 bytes so untrusted text is safe in
// log lines and terminals.
func Printable(value string) string {
	quoted := strconv.QuoteToGraphic(value)
	quoted = quoted[1 : len(quoted)-1]
	return strings.ReplaceAll(quoted, `\"`, `"`)
}
