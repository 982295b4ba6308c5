package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/logx"
	"pkt.systems/zowe/schema"
)

// DefaultWatchDelay is the pause between two status polls.
const DefaultWatchDelay = 3 * time.Second

var (
	// ErrInvalidWaitOptions indicates WaitForStatus was called with bad parameters.
	ErrInvalidWaitOptions = errors.New("invalid wait options")
	// ErrUnknownStatus indicates z/OSMF reported a status outside INPUT, ACTIVE, OUTPUT.
	ErrUnknownStatus = errors.New("unknown job status")
	// ErrMaxAttempts indicates the job never reached the requested status.
	ErrMaxAttempts = errors.New("max poll attempts reached")
)

// StatusFetcher returns the current state of a job.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobname, jobid string) (schema.Job, error)
}

// Sleeper pauses between polls. It returns early with ctx.Err() when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// WaitOption customizes WaitForStatus.
type WaitOption func(*waitOptions)

type waitOptions struct {
	status      schema.JobStatus
	maxAttempts int
	unbounded   bool
	delay       time.Duration
	sleep       Sleeper
}

// WithStatus sets the status to wait for. The default is OUTPUT.
func WithStatus(status schema.JobStatus) WaitOption {
	return func(o *waitOptions) { o.status = status }
}

// WithMaxAttempts bounds the number of status polls.
func WithMaxAttempts(n int) WaitOption {
	return func(o *waitOptions) {
		o.maxAttempts = n
		o.unbounded = false
	}
}

// WithUnboundedAttempts polls until the status is reached. This is the default.
func WithUnboundedAttempts() WaitOption {
	return func(o *waitOptions) {
		o.maxAttempts = 0
		o.unbounded = true
	}
}

// WithDelay sets the pause between polls.
func WithDelay(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.delay = d }
}

// WithSleeper replaces the function used to pause between polls.
func WithSleeper(fn Sleeper) WaitOption {
	return func(o *waitOptions) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WaitForOutputStatus waits until job reaches OUTPUT, polling every DefaultWatchDelay.
func WaitForOutputStatus(ctx context.Context, fetcher StatusFetcher, job schema.Job) (schema.Job, error) {
	return WaitForStatus(ctx, fetcher, job.JobName, job.JobID, WithStatus(schema.JobStatusOutput))
}

// WaitForStatus polls fetcher until the job reaches the requested status or
// a later one. Fetch failures and unknown states end the wait immediately.
func WaitForStatus(ctx context.Context, fetcher StatusFetcher, jobname, jobid string, opts ...WaitOption) (schema.Job, error) {
	o := waitOptions{
		status:    schema.JobStatusOutput,
		unbounded: true,
		delay:     DefaultWatchDelay,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateWait(fetcher, jobname, jobid, &o); err != nil {
		return schema.Job{}, err
	}

	log := logx.WithJob(pslog.Ctx(ctx), jobname, jobid)
	log.Info("monitor jobs wait request", "status", o.status, "attempts", attemptsField(o), "delay", o.delay)

	job, err := pollForStatus(ctx, log, fetcher, jobname, jobid, o)
	if err != nil {
		wrapped := fmt.Errorf("error obtaining status for jobname %q jobid %q: %w", jobname, jobid, err)
		log.Error("monitor jobs wait failed", "err", wrapped)
		return schema.Job{}, wrapped
	}
	log.Trace("monitor jobs wait complete", "status", job.Status)
	return job, nil
}

func validateWait(fetcher StatusFetcher, jobname, jobid string, o *waitOptions) error {
	if fetcher == nil {
		return fmt.Errorf("%w: status fetcher is required", ErrInvalidWaitOptions)
	}
	if strings.TrimSpace(jobname) == "" {
		return fmt.Errorf("%w: jobname is required", ErrInvalidWaitOptions)
	}
	if strings.TrimSpace(jobid) == "" {
		return fmt.Errorf("%w: jobid is required", ErrInvalidWaitOptions)
	}
	status, err := ParseStatus(string(o.status))
	if err != nil {
		return err
	}
	o.status = status
	if !o.unbounded && o.maxAttempts < 0 {
		return fmt.Errorf("%w: attempts must be a positive integer, got %d", ErrInvalidWaitOptions, o.maxAttempts)
	}
	if o.delay < 0 {
		return fmt.Errorf("%w: watch delay must be a positive duration, got %s", ErrInvalidWaitOptions, o.delay)
	}
	return nil
}

func pollForStatus(ctx context.Context, log pslog.Logger, fetcher StatusFetcher, jobname, jobid string, o waitOptions) (schema.Job, error) {
	attempt := 0
	for o.unbounded || attempt < o.maxAttempts {
		attempt++
		log.Debug("monitor jobs poll", "status", o.status, "attempt", attempt, "max_attempts", attemptsField(o))

		job, reached, err := checkStatus(ctx, log, fetcher, jobname, jobid, o.status)
		if err != nil {
			return schema.Job{}, err
		}
		if reached {
			log.Debug("monitor jobs status found", "status", job.Status, "attempt", attempt)
			return job, nil
		}
		if !o.unbounded && attempt >= o.maxAttempts {
			break
		}
		log.Trace("monitor jobs sleeping before next poll", "delay", o.delay)
		if err := o.sleep(ctx, o.delay); err != nil {
			return schema.Job{}, err
		}
	}
	return schema.Job{}, fmt.Errorf(`%w: reached max poll attempts of "%d"`, ErrMaxAttempts, o.maxAttempts)
}

func checkStatus(ctx context.Context, log pslog.Logger, fetcher StatusFetcher, jobname, jobid string, want schema.JobStatus) (schema.Job, bool, error) {
	job, err := fetcher.GetStatus(ctx, jobname, jobid)
	if err != nil {
		return schema.Job{}, false, err
	}
	log.Debug("monitor jobs current status", "current", job.Status)
	if _, ok := Order(job.Status); !ok {
		log.Error("monitor jobs unknown status", "current", job.Status)
		return schema.Job{}, false, fmt.Errorf("%w: %q was received", ErrUnknownStatus, job.Status)
	}
	return job, Reached(job.Status, want), nil
}

func attemptsField(o waitOptions) any {
	if o.unbounded {
		return "unbounded"
	}
	return o.maxAttempts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
