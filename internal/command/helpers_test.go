package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/appconfig"
	"pkt.systems/zowe/internal/jobs"
	"pkt.systems/zowe/internal/zosmf"
	"pkt.systems/zowe/schema"
)

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
	Raw     string
}

type logCapture struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func newLogContext(t *testing.T) (context.Context, *logCapture) {
	t.Helper()
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	return pslog.ContextWithLogger(context.Background(), logger), capture
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.buf.Write(p)
	for {
		data := c.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		c.lines = append(c.lines, string(data[:idx]))
		c.buf.Next(idx + 1)
	}
	return len(p), nil
}

func (c *logCapture) Entries() []logEntry {
	c.mu.Lock()
	lines := make([]string, len(c.lines))
	copy(lines, c.lines)
	c.mu.Unlock()
	entries := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLogEntry(line))
	}
	return entries
}

func parseLogEntry(line string) logEntry {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return logEntry{Raw: line}
	}
	level := ""
	if value, ok := payload["level"].(string); ok {
		level = value
	} else if value, ok := payload["lvl"].(string); ok {
		level = value
	}
	message := ""
	if value, ok := payload["message"].(string); ok {
		message = value
	} else if value, ok := payload["msg"].(string); ok {
		message = value
	}
	return logEntry{Level: level, Message: message, Fields: payload, Raw: line}
}

func hasAuditCommand(entries []logEntry, command string) bool {
	for _, entry := range entries {
		if entry.Level != "debug" || entry.Message != "audit command" {
			continue
		}
		if value, _ := entry.Fields["command"].(string); value == command {
			return true
		}
	}
	return false
}

// fakeJobs serves a submitted job whose status advances on every poll.
type fakeJobs struct {
	mu        sync.Mutex
	submitted []byte
	opts      jobs.SubmitOptions
	statuses  []schema.JobStatus
	polls     int
	err       error
}

func (f *fakeJobs) SubmitJCL(_ context.Context, jcl []byte, opts jobs.SubmitOptions) (schema.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return schema.Job{}, f.err
	}
	f.submitted = append([]byte(nil), jcl...)
	f.opts = opts
	return schema.Job{JobID: "JOB00042", JobName: "IEFBR14", Status: schema.JobStatusInput}, nil
}

func (f *fakeJobs) GetStatus(_ context.Context, jobname, jobid string) (schema.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return schema.Job{}, f.err
	}
	status := schema.JobStatusOutput
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	job := schema.Job{JobID: jobid, JobName: jobname, Status: status}
	if status == schema.JobStatusOutput {
		rc := "CC 0000"
		job.RetCode = &rc
	}
	return job, nil
}

func (f *fakeJobs) GetStatusByID(ctx context.Context, jobid string) (schema.Job, error) {
	return f.GetStatus(ctx, "IEFBR14", jobid)
}

func (f *fakeJobs) Submitted() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.submitted)
}

func (f *fakeJobs) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakePrompter answers prompts in order and records whether each was secure.
type fakePrompter struct {
	replies []string
	secure  []bool
}

func (p *fakePrompter) Prompt(_ context.Context, _ string, secure bool) (string, error) {
	p.secure = append(p.secure, secure)
	if len(p.replies) == 0 {
		return "", errors.New("no reply")
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}

type fakePIDReader struct {
	record schema.DaemonPID
	ok     bool
	err    error
}

func (f fakePIDReader) Path() string {
	return "/tmp/daemon_pid.json"
}

func (f fakePIDReader) Read(string) (schema.DaemonPID, bool, error) {
	return f.record, f.ok, f.err
}

type testEngine struct {
	engine   *Engine
	jobs     *fakeJobs
	sessions []zosmf.Session
}

func newTestEngine(t *testing.T, api *fakeJobs) *testEngine {
	t.Helper()
	te := &testEngine{jobs: api}
	settings, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	te.engine = New(Config{
		Settings: settings,
		Home:     t.TempDir(),
		Owner:    "ibmuser",
		Jobs: func(session zosmf.Session) (JobsAPI, error) {
			te.sessions = append(te.sessions, session)
			return api, nil
		},
		Sleeper: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	return te
}

func connEnv() map[string]string {
	return map[string]string{
		"ZOWE_OPT_HOST":     "zosmf.example.com",
		"ZOWE_OPT_USER":     "ibmuser",
		"ZOWE_OPT_PASSWORD": "secret",
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (te *testEngine) run(ctx context.Context, t *testing.T, inv Invocation) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	inv.Stdout = &stdout
	inv.Stderr = &stderr
	if inv.Cwd == "" {
		inv.Cwd = t.TempDir()
	}
	code := te.engine.Run(ctx, inv)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}
