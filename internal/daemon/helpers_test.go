package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"
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
		MinLevel:      pslog.TraceLevel,
	})
	t.Cleanup(func() {
		if testing.Verbose() {
			for _, line := range capture.Lines() {
				t.Log(line)
			}
		}
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

func (c *logCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() > 0 {
		c.lines = append(c.lines, c.buf.String())
		c.buf.Reset()
	}
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *logCapture) Entries() []logEntry {
	lines := c.Lines()
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

func findLogs(entries []logEntry, message string) []logEntry {
	var out []logEntry
	for _, entry := range entries {
		if entry.Message == message {
			out = append(out, entry)
		}
	}
	return out
}

func requireLog(t *testing.T, entries []logEntry, level, message string) logEntry {
	t.Helper()
	for _, entry := range entries {
		if entry.Level == level && entry.Message == message {
			return entry
		}
	}
	t.Fatalf("expected log level=%q message=%q; got %d entries", level, message, len(entries))
	return logEntry{}
}

// fakeConn records writes and never yields input.
type fakeConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	closes int
}

func (c *fakeConn) Read([]byte) (int, error) { return 0, io.EOF }

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return 0, net.ErrClosed
	}
	return c.out.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) responses(t *testing.T) []schema.DaemonResponse {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.out.Bytes()...)
	c.mu.Unlock()
	return splitResponses(t, data)
}

func splitResponses(t *testing.T, data []byte) []schema.DaemonResponse {
	t.Helper()
	var out []schema.DaemonResponse
	for _, part := range bytes.Split(data, []byte{byte(schema.EndOfWord)}) {
		if len(part) == 0 {
			continue
		}
		var resp schema.DaemonResponse
		if err := json.Unmarshal(part, &resp); err != nil {
			t.Fatalf("decode response %q: %v", part, err)
		}
		out = append(out, resp)
	}
	return out
}

type fakeServer struct {
	mu     sync.Mutex
	closes int
}

func (s *fakeServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakePIDFile struct {
	path    string
	err     error
	removes int
}

func (p *fakePIDFile) Path() string { return p.path }

func (p *fakePIDFile) Remove() error {
	p.removes++
	return p.err
}

type dispatched struct {
	req   Request
	stdin []byte
	err   error
}

// recordingDispatcher stores every request, drains its stdin, and exits 0.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req Request) {
	call := dispatched{req: req}
	if req.Stdin != nil {
		call.stdin, call.err = io.ReadAll(req.Stdin)
	}
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
	_ = req.Out.Exit(0)
}

func (d *recordingDispatcher) Calls() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.calls...)
}

func frameBytes(t *testing.T, frame schema.DaemonRequest, payload []byte) []byte {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if payload != nil {
		data = append(data, byte(schema.EndOfWord))
		data = append(data, payload...)
	}
	return data
}

func commandFrame(owner string, argv ...string) schema.DaemonRequest {
	return schema.DaemonRequest{
		Argv: argv,
		Cwd:  "fake",
		User: EncodeUser(owner),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func netPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

// readResponses reads n response frames from conn.
func readResponses(t *testing.T, conn net.Conn, n int) []schema.DaemonResponse {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)
	var out []schema.DaemonResponse
	for len(out) < n {
		raw, err := reader.ReadBytes(byte(schema.EndOfWord))
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		out = append(out, splitResponses(t, raw)...)
	}
	return out
}
