package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/zowe/schema"
)

// DefaultDialTimeout bounds the connection attempt to the daemon.
const DefaultDialTimeout = 5 * time.Second

// ErrVersionMismatch indicates the daemon answered with frames the client
// does not understand.
var ErrVersionMismatch = errors.New("you may be running mismatched versions of the Zowe executable and the Zowe daemon")

// Client is the foreground side of the daemon protocol.
type Client struct {
	port        int
	user        string
	stdin       *bufio.Reader
	stdout      io.Writer
	stderr      io.Writer
	readSecret  func() (string, error)
	dialTimeout time.Duration
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithStreams sets the terminal streams prompts and output use.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) ClientOption {
	return func(c *Client) {
		if stdin != nil {
			c.stdin = bufio.NewReader(stdin)
		}
		if stdout != nil {
			c.stdout = stdout
		}
		if stderr != nil {
			c.stderr = stderr
		}
	}
}

// WithSecretReader sets how secure prompt replies are read.
func WithSecretReader(fn func() (string, error)) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.readSecret = fn
		}
	}
}

// WithDialTimeout bounds the connection attempt.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// NewClient returns a client for the daemon on port, identifying as user.
func NewClient(port int, user string, opts ...ClientOption) *Client {
	c := &Client{
		port:        port,
		user:        user,
		stdin:       bufio.NewReader(os.Stdin),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		dialTimeout: DefaultDialTimeout,
	}
	c.readSecret = func() (string, error) { return TerminalSecret(os.Stdin) }
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run sends one command to the daemon and relays its responses until the
// exit code arrives. payload is sent as the raw stdin of the command.
func (c *Client) Run(ctx context.Context, argv []string, cwd string, env map[string]string, payload []byte) (int, error) {
	frame := schema.DaemonRequest{
		Argv:        argv,
		Cwd:         cwd,
		Env:         env,
		User:        EncodeUser(c.user),
		StdinLength: len(payload),
	}
	return c.talk(ctx, frame, payload)
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) (int, error) {
	ctrlC := schema.CtrlC
	return c.talk(ctx, schema.DaemonRequest{User: EncodeUser(c.user), Stdin: &ctrlC}, nil)
}

func (c *Client) talk(ctx context.Context, frame schema.DaemonRequest, payload []byte) (int, error) {
	log := pslog.Ctx(ctx)
	addr := net.JoinHostPort(ListenHost, strconv.Itoa(c.port))
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 1, fmt.Errorf("connect to the Zowe daemon on %s: %w", addr, err)
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	data, err := json.Marshal(frame)
	if err != nil {
		return 1, fmt.Errorf("encode daemon request: %w", err)
	}
	if len(payload) > 0 {
		data = append(data, byte(schema.EndOfWord))
		data = append(data, payload...)
	}
	log.Debug("daemon client request", "addr", addr, "argv", len(frame.Argv), "stdin_len", len(payload))
	if _, err := conn.Write(data); err != nil {
		return 1, fmt.Errorf("write daemon request: %w", err)
	}
	code, err := c.relay(ctx, conn)
	if err != nil && ctx.Err() != nil {
		return 1, ctx.Err()
	}
	return code, err
}

// relay prints response frames until one carries an exit code or the daemon
// closes the connection.
func (c *Client) relay(ctx context.Context, conn net.Conn) (int, error) {
	reader := bufio.NewReader(conn)
	progress := false
	for {
		raw, err := reader.ReadBytes(byte(schema.EndOfWord))
		if len(raw) > 0 && raw[len(raw)-1] == byte(schema.EndOfWord) {
			raw = raw[:len(raw)-1]
		}
		if len(raw) > 0 {
			var resp schema.DaemonResponse
			if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
				if progress {
					_, _ = c.stderr.Write(raw)
					continue
				}
				return 1, fmt.Errorf("%w: %v", ErrVersionMismatch, jsonErr)
			}
			if resp.Stdout != "" {
				_, _ = io.WriteString(c.stdout, resp.Stdout)
			}
			if resp.Stderr != "" {
				_, _ = io.WriteString(c.stderr, resp.Stderr)
			}
			if resp.Prompt != "" || resp.SecurePrompt != "" {
				if err := c.answer(ctx, conn, resp); err != nil {
					return 1, err
				}
			}
			progress = resp.Progress
			if resp.ExitCode != nil {
				return *resp.ExitCode, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 1, fmt.Errorf("read daemon response: %w", err)
		}
	}
}

func (c *Client) answer(ctx context.Context, conn net.Conn, resp schema.DaemonResponse) error {
	var reply string
	var err error
	if resp.SecurePrompt != "" {
		_, _ = io.WriteString(c.stdout, resp.SecurePrompt)
		reply, err = c.readSecret()
		_, _ = io.WriteString(c.stdout, "\n")
	} else {
		_, _ = io.WriteString(c.stdout, resp.Prompt)
		reply, err = c.stdin.ReadString('\n')
		if errors.Is(err, io.EOF) && reply != "" {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("read prompt reply: %w", err)
	}
	frame := schema.DaemonRequest{User: EncodeUser(c.user), Stdin: &reply}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode prompt reply: %w", err)
	}
	pslog.Ctx(ctx).Trace("daemon client prompt reply", "secure", resp.SecurePrompt != "")
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write prompt reply: %w", err)
	}
	return nil
}

// TerminalSecret reads a line from f without echo.
func TerminalSecret(f *os.File) (string, error) {
	data, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadPayload returns everything piped to f. It returns nil when f is a
// terminal.
func ReadPayload(f *os.File) ([]byte, error) {
	if f == nil || term.IsTerminal(int(f.Fd())) {
		return nil, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
