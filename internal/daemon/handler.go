package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/acomagu/bufpipe"

	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/logx"
	"pkt.systems/zowe/schema"
)

// Conn is the client side of one daemon connection.
type Conn interface {
	io.ReadWriter
	Close() error
}

// PIDFile is the record of the running daemon, removed on shutdown.
type PIDFile interface {
	Path() string
	Remove() error
}

// Request is one command invocation received from a daemon client.
type Request struct {
	Frame       schema.DaemonRequest
	CommandLine string
	// Stdin streams the raw payload of the frame. It is nil when the frame
	// carries no payload.
	Stdin io.Reader
	Out   *Responder
}

// Dispatcher runs commands received by the daemon. Dispatch must finish the
// request with Out.Exit.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req Request)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, req Request) {
	f(ctx, req)
}

// HandlerConfig configures a connection handler.
type HandlerConfig struct {
	// Owner is the only identity allowed to use the daemon.
	Owner      string
	PIDFile    PIDFile
	Dispatcher Dispatcher
}

type handlerState int

const (
	stateAwaitingFrame handlerState = iota
	stateStreamingStdin
)

func (s handlerState) String() string {
	switch s {
	case stateAwaitingFrame:
		return "awaiting_frame"
	case stateStreamingStdin:
		return "streaming_stdin"
	default:
		return "unknown"
	}
}

// Handler turns the bytes of one connection into dispatched commands.
// Feed is not safe for concurrent use; Serve calls it from a single goroutine.
type Handler struct {
	conn   Conn
	server io.Closer
	cfg    HandlerConfig
	out    *Responder

	state          handlerState
	pending        []byte
	stdin          *bufpipe.PipeWriter
	stdinRemaining int
	closed         bool

	wg           sync.WaitGroup
	closeOnce    sync.Once
	shutdownOnce sync.Once
}

// NewHandler returns a handler for conn. server may be nil, in which case
// shutdown requests are ignored.
func NewHandler(conn Conn, server io.Closer, cfg HandlerConfig) *Handler {
	return &Handler{
		conn:   conn,
		server: server,
		cfg:    cfg,
		out:    NewResponder(conn),
	}
}

// Serve reads the connection until it ends or the handler closes it.
func (h *Handler) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	log := pslog.Ctx(ctx)
	log.Trace("daemon client connected")

	buf := make([]byte, readChunkSize)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 && !h.Feed(ctx, buf[:n]) {
			break
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Trace("daemon client disconnected")
			case h.closed || errors.Is(err, net.ErrClosed):
			default:
				log.Debug("daemon client read failed", "err", err)
			}
			break
		}
	}
	if h.stdin != nil {
		_ = h.stdin.CloseWithError(io.ErrUnexpectedEOF)
	}
	cancel()
	h.Wait()
	h.Close()
	log.Trace("daemon client closed")
}

// Wait blocks until every command dispatched by the handler has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Close closes the client connection.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		_ = h.conn.Close()
	})
}

// Feed processes one chunk read from the connection. It returns false once
// the connection has been closed by the handler.
func (h *Handler) Feed(ctx context.Context, chunk []byte) bool {
	if h.closed {
		return false
	}
	data := chunk
	for len(data) > 0 && !h.closed {
		switch h.state {
		case stateStreamingStdin:
			data = h.streamStdin(ctx, data)
		default:
			h.pending = append(h.pending, data...)
			data = h.awaitFrame(ctx)
		}
	}
	return !h.closed
}

// streamStdin pushes at most the remaining payload bytes into the stdin
// stream and returns the bytes that belong to the next frame.
func (h *Handler) streamStdin(ctx context.Context, data []byte) []byte {
	n := min(len(data), h.stdinRemaining)
	if h.stdin != nil {
		_, _ = h.stdin.Write(data[:n])
	}
	h.stdinRemaining -= n
	if h.stdinRemaining <= 0 {
		if h.stdin != nil {
			_ = h.stdin.Close()
		}
		h.stdin = nil
		h.stdinRemaining = 0
		h.state = stateAwaitingFrame
		pslog.Ctx(ctx).Trace("daemon stdin complete")
	}
	return data[n:]
}

// awaitFrame parses the pending bytes as a request frame. It returns the
// bytes that follow the frame, or nil when more input is needed.
func (h *Handler) awaitFrame(ctx context.Context) []byte {
	buf := h.pending
	dec := json.NewDecoder(bytes.NewReader(buf))
	var frame schema.DaemonRequest
	if err := dec.Decode(&frame); err != nil {
		if incompleteFrame(err) && len(buf) < maxHeaderBytes {
			return nil
		}
		h.rejectFrame(ctx, buf, err)
		return nil
	}
	end := int(dec.InputOffset())
	hasPayload := end < len(buf) && buf[end] == byte(schema.EndOfWord)
	if !hasPayload && frame.StdinLength > 0 && strings.TrimSpace(string(buf[end:])) == "" {
		// The payload delimiter has not arrived yet.
		return nil
	}
	h.pending = nil

	var payload []byte
	if hasPayload {
		payload = buf[end+1:]
	} else {
		payload = bytes.TrimLeft(buf[end:], " \t\r\n")
	}
	return h.handleFrame(ctx, frame, payload, hasPayload)
}

func incompleteFrame(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func (h *Handler) handleFrame(ctx context.Context, frame schema.DaemonRequest, payload []byte, hasPayload bool) []byte {
	log := pslog.Ctx(ctx)
	identity, ok := decodeUser(frame.User)
	if !ok {
		h.reject(ctx, fmt.Errorf("%w: user is missing or empty", schema.ErrInvalidUser), msgNoUser, "")
		return nil
	}
	if identity != h.cfg.Owner {
		printable := logx.Printable(identity)
		h.reject(ctx, schema.ErrUserMismatch, msgWrongUser(printable), printable)
		return nil
	}

	var rest []byte
	var stdin *bufpipe.PipeReader
	var stdinWriter *bufpipe.PipeWriter
	if hasPayload && frame.StdinLength > 0 {
		n := min(len(payload), frame.StdinLength)
		if frame.Stdin == nil {
			stdin, stdinWriter = openStdin(payload[:n], true, frame.StdinLength)
		}
		if remaining := frame.StdinLength - n; remaining > 0 {
			h.stdin = stdinWriter
			h.stdinRemaining = remaining
			h.state = stateStreamingStdin
			log.Trace("daemon stdin streaming", "expected", frame.StdinLength, "remaining", remaining)
		}
		rest = payload[n:]
	} else {
		rest = payload
	}

	if frame.Stdin != nil {
		if *frame.Stdin == schema.CtrlC {
			if h.server == nil {
				log.Debug("daemon shutdown ignored without server")
				return rest
			}
			h.shutdown(ctx)
			return nil
		}
		if !h.out.deliver(*frame.Stdin) {
			log.Debug("daemon prompt reply dropped")
		}
		return rest
	}

	h.dispatch(ctx, frame, stdin)
	return rest
}

func (h *Handler) dispatch(ctx context.Context, frame schema.DaemonRequest, stdin *bufpipe.PipeReader) {
	commandLine := strings.Join(frame.Argv, " ")
	log := logx.WithCommand(ctx, commandLine)
	log.Trace("daemon input command")
	ctx = logx.ContextWithCommandLogger(ctx, log, commandLine)

	req := Request{Frame: frame, CommandLine: commandLine, Out: h.out}
	if stdin != nil {
		req.Stdin = stdin
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if stdin != nil {
			defer func() { _ = stdin.Close() }()
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error("daemon command panicked", "panic", fmt.Sprint(r))
				_ = h.out.Send(schema.ExitResponse("Internal error while running the command.\n", 1))
			}
		}()
		if h.cfg.Dispatcher == nil {
			log.Error("daemon has no command dispatcher")
			_ = h.out.Send(schema.ExitResponse("The Zowe daemon cannot run commands.\n", 1))
			return
		}
		h.cfg.Dispatcher.Dispatch(ctx, req)
	}()
}

func (h *Handler) rejectFrame(ctx context.Context, raw []byte, err error) {
	log := pslog.Ctx(ctx)
	preview := raw
	if len(preview) > parsePreviewBytes {
		preview = preview[:parsePreviewBytes]
	}
	log.Trace("first 1024 bytes of daemon request", "preview", string(preview))
	log.Error("daemon request parse failed", "err", err)
	h.terminate(ctx, msgInvalidFrame+"\n"+err.Error()+"\n")
}

func (h *Handler) reject(ctx context.Context, err error, message, identity string) {
	log := pslog.Ctx(ctx)
	if identity != "" {
		log = log.With("user", identity)
	}
	log.Error("daemon connection rejected", "reason", message, "err", err)
	h.terminate(ctx, message+"\n")
}

// terminate writes a failed exit frame and closes the connection.
func (h *Handler) terminate(ctx context.Context, stderr string) {
	if err := h.out.Send(schema.ExitResponse(stderr, 1)); err != nil {
		pslog.Ctx(ctx).Debug("daemon response write failed", "err", err)
	}
	h.closed = true
	h.pending = nil
	h.Close()
}

func (h *Handler) shutdown(ctx context.Context) {
	h.shutdownOnce.Do(func() {
		log := pslog.Ctx(ctx)
		log.Info("daemon shutdown requested")
		code := 0
		if err := h.out.Send(schema.DaemonResponse{Stdout: ShutdownMessage, ExitCode: &code}); err != nil {
			log.Debug("daemon response write failed", "err", err)
		}
		h.closed = true
		h.Close()
		if err := h.server.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("daemon server close failed", "err", err)
		}
		h.removePIDFile(log)
	})
}

func (h *Handler) removePIDFile(log pslog.Logger) {
	if h.cfg.PIDFile == nil {
		return
	}
	if err := h.cfg.PIDFile.Remove(); err != nil {
		log.Warn("failed to delete file", "path", h.cfg.PIDFile.Path(), "err", err)
	}
}
