package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"pkt.systems/zowe/schema"
)

// ErrPromptUnavailable indicates a prompt could not be delivered to the client.
var ErrPromptUnavailable = errors.New("prompt unavailable")

// Responder writes framed responses back to a daemon client. It is safe for
// concurrent use.
type Responder struct {
	mu sync.Mutex
	w  io.Writer

	promptMu  sync.Mutex
	prompting bool
	replies   chan string
}

// NewResponder returns a responder writing frames to w.
func NewResponder(w io.Writer) *Responder {
	return &Responder{w: w, replies: make(chan string, 1)}
}

// Send writes one response frame.
func (r *Responder) Send(resp schema.DaemonResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode daemon response: %w", err)
	}
	data = append(data, byte(schema.EndOfWord))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("write daemon response: %w", err)
	}
	return nil
}

// Exit writes the terminal frame of a request.
func (r *Responder) Exit(code int) error {
	return r.Send(schema.DaemonResponse{ExitCode: &code})
}

// Stdout returns a writer whose writes become stdout frames.
func (r *Responder) Stdout() io.Writer {
	return frameWriter{r: r}
}

// Stderr returns a writer whose writes become stderr frames.
func (r *Responder) Stderr() io.Writer {
	return frameWriter{r: r, stderr: true}
}

// Prompt asks the client for a line of input and waits for the reply. Secure
// prompts are read without echo by the client.
func (r *Responder) Prompt(ctx context.Context, message string, secure bool) (string, error) {
	r.promptMu.Lock()
	if r.prompting {
		r.promptMu.Unlock()
		return "", fmt.Errorf("%w: another prompt is pending", ErrPromptUnavailable)
	}
	r.prompting = true
	select {
	case <-r.replies:
	default:
	}
	r.promptMu.Unlock()
	defer func() {
		r.promptMu.Lock()
		r.prompting = false
		r.promptMu.Unlock()
	}()

	resp := schema.DaemonResponse{Prompt: message}
	if secure {
		resp = schema.DaemonResponse{SecurePrompt: message}
	}
	if err := r.Send(resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPromptUnavailable, err)
	}
	select {
	case reply := <-r.replies:
		return strings.TrimRight(reply, "\r\n"), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// deliver hands a prompt reply to a waiting Prompt call. Replies nobody is
// waiting for are dropped.
func (r *Responder) deliver(reply string) bool {
	r.promptMu.Lock()
	defer r.promptMu.Unlock()
	if !r.prompting {
		return false
	}
	select {
	case r.replies <- reply:
		return true
	default:
		return false
	}
}

type frameWriter struct {
	r      *Responder
	stderr bool
}

func (w frameWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	resp := schema.DaemonResponse{Stdout: string(p)}
	if w.stderr {
		resp = schema.DaemonResponse{Stderr: string(p)}
	}
	if err := w.r.Send(resp); err != nil {
		return 0, err
	}
	return len(p), nil
}
