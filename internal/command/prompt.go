package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"pkt.systems/zowe/internal/daemon"
)

// TerminalPrompter asks questions on the controlling terminal of a
// foreground command.
type TerminalPrompter struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
}

// NewTerminalPrompter returns a prompter reading from in, or nil when in is
// not a terminal.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	if in == nil || !term.IsTerminal(int(in.Fd())) {
		return nil
	}
	return &TerminalPrompter{in: in, reader: bufio.NewReader(in), out: out}
}

// Prompt prints message and reads one line. Secure prompts do not echo.
func (p *TerminalPrompter) Prompt(ctx context.Context, message string, secure bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(p.out, message); err != nil {
		return "", err
	}
	if secure {
		reply, err := daemon.TerminalSecret(p.in)
		_, _ = fmt.Fprintln(p.out)
		return reply, err
	}
	reply, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
		return "", err
	}
	return strings.TrimRight(reply, "\r\n"), nil
}
