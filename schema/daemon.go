package schema

// CtrlC is the stdin value a client sends to ask the daemon to shut down.
const CtrlC = "\x03"

// EndOfWord terminates a JSON header that is followed by a raw stdin payload,
// and terminates every daemon response.
const EndOfWord = '\f'

// DaemonRequest is one frame sent by a foreground client to the daemon.
//
// Stdin is nil for a command invocation. A non-nil value is either a reply to
// a prompt issued by a running command or CtrlC.
type DaemonRequest struct {
	Argv        []string          `json:"argv,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	User        string            `json:"user,omitempty"`
	StdinLength int               `json:"stdinLength,omitempty"`
	Stdin       *string           `json:"stdin,omitempty"`
}

// DaemonResponse is one frame written by the daemon back to the client.
// A response carrying ExitCode is the last one for the request.
type DaemonResponse struct {
	Stdout       string `json:"stdout,omitempty"`
	Stderr       string `json:"stderr,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	SecurePrompt string `json:"securePrompt,omitempty"`
	Progress     bool   `json:"progress,omitempty"`
	ExitCode     *int   `json:"exitCode,omitempty"`
}

// ExitResponse returns a terminal response with the given stderr text and exit code.
func ExitResponse(stderr string, code int) DaemonResponse {
	return DaemonResponse{Stderr: stderr, ExitCode: &code}
}

// DaemonPID is the content of the daemon pid file.
type DaemonPID struct {
	User string `json:"user"`
	PID  int    `json:"pid"`
}
