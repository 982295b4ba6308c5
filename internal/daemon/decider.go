package daemon

import (
	"strconv"
	"strings"
)

// Mode is the outcome of the daemon decision made at process start.
type Mode struct {
	Daemon bool
	Port   int
}

// Decide scans the raw process arguments for DaemonFlag before any command
// parsing happens. args[0] is the program path. The port comes from PortEnv
// when it holds a valid port number, otherwise DefaultPort.
func Decide(args []string, getenv func(string) string) Mode {
	mode := Mode{Port: DefaultPort}
	if len(args) > 1 {
		for _, arg := range args[1:] {
			if arg == DaemonFlag {
				mode.Daemon = true
				break
			}
		}
	}
	mode.Port = PortFromEnv(getenv)
	return mode
}

// PortFromEnv returns the daemon port configured through PortEnv.
func PortFromEnv(getenv func(string) string) int {
	if getenv == nil {
		return DefaultPort
	}
	raw := strings.TrimSpace(getenv(PortEnv))
	if raw == "" {
		return DefaultPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 || port > 65535 {
		return DefaultPort
	}
	return port
}
