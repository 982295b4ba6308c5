package daemon

import (
	"encoding/base64"
	"os/user"
	"strings"
)

const (
	// DaemonFlag switches the process into daemon mode when present in argv.
	DaemonFlag = "--daemon"
	// PortEnv overrides the daemon port.
	PortEnv = "ZOWE_DAEMON"
	// DefaultPort is the loopback port the daemon listens on.
	DefaultPort = 4000
	// ShutdownMessage is written to the client that stops the daemon.
	ShutdownMessage = "Terminating Zowe daemon ...\n"
	// ClientCommand is the hidden command the foreground client runs as.
	ClientCommand = "daemon-client"
)

const (
	maxHeaderBytes    = 16 << 20
	parsePreviewBytes = 1024
	readChunkSize     = 32 << 10
)

const (
	msgNoUser       = "A connection was attempted without a valid user."
	msgInvalidFrame = "Unable to parse the daemon request."
)

func msgWrongUser(identity string) string {
	return "The user '" + identity + "' attempted to connect."
}

// EncodeUser encodes an identity for the user field of a request frame.
func EncodeUser(name string) string {
	return base64.StdEncoding.EncodeToString([]byte(name))
}

// decodeUser returns the identity carried by a request frame. Both padded and
// unpadded base64 are accepted.
func decodeUser(encoded string) (string, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", false
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		data, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(data) == 0 {
			return "", false
		}
		return string(data), true
	}
	return "", false
}

// CurrentUser returns the login name of the OS user running the process.
func CurrentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// ZoweEnv returns the ZOWE_ prefixed variables of environ.
func ZoweEnv(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "ZOWE_") {
			continue
		}
		out[key] = value
	}
	return out
}
