package pidfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"pkt.systems/pslog"
	"pkt.systems/zowe/schema"
)

// FileName is the name of the pid file inside the daemon directory.
const FileName = "daemon_pid.json"

// ErrForeignUser indicates the pid file belongs to a different user.
var ErrForeignUser = errors.New("pid file belongs to another user")

// Store reads and writes the daemon pid file.
type Store struct {
	path string
	log  pslog.Logger
}

// New returns a store for the pid file inside dir.
func New(dir string) (*Store, error) {
	return NewWithLogger(dir, nil)
}

// NewWithLogger returns a store for the pid file inside dir with logging.
func NewWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("daemon directory is required")
	}
	path := filepath.Join(dir, FileName)
	if logger != nil {
		logger = logger.With("pid_file", path)
	}
	return &Store{path: path, log: logger}, nil
}

// Path returns the pid file location.
func (s *Store) Path() string {
	return s.path
}

// Write records pid as the daemon of user.
func (s *Store) Write(user string, pid int) error {
	if err := s.write(schema.DaemonPID{User: user, PID: pid}); err != nil {
		if s.log != nil {
			s.log.Warn("pid file write failed", "err", err)
		}
		return fmt.Errorf("failed to write file %s: %w", s.path, err)
	}
	if s.log != nil {
		s.log.Debug("pid file written", "pid", pid)
	}
	return nil
}

func (s *Store) write(record schema.DaemonPID) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "daemon-pid-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Read loads the pid file. The bool is false when no file exists.
// A file recorded for a user other than user yields ErrForeignUser.
func (s *Store) Read(user string) (schema.DaemonPID, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schema.DaemonPID{}, false, nil
		}
		return schema.DaemonPID{}, false, err
	}
	var record schema.DaemonPID
	if err := json.Unmarshal(data, &record); err != nil {
		return schema.DaemonPID{}, false, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if user != "" && record.User != user {
		return schema.DaemonPID{}, false, fmt.Errorf("%w: %s records user %q", ErrForeignUser, s.path, record.User)
	}
	return record, true, nil
}

// Remove deletes the pid file. A missing file is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
