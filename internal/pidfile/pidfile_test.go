package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReadRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "daemon")
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Path() != filepath.Join(dir, FileName) {
		t.Fatalf("unexpected path %q", store.Path())
	}
	if _, ok, err := store.Read("alice"); err != nil || ok {
		t.Fatalf("expected missing pid file, got ok=%v err=%v", ok, err)
	}
	if err := store.Write("alice", 4242); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 pid file, got %v", info.Mode().Perm())
	}
	record, ok, err := store.Read("alice")
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if record.User != "alice" || record.PID != 4242 {
		t.Fatalf("unexpected record %+v", record)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("second Remove should ignore missing file: %v", err)
	}
}

func TestReadRejectsForeignUser(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Write("mallory", 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, _, err := store.Read("alice"); !errors.Is(err, ErrForeignUser) {
		t.Fatalf("expected ErrForeignUser, got %v", err)
	}
}

func TestWriteFailureNamesFile(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "daemon")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	store, err := New(blocker)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = store.Write("alice", 1)
	if err == nil {
		t.Fatalf("expected write error")
	}
	if want := FileName; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error to name %s, got %v", want, err)
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Fatalf("expected current process to be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Fatalf("expected non-positive pids to be dead")
	}
}
