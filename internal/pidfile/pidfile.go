// Package pidfile keeps a single reveal-core running per user.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunning is returned by Acquire when a live process holds the file.
var ErrRunning = errors.New("another instance is already running")

// Lock is a held PID file.
type Lock struct {
	path string
	pid  int
}

// Path is dir/name.pid.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".pid")
}

// Acquire writes the current PID to path. A file left by a dead process is
// taken over; one held by a live process fails with ErrRunning.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	if pid, ok := Owner(path); ok {
		return nil, fmt.Errorf("%w (PID %d)", ErrRunning, pid)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Owner returns the PID recorded in path if that process is alive.
func Owner(path string) (int, bool) {
	pid, err := readPID(path)
	if err != nil || !alive(pid) {
		return 0, false
	}
	return pid, true
}

// Release removes the file unless another process has since claimed it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	pid, err := readPID(l.path)
	if err != nil || pid != l.pid {
		return nil
	}
	return os.Remove(l.path)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// alive probes pid with signal 0. EPERM means the process exists under
// another user.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
