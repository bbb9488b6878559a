// Package daemon runs the background sync service: a single-instance
// scheduler with a PID file, redacted logging, and graceful shutdown.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/multigit-dev/multigit/pkg/logger"
)

// ErrAlreadyRunning indicates a live daemon already holds the PID file.
var ErrAlreadyRunning = errors.New("daemon is already running")

// ErrNotRunning indicates no live daemon holds the PID file.
var ErrNotRunning = errors.New("daemon is not running")

// PIDFile guards single-instance daemon execution.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID file handle at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the file location.
func (p *PIDFile) Path() string { return p.path }

// Acquire writes the current process ID after verifying no live process
// holds the file. A stale file left by a dead process is removed.
func (p *PIDFile) Acquire() error {
	if pid, ok := p.livePID(); ok {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// ReadPID returns the recorded process ID.
func (p *PIDFile) ReadPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// livePID returns the recorded PID when it belongs to a live process.
// Stale files are cleaned up on the way.
func (p *PIDFile) livePID() (int, bool) {
	pid, err := p.ReadPID()
	if err != nil {
		return 0, false
	}
	if processAlive(pid) {
		return pid, true
	}
	logger.Debug("Removing stale pid file", logger.Int("pid", pid))
	_ = os.Remove(p.path)
	return 0, false
}

// IsRunning reports whether a live daemon holds the file.
func (p *PIDFile) IsRunning() (bool, int) {
	pid, ok := p.livePID()
	return ok, pid
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
