// Package pidfile keeps a single meetaudio daemon per user.
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

// ErrAlreadyRunning is wrapped by the error New returns when a live process
// owns the file.
var ErrAlreadyRunning = errors.New("another instance is already running")

// PIDFile manages a PID file for preventing duplicate instances
type PIDFile struct {
	path string
	pid  int
}

// New creates a new PID file at the specified path
// Returns an error if a PID file already exists with a running process
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	if existing, ok := Read(path); ok {
		if isProcessRunning(existing) {
			return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, existing)
		}
	}
	// Stale or unreadable: replace it.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale PID file: %w", err)
	}

	// A concurrent New that also passed the check fails on O_EXCL.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (PID file %s appeared concurrently)", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	currentPID := os.Getpid()
	if _, err := fmt.Fprintf(f, "%d\n", currentPID); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	return &PIDFile{path: path, pid: currentPID}, nil
}

// Remove deletes the PID file
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	// Only remove if it contains our PID
	if pid, ok := Read(p.path); ok && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

// Read returns the PID stored at path.
func Read(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Running reports the PID of the live process owning path, if any.
func Running(path string) (int, bool) {
	pid, ok := Read(path)
	if !ok || !isProcessRunning(pid) {
		return 0, false
	}
	return pid, true
}

// isProcessRunning checks if a process with the given PID is running
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so we need to actually check
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Exists, owned by someone else
		return true
	default:
		return false
	}
}

// Path returns the PID file path for appName inside dir.
func Path(dir, appName string) string {
	return filepath.Join(dir, appName+".pid")
}
