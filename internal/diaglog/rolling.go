package diaglog

import (
	"os"
	"sync"
)

// PreviousSuffix names the generation kept by the rolling writer:
// <path><PreviousSuffix> holds the entries from before the last rotation.
const PreviousSuffix = ".1"

// rollingWriter appends to path and rotates once the next write would push
// the file past maxSize: the full file becomes <path>.1, replacing the older
// generation, and writing continues in a fresh file. At most two generations
// exist, so disk use stays under 2*maxSize while a long daemon session keeps
// the entries leading up to a rotation.
type rollingWriter struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	size    int64
	maxSize int64
}

func newRollingWriter(path string, maxSize int64) (*rollingWriter, error) {
	rw := &rollingWriter{path: path, maxSize: maxSize}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *rollingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rw.f = f
	rw.size = info.Size()
	return nil
}

func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rw.f.Write(p)
	rw.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = rw.f.Sync()
	return n, nil
}

// rotate moves the current file to the previous generation and reopens.
// Caller holds rw.mu.
func (rw *rollingWriter) rotate() error {
	_ = rw.f.Sync()
	if err := rw.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(rw.path, rw.path+PreviousSuffix); err != nil {
		// Keep logging into the same file rather than losing entries.
		if oerr := rw.open(); oerr != nil {
			return oerr
		}
		return err
	}
	return rw.open()
}

func (rw *rollingWriter) close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_ = rw.f.Sync()
	return rw.f.Close()
}
